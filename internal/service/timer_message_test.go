package service

import "testing"

func TestParseAction(t *testing.T) {
	cases := []struct {
		action string
		want   Message
		ok     bool
	}{
		{"START_TIMER", Message{Op: OpStart}, true},
		{"PAUSE_TIMER", Message{Op: OpPause}, true},
		{"STOP_TIMER", Message{Op: OpStop}, true},
		{"CLEAR_TIMER", Message{Op: OpClear}, true},
		{"GET_TIMER", Message{Op: OpGet}, true},
		{"SWITCH_MODE", Message{Op: OpSwitchMode}, true},
		{"FORCED_PAUSE", Message{Op: OpForcedPause}, true},
		{"ACK_FORCED", Message{Op: OpAckForced}, true},
		{"SET_GOAL=900000", Message{Op: OpSetGoal, Duration: 900000}, true},
		{"ADD_GOAL=60000", Message{Op: OpAddGoal, Duration: 60000}, true},
		{"REMOVE_GOAL=60000", Message{Op: OpRemoveGoal, Duration: 60000}, true},
		{"SET_GOAL=", Message{}, false},
		{"SET_GOAL=abc", Message{}, false},
		{"ADD_GOAL=-5", Message{}, false},
		{"REMOVE_GOAL=0", Message{}, false},
		{"FOO", Message{}, false},
		{"", Message{}, false},
	}

	for _, tc := range cases {
		got, ok := ParseAction(tc.action)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseAction(%q) = %+v, %v; want %+v, %v", tc.action, got, ok, tc.want, tc.ok)
		}
	}
}
