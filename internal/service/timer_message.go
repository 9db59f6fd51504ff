package service

import (
	"strconv"
	"strings"
)

// Op identifies one timer control operation.
type Op int

const (
	OpGet Op = iota
	OpStart
	OpPause
	OpForcedPause
	OpAckForced
	OpStop
	OpClear
	OpSwitchMode
	OpSetGoal
	OpAddGoal
	OpRemoveGoal
)

// Message is a parsed timer control message. Duration carries the
// millisecond payload of the goal operations and is zero otherwise.
type Message struct {
	Op       Op
	Duration int64
}

const (
	ActionStart       = "START_TIMER"
	ActionPause       = "PAUSE_TIMER"
	ActionStop        = "STOP_TIMER"
	ActionClear       = "CLEAR_TIMER"
	ActionGet         = "GET_TIMER"
	ActionSwitchMode  = "SWITCH_MODE"
	ActionForcedPause = "FORCED_PAUSE"
	ActionAckForced   = "ACK_FORCED"

	actionSetGoalPrefix    = "SET_GOAL="
	actionAddGoalPrefix    = "ADD_GOAL="
	actionRemoveGoalPrefix = "REMOVE_GOAL="
)

// ParseAction turns a wire action tag into a Message. Parameterized actions
// are validated here so the state machine only ever sees well-formed input.
func ParseAction(action string) (Message, bool) {
	switch action {
	case ActionStart:
		return Message{Op: OpStart}, true
	case ActionPause:
		return Message{Op: OpPause}, true
	case ActionStop:
		return Message{Op: OpStop}, true
	case ActionClear:
		return Message{Op: OpClear}, true
	case ActionGet:
		return Message{Op: OpGet}, true
	case ActionSwitchMode:
		return Message{Op: OpSwitchMode}, true
	case ActionForcedPause:
		return Message{Op: OpForcedPause}, true
	case ActionAckForced:
		return Message{Op: OpAckForced}, true
	}

	for _, p := range []struct {
		prefix string
		op     Op
	}{
		{actionSetGoalPrefix, OpSetGoal},
		{actionAddGoalPrefix, OpAddGoal},
		{actionRemoveGoalPrefix, OpRemoveGoal},
	} {
		if strings.HasPrefix(action, p.prefix) {
			raw := strings.TrimPrefix(action, p.prefix)
			duration, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || duration <= 0 {
				return Message{}, false
			}
			return Message{Op: p.op, Duration: duration}, true
		}
	}

	return Message{}, false
}
