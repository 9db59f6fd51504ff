package model

import "time"

const (
	// DefaultGoalMilliseconds is the goal a freshly created timer starts with.
	DefaultGoalMilliseconds = 15 * 60 * 1000

	DefaultMaxGoalMilliseconds = 10 * 60 * 60 * 1000
	DefaultMinGoalMilliseconds = 15 * 60 * 1000
)

// Timer is the authoritative per-user timer state. While a user has open
// connections the in-memory copy owns the state; the database row is a
// durable mirror written on stop and on periodic snapshots.
type Timer struct {
	UserID      string     `json:"userId"`
	Goal        int64      `json:"goal"`
	InitialGoal int64      `json:"initialGoal"`
	Time        int64      `json:"time"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	Started     bool       `json:"started"`
	Paused      bool       `json:"paused"`
	ForcedPause bool       `json:"forcedPause"`
	Countdown   bool       `json:"countdown"`
	Chiming     bool       `json:"chiming"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewTimer returns a zeroed countdown timer for a user.
func NewTimer(userID string, now time.Time) *Timer {
	return &Timer{
		UserID:      userID,
		Goal:        DefaultGoalMilliseconds,
		InitialGoal: DefaultGoalMilliseconds,
		Time:        DefaultGoalMilliseconds,
		Countdown:   true,
		UpdatedAt:   now,
	}
}

// Running reports whether the timer is actively advancing.
func (t *Timer) Running() bool {
	return t.Started && !t.Paused && t.StartedAt != nil
}

// Snapshot is the full timer state serialized to every channel of a user
// after a transition. Error is set only for unrecognized actions.
type Snapshot struct {
	UserID      string     `json:"userId"`
	Goal        int64      `json:"goal"`
	InitialGoal int64      `json:"initialGoal"`
	Time        int64      `json:"time"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	Started     bool       `json:"started"`
	Paused      bool       `json:"paused"`
	ForcedPause bool       `json:"forcedPause"`
	Countdown   bool       `json:"countdown"`
	Chiming     bool       `json:"chiming"`
	ServerTime  time.Time  `json:"serverTime"`
	Error       string     `json:"error,omitempty"`
}
