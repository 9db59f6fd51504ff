package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"timekeeper/backend/internal/model"
	"timekeeper/backend/internal/repository"
)

// ErrUnknownUser means a control message referenced a user with no in-memory
// timer state. Connections always hydrate on open, so this is an internal
// invariant violation rather than a client error.
var ErrUnknownUser = errors.New("no timer state in memory for user")

// TimerStore is the durable mirror of the in-memory timer state.
type TimerStore interface {
	FindByUser(ctx context.Context, userID string) (*model.Timer, error)
	Create(ctx context.Context, userID string) (*model.Timer, error)
	Upsert(ctx context.Context, timer *model.Timer) error
}

// TimerService owns the authoritative live timer state for every connected
// user and interprets control messages against it. All access is serialized
// behind one mutex, so a message is fully applied before the next one for
// the same user is processed.
type TimerService struct {
	mu    sync.Mutex
	store TimerStore
	cache map[string]*model.Timer
	dirty map[string]struct{}

	maxGoal int64
	minGoal int64

	clock func() time.Time
}

func NewTimerService(store TimerStore, maxGoalMilliseconds, minGoalMilliseconds int64) *TimerService {
	return &TimerService{
		store:   store,
		cache:   make(map[string]*model.Timer),
		dirty:   make(map[string]struct{}),
		maxGoal: maxGoalMilliseconds,
		minGoal: minGoalMilliseconds,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Hydrate loads the user's timer into the cache, creating a zeroed row when
// the user has none, and returns the current snapshot. Hydrating an already
// cached user does not touch the store.
func (s *TimerService) Hydrate(ctx context.Context, userID string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.cache[userID]
	if ok {
		snap := s.snapshot(timer, s.clock())
		return &snap, nil
	}

	timer, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		timer, err = s.store.Create(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	s.cache[userID] = timer
	snap := s.snapshot(timer, s.clock())
	return &snap, nil
}

// Apply runs one control message against the user's cached timer and returns
// the resulting snapshot. Stop and clear persist the state; a store failure
// there is logged and the entry stays dirty for the next flush, so live
// collaboration is never blocked on the database.
func (s *TimerService) Apply(ctx context.Context, userID string, msg Message) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.cache[userID]
	if !ok {
		return nil, ErrUnknownUser
	}

	now := s.clock()
	mutated := true
	persist := false

	switch msg.Op {
	case OpGet:
		mutated = false
	case OpStart:
		mutated = s.applyStart(timer, now)
	case OpPause:
		mutated = s.applyPause(timer, now, false)
	case OpForcedPause:
		mutated = s.applyPause(timer, now, true)
	case OpAckForced:
		mutated = s.applyAckForced(timer)
	case OpStop:
		s.applyStop(timer, now)
		persist = true
	case OpClear:
		s.applyClear(timer, now)
		persist = true
	case OpSwitchMode:
		s.applySwitchMode(timer, now)
	case OpSetGoal:
		s.applySetGoal(timer, now, msg.Duration)
	case OpAddGoal:
		mutated = s.applyAddGoal(timer, now, msg.Duration)
	case OpRemoveGoal:
		mutated = s.applyRemoveGoal(timer, now, msg.Duration)
	}

	if mutated {
		timer.UpdatedAt = now
		s.dirty[userID] = struct{}{}
	}

	if persist {
		if err := s.store.Upsert(ctx, timer); err != nil {
			log.Printf("persist timer for user %s: %v", userID, err)
		} else {
			delete(s.dirty, userID)
		}
	}

	snap := s.snapshot(timer, now)
	return &snap, nil
}

// SnapshotWithError returns the unchanged current state annotated with an
// error message, used for unrecognized actions.
func (s *TimerService) SnapshotWithError(userID, message string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.cache[userID]
	if !ok {
		return nil, ErrUnknownUser
	}

	snap := s.snapshot(timer, s.clock())
	snap.Error = message
	return &snap, nil
}

// FlushDirty writes every unpersisted timer back to the store. Failures keep
// the entry dirty so the next flush retries.
func (s *TimerService) FlushDirty(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID := range s.dirty {
		timer, ok := s.cache[userID]
		if !ok {
			delete(s.dirty, userID)
			continue
		}
		if err := s.store.Upsert(ctx, timer); err != nil {
			log.Printf("snapshot flush for user %s: %v", userID, err)
			continue
		}
		delete(s.dirty, userID)
	}
}

func (s *TimerService) applyStart(t *model.Timer, now time.Time) bool {
	if t.Running() {
		return false
	}
	if !t.Started {
		t.Started = true
		if t.Countdown {
			t.Time = t.Goal
		} else {
			t.Time = 0
		}
	}
	t.Paused = false
	t.ForcedPause = false
	startedAt := now
	t.StartedAt = &startedAt
	return true
}

func (s *TimerService) applyPause(t *model.Timer, now time.Time, forced bool) bool {
	if !t.Running() {
		return false
	}
	s.fold(t, now)
	t.Paused = true
	t.ForcedPause = forced
	t.StartedAt = nil
	return true
}

func (s *TimerService) applyAckForced(t *model.Timer) bool {
	if !t.ForcedPause {
		return false
	}
	t.ForcedPause = false
	return true
}

func (s *TimerService) applyStop(t *model.Timer, now time.Time) {
	if t.Running() {
		s.fold(t, now)
	}
	t.Started = false
	t.Paused = false
	t.ForcedPause = false
	t.StartedAt = nil

	if t.Countdown && t.Time == 0 {
		// A completed countdown resets to its initial goal.
		t.Goal = t.InitialGoal
		t.Time = t.Goal
	} else if t.Time != 0 {
		t.Goal = t.Time
	}
}

func (s *TimerService) applyClear(t *model.Timer, now time.Time) {
	s.applyStop(t, now)
	if t.Countdown {
		t.Time = t.Goal
	} else {
		t.Time = 0
	}
	t.Chiming = false
}

func (s *TimerService) applySwitchMode(t *model.Timer, now time.Time) {
	if t.Running() {
		s.fold(t, now)
	}
	t.Countdown = !t.Countdown
	if t.Countdown {
		t.Time = t.Goal
	} else {
		t.Time = 0
	}
	t.Paused = true
	t.StartedAt = nil
}

func (s *TimerService) applySetGoal(t *model.Timer, now time.Time, goal int64) {
	if !t.Running() {
		t.Goal = goal
		t.InitialGoal = goal
		t.Time = goal
		return
	}

	s.fold(t, now)
	if t.Countdown {
		spent := t.Goal - t.Time
		remaining := goal - spent
		if remaining < 0 {
			remaining = 0
		}
		t.Time = remaining
	}
	t.Goal = goal
	t.InitialGoal = goal
}

func (s *TimerService) applyAddGoal(t *model.Timer, now time.Time, delta int64) bool {
	// Compared as headroom so an attacker-sized delta cannot wrap the sum.
	if delta > s.maxGoal-t.Goal {
		return false
	}
	if t.Running() {
		s.fold(t, now)
	}
	t.Goal += delta
	t.Time += delta
	return true
}

func (s *TimerService) applyRemoveGoal(t *model.Timer, now time.Time, delta int64) bool {
	if t.Goal-delta < s.minGoal {
		return false
	}
	if t.Running() {
		s.fold(t, now)
	}
	if t.Time-delta < 0 {
		return false
	}
	t.Goal -= delta
	t.Time -= delta
	return true
}

// fold rolls the wall-clock time elapsed since startedAt into the stored
// time and rebases startedAt to now. Elapsed time is always now-startedAt,
// never a tick count, so reconnects and delayed messages cannot drift.
func (s *TimerService) fold(t *model.Timer, now time.Time) {
	if t.StartedAt == nil {
		return
	}
	elapsed := now.Sub(*t.StartedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if t.Countdown {
		t.Time -= elapsed
		if t.Time <= 0 {
			t.Time = 0
			t.Chiming = true
		}
	} else {
		t.Time += elapsed
	}
	startedAt := now
	t.StartedAt = &startedAt
}

// snapshot projects the live value of a possibly running timer without
// mutating it.
func (s *TimerService) snapshot(t *model.Timer, now time.Time) model.Snapshot {
	snap := model.Snapshot{
		UserID:      t.UserID,
		Goal:        t.Goal,
		InitialGoal: t.InitialGoal,
		Time:        t.Time,
		StartedAt:   t.StartedAt,
		Started:     t.Started,
		Paused:      t.Paused,
		ForcedPause: t.ForcedPause,
		Countdown:   t.Countdown,
		Chiming:     t.Chiming,
		ServerTime:  now,
	}

	if t.Running() {
		elapsed := now.Sub(*t.StartedAt).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
		if t.Countdown {
			snap.Time = t.Time - elapsed
			if snap.Time <= 0 {
				snap.Time = 0
				snap.Chiming = true
			}
		} else {
			snap.Time = t.Time + elapsed
		}
	}

	return snap
}
