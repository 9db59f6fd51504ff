package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"timekeeper/backend/internal/model"
	"timekeeper/backend/internal/repository"
)

type fakeStore struct {
	timers     map[string]*model.Timer
	creates    int
	upserts    int
	failUpsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{timers: make(map[string]*model.Timer)}
}

func (f *fakeStore) FindByUser(_ context.Context, userID string) (*model.Timer, error) {
	timer, ok := f.timers[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *timer
	return &copied, nil
}

func (f *fakeStore) Create(_ context.Context, userID string) (*model.Timer, error) {
	f.creates++
	timer := model.NewTimer(userID, time.Unix(0, 0).UTC())
	copied := *timer
	f.timers[userID] = &copied
	return timer, nil
}

func (f *fakeStore) Upsert(_ context.Context, timer *model.Timer) error {
	f.upserts++
	if f.failUpsert {
		return errors.New("store unavailable")
	}
	copied := *timer
	f.timers[timer.UserID] = &copied
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*TimerService, *fakeStore, *fakeClock) {
	t.Helper()
	store := newFakeStore()
	svc := NewTimerService(store, model.DefaultMaxGoalMilliseconds, model.DefaultMinGoalMilliseconds)
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc.clock = func() time.Time { return clock.now }
	return svc, store, clock
}

func hydrate(t *testing.T, svc *TimerService, userID string) *model.Snapshot {
	t.Helper()
	snap, err := svc.Hydrate(context.Background(), userID)
	if err != nil {
		t.Fatalf("hydrate %s: %v", userID, err)
	}
	return snap
}

func apply(t *testing.T, svc *TimerService, userID string, msg Message) *model.Snapshot {
	t.Helper()
	snap, err := svc.Apply(context.Background(), userID, msg)
	if err != nil {
		t.Fatalf("apply op %d for %s: %v", msg.Op, userID, err)
	}
	return snap
}

func TestHydrateIsIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)

	first := hydrate(t, svc, "u1")
	second := hydrate(t, svc, "u1")

	if store.creates != 1 {
		t.Fatalf("expected one store create, got %d", store.creates)
	}
	if first.Goal != model.DefaultGoalMilliseconds || first.Time != first.Goal {
		t.Fatalf("unexpected fresh timer: goal=%d time=%d", first.Goal, first.Time)
	}
	if *first != *second {
		t.Fatalf("hydrate snapshots differ: %+v vs %+v", first, second)
	}
}

func TestCountdownPauseStopClear(t *testing.T) {
	svc, _, clock := newTestService(t)
	hydrate(t, svc, "u1")

	apply(t, svc, "u1", Message{Op: OpSetGoal, Duration: 600000})
	apply(t, svc, "u1", Message{Op: OpStart})
	clock.advance(120000 * time.Millisecond)

	snap := apply(t, svc, "u1", Message{Op: OpPause})
	if snap.Time != 480000 || !snap.Paused {
		t.Fatalf("after pause: time=%d paused=%v, want 480000/true", snap.Time, snap.Paused)
	}

	snap = apply(t, svc, "u1", Message{Op: OpStop})
	if snap.Goal != 480000 || snap.Started {
		t.Fatalf("after stop: goal=%d started=%v, want 480000/false", snap.Goal, snap.Started)
	}

	snap = apply(t, svc, "u1", Message{Op: OpClear})
	if snap.Time != 480000 {
		t.Fatalf("after clear: time=%d, want 480000", snap.Time)
	}
}

func TestStopwatchStop(t *testing.T) {
	svc, _, clock := newTestService(t)
	hydrate(t, svc, "u1")

	snap := apply(t, svc, "u1", Message{Op: OpSwitchMode})
	if snap.Countdown || snap.Time != 0 || !snap.Paused {
		t.Fatalf("after switch: countdown=%v time=%d paused=%v", snap.Countdown, snap.Time, snap.Paused)
	}

	apply(t, svc, "u1", Message{Op: OpStart})
	clock.advance(30000 * time.Millisecond)

	snap = apply(t, svc, "u1", Message{Op: OpStop})
	if snap.Time != 30000 {
		t.Fatalf("stopwatch stop: time=%d, want 30000", snap.Time)
	}
}

func TestStopOnIdleStopwatchKeepsZero(t *testing.T) {
	svc, _, _ := newTestService(t)
	hydrate(t, svc, "u1")

	apply(t, svc, "u1", Message{Op: OpSwitchMode})
	snap := apply(t, svc, "u1", Message{Op: OpStop})
	if snap.Time != 0 {
		t.Fatalf("stop on idle stopwatch reported elapsed time: %d", snap.Time)
	}
	if snap.Goal != model.DefaultGoalMilliseconds {
		t.Fatalf("stop on idle stopwatch mutated goal: %d", snap.Goal)
	}
}

func TestCountdownClampsAtZero(t *testing.T) {
	svc, _, clock := newTestService(t)
	hydrate(t, svc, "u1")

	apply(t, svc, "u1", Message{Op: OpStart})
	clock.advance(time.Duration(model.DefaultGoalMilliseconds+60000) * time.Millisecond)

	snap := apply(t, svc, "u1", Message{Op: OpPause})
	if snap.Time != 0 {
		t.Fatalf("time went negative: %d", snap.Time)
	}
	if !snap.Chiming {
		t.Fatalf("expected chiming after countdown ran out")
	}

	// Stop on a completed countdown resets the goal to its initial value.
	snap = apply(t, svc, "u1", Message{Op: OpStop})
	if snap.Goal != model.DefaultGoalMilliseconds || snap.Time != snap.Goal {
		t.Fatalf("after stop at zero: goal=%d time=%d", snap.Goal, snap.Time)
	}
}

func TestForcedPauseRequiresAck(t *testing.T) {
	svc, _, clock := newTestService(t)
	hydrate(t, svc, "u1")

	apply(t, svc, "u1", Message{Op: OpStart})
	clock.advance(5 * time.Second)

	snap := apply(t, svc, "u1", Message{Op: OpForcedPause})
	if !snap.Paused || !snap.ForcedPause {
		t.Fatalf("forced pause: paused=%v forcedPause=%v", snap.Paused, snap.ForcedPause)
	}

	snap = apply(t, svc, "u1", Message{Op: OpAckForced})
	if !snap.Paused || snap.ForcedPause {
		t.Fatalf("ack must keep the timer paused: paused=%v forcedPause=%v", snap.Paused, snap.ForcedPause)
	}
	if snap.StartedAt != nil {
		t.Fatalf("ack must not restart the timer")
	}
}

func TestForcedPauseIsNoopWhenNotRunning(t *testing.T) {
	svc, _, _ := newTestService(t)
	before := hydrate(t, svc, "u1")

	after := apply(t, svc, "u1", Message{Op: OpForcedPause})
	if after.Paused || after.ForcedPause || after.Time != before.Time {
		t.Fatalf("forced pause on stopped timer mutated state: %+v", after)
	}
}

func TestGoalBounds(t *testing.T) {
	svc, _, clock := newTestService(t)
	hydrate(t, svc, "u1")

	// Past the ceiling: 15min default + 10h exceeds the 10h cap.
	snap := apply(t, svc, "u1", Message{Op: OpAddGoal, Duration: 10 * 60 * 60 * 1000})
	if snap.Goal != model.DefaultGoalMilliseconds {
		t.Fatalf("ceiling violation mutated goal: %d", snap.Goal)
	}

	// A delta large enough to wrap the sum negative must not slip past
	// the ceiling check.
	snap = apply(t, svc, "u1", Message{Op: OpAddGoal, Duration: math.MaxInt64})
	if snap.Goal != model.DefaultGoalMilliseconds || snap.Time != model.DefaultGoalMilliseconds {
		t.Fatalf("overflowing delta mutated state: goal=%d time=%d", snap.Goal, snap.Time)
	}

	snap = apply(t, svc, "u1", Message{Op: OpAddGoal, Duration: 60 * 60 * 1000})
	wantGoal := int64(model.DefaultGoalMilliseconds + 60*60*1000)
	if snap.Goal != wantGoal || snap.Time != wantGoal {
		t.Fatalf("add goal: goal=%d time=%d, want %d", snap.Goal, snap.Time, wantGoal)
	}

	// Below the floor.
	snap = apply(t, svc, "u1", Message{Op: OpRemoveGoal, Duration: wantGoal - model.DefaultMinGoalMilliseconds + 1})
	if snap.Goal != wantGoal {
		t.Fatalf("floor violation mutated goal: %d", snap.Goal)
	}

	// Time would go negative: run most of the goal down first.
	apply(t, svc, "u1", Message{Op: OpStart})
	clock.advance(time.Duration(wantGoal-10*60*1000) * time.Millisecond)
	snap = apply(t, svc, "u1", Message{Op: OpPause})
	if snap.Time != 10*60*1000 {
		t.Fatalf("setup: time=%d", snap.Time)
	}
	snap = apply(t, svc, "u1", Message{Op: OpRemoveGoal, Duration: 30 * 60 * 1000})
	if snap.Goal != wantGoal || snap.Time != 10*60*1000 {
		t.Fatalf("negative-time removal mutated state: goal=%d time=%d", snap.Goal, snap.Time)
	}
}

func TestElapsedIsDriftFree(t *testing.T) {
	svc, _, clock := newTestService(t)
	hydrate(t, svc, "u1")

	apply(t, svc, "u1", Message{Op: OpStart})

	// Interleave reads; none of them may affect the folded elapsed time.
	for i := 0; i < 3; i++ {
		clock.advance(17 * time.Second)
		apply(t, svc, "u1", Message{Op: OpGet})
	}
	clock.advance(9 * time.Second)

	snap := apply(t, svc, "u1", Message{Op: OpPause})
	want := int64(model.DefaultGoalMilliseconds) - (3*17+9)*1000
	if snap.Time != want {
		t.Fatalf("drift: time=%d, want %d", snap.Time, want)
	}
}

func TestSetGoalWhileRunningKeepsSpentTime(t *testing.T) {
	svc, _, clock := newTestService(t)
	hydrate(t, svc, "u1")

	apply(t, svc, "u1", Message{Op: OpSetGoal, Duration: 600000})
	apply(t, svc, "u1", Message{Op: OpStart})
	clock.advance(120000 * time.Millisecond)

	snap := apply(t, svc, "u1", Message{Op: OpSetGoal, Duration: 300000})
	if snap.Goal != 300000 || snap.Time != 180000 {
		t.Fatalf("set goal while running: goal=%d time=%d, want 300000/180000", snap.Goal, snap.Time)
	}

	// Shrinking below the spent time floors at zero.
	snap = apply(t, svc, "u1", Message{Op: OpSetGoal, Duration: 60000})
	if snap.Time != 0 {
		t.Fatalf("set goal below spent time: time=%d, want 0", snap.Time)
	}
}

func TestSnapshotWithErrorLeavesStateUnchanged(t *testing.T) {
	svc, _, _ := newTestService(t)
	before := hydrate(t, svc, "u1")

	snap, err := svc.SnapshotWithError("u1", "Unrecognized action: FOO")
	if err != nil {
		t.Fatalf("snapshot with error: %v", err)
	}
	if snap.Error == "" {
		t.Fatalf("expected error annotation")
	}
	if snap.Time != before.Time || snap.Goal != before.Goal {
		t.Fatalf("error snapshot mutated state: %+v", snap)
	}

	after := apply(t, svc, "u1", Message{Op: OpStart})
	if !after.Started {
		t.Fatalf("start after unrecognized action must still work")
	}
}

func TestApplyUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Apply(context.Background(), "ghost", Message{Op: OpStart})
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestStopPersistsAndFlushRetries(t *testing.T) {
	svc, store, clock := newTestService(t)
	hydrate(t, svc, "u1")

	apply(t, svc, "u1", Message{Op: OpStart})
	clock.advance(time.Minute)

	store.failUpsert = true
	apply(t, svc, "u1", Message{Op: OpStop})
	if len(svc.dirty) != 1 {
		t.Fatalf("failed persist must leave the entry dirty")
	}

	store.failUpsert = false
	svc.FlushDirty(context.Background())
	if len(svc.dirty) != 0 {
		t.Fatalf("flush did not clear dirty entries")
	}

	persisted := store.timers["u1"]
	if persisted == nil || persisted.Started {
		t.Fatalf("stop was not persisted: %+v", persisted)
	}
}
