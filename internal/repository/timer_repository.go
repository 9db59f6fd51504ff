package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"timekeeper/backend/internal/model"
)

type TimerRepository struct {
	db *sql.DB
}

func NewTimerRepository(db *sql.DB) *TimerRepository {
	return &TimerRepository{db: db}
}

func (r *TimerRepository) FindByUser(ctx context.Context, userID string) (*model.Timer, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT user_id, goal_ms, initial_goal_ms, time_ms, started_at,
		        started, paused, forced_pause, countdown, chiming, updated_at
		 FROM timers WHERE user_id = ?`,
		userID,
	)
	timer, err := scanTimer(row)
	if err != nil {
		return nil, err
	}
	return timer, nil
}

// Create inserts a zeroed timer row for the user. Inserting an existing
// user is a no-op so that retries stay idempotent.
func (r *TimerRepository) Create(ctx context.Context, userID string) (*model.Timer, error) {
	now := time.Now().UTC()
	timer := model.NewTimer(userID, now)

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO timers (
			user_id, goal_ms, initial_goal_ms, time_ms, started_at,
			started, paused, forced_pause, countdown, chiming, updated_at
		) VALUES (?, ?, ?, ?, NULL, 0, 0, 0, 1, 0, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID,
		timer.Goal,
		timer.InitialGoal,
		timer.Time,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("create timer: %w", err)
	}
	return timer, nil
}

// Upsert writes the full timer state, inserting the row if it is missing.
func (r *TimerRepository) Upsert(ctx context.Context, timer *model.Timer) error {
	var startedAt interface{}
	if timer.StartedAt != nil {
		startedAt = timer.StartedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO timers (
			user_id, goal_ms, initial_goal_ms, time_ms, started_at,
			started, paused, forced_pause, countdown, chiming, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			goal_ms = excluded.goal_ms,
			initial_goal_ms = excluded.initial_goal_ms,
			time_ms = excluded.time_ms,
			started_at = excluded.started_at,
			started = excluded.started,
			paused = excluded.paused,
			forced_pause = excluded.forced_pause,
			countdown = excluded.countdown,
			chiming = excluded.chiming,
			updated_at = excluded.updated_at`,
		timer.UserID,
		timer.Goal,
		timer.InitialGoal,
		timer.Time,
		startedAt,
		boolToInt(timer.Started),
		boolToInt(timer.Paused),
		boolToInt(timer.ForcedPause),
		boolToInt(timer.Countdown),
		boolToInt(timer.Chiming),
		timer.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert timer: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTimer(s scanner) (*model.Timer, error) {
	timer := model.Timer{}
	var startedAt sql.NullString
	var started, paused, forcedPause, countdown, chiming int
	var updatedAt string
	err := s.Scan(
		&timer.UserID,
		&timer.Goal,
		&timer.InitialGoal,
		&timer.Time,
		&startedAt,
		&started,
		&paused,
		&forcedPause,
		&countdown,
		&chiming,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan timer: %w", err)
	}

	if startedAt.Valid {
		parsedStartedAt, parseErr := parseTime(startedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse timer started_at: %w", parseErr)
		}
		timer.StartedAt = &parsedStartedAt
	}

	timer.Started = started != 0
	timer.Paused = paused != 0
	timer.ForcedPause = forcedPause != 0
	timer.Countdown = countdown != 0
	timer.Chiming = chiming != 0

	parsedUpdatedAt, parseErr := parseTime(updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parse timer updated_at: %w", parseErr)
	}
	timer.UpdatedAt = parsedUpdatedAt
	return &timer, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
