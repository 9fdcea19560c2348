package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
)

// Activity represents a record stored in activity_logs.
type Activity struct {
	ID          int64          `json:"id"`
	ActorID     int64          `json:"actor_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Subject     Ref            `json:"subject"`
	OldValues   map[string]any `json:"old_values,omitempty"`
	NewValues   map[string]any `json:"new_values,omitempty"`
	At          time.Time      `json:"at"`
}

// ActivityStore persists activity rows inside the caller's transaction.
type ActivityStore interface {
	InsertActivity(ctx context.Context, activity Activity) error
}

// LogActivity stamps the entry with the actor and writes it.
func LogActivity(ctx context.Context, store ActivityStore, actor Actor, action, description string, subject Ref, oldValues, newValues map[string]any) error {
	if store == nil {
		return nil
	}
	err := store.InsertActivity(ctx, Activity{
		ActorID:     actor.UserID,
		Action:      action,
		Description: description,
		Subject:     subject,
		OldValues:   oldValues,
		NewValues:   newValues,
		At:          actor.At,
	})
	if err != nil {
		return fmt.Errorf("log activity %s: %w", action, err)
	}
	return nil
}

// ActivityLogger writes records into activity_logs.
type ActivityLogger struct {
	db db.DBTX
}

// NewActivityLogger returns a new ActivityLogger bound to a pool or transaction.
func NewActivityLogger(conn db.DBTX) *ActivityLogger {
	return &ActivityLogger{db: conn}
}

// InsertActivity persists the log entry.
func (l *ActivityLogger) InsertActivity(ctx context.Context, a Activity) error {
	if l == nil || l.db == nil {
		return errors.New("activity logger not initialised")
	}
	if a.Action == "" || a.Subject.IsZero() {
		return errors.New("activity requires action and subject")
	}
	oldJSON, err := json.Marshal(a.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(a.NewValues)
	if err != nil {
		return err
	}
	_, err = l.db.Exec(ctx, `INSERT INTO activity_logs (actor_id, action, description, subject_kind, subject_id, old_values, new_values, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		a.ActorID, a.Action, a.Description, string(a.Subject.Kind), a.Subject.ID, oldJSON, newJSON, db.NullTime(a.At))
	return err
}

// ListActivities returns the history of a subject ordered oldest first.
func (l *ActivityLogger) ListActivities(ctx context.Context, subject Ref) ([]Activity, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("activity logger not initialised")
	}
	rows, err := l.db.Query(ctx, `SELECT id, actor_id, action, description, subject_kind, subject_id, old_values, new_values, occurred_at
FROM activity_logs WHERE subject_kind=$1 AND subject_id=$2 ORDER BY occurred_at ASC, id ASC`, string(subject.Kind), subject.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Activity
	for rows.Next() {
		var (
			a              Activity
			kind           string
			oldRaw, newRaw []byte
		)
		if err := rows.Scan(&a.ID, &a.ActorID, &a.Action, &a.Description, &kind, &a.Subject.ID, &oldRaw, &newRaw, &a.At); err != nil {
			return nil, err
		}
		a.Subject.Kind = RefKind(kind)
		if len(oldRaw) > 0 {
			_ = json.Unmarshal(oldRaw, &a.OldValues)
		}
		if len(newRaw) > 0 {
			_ = json.Unmarshal(newRaw, &a.NewValues)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
