package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"fermentation_monitor/internal/models"
)

type AlertSQLite struct {
	db *sql.DB
}

func NewAlertSQLite(db *sql.DB) *AlertSQLite { return &AlertSQLite{db: db} }

const (
	// INSERT ... SELECT ... WHERE NOT EXISTS runs the cooldown check and the
	// insert as one statement, so two concurrent raisers of the same
	// (run, type, level) cannot both slip past the check.
	insertAlertDedupSQL = `
		INSERT INTO alerts (id, run_id, type, level, message, is_read, created_at)
		SELECT ?, ?, ?, ?, ?, 0, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts
			WHERE run_id = ? AND type = ? AND level = ? AND is_read = 0 AND created_at > ?
		)
	`

	insertAlertSQL = `
		INSERT INTO alerts (id, run_id, type, level, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`

	selectUnreadAlertsSQL = `
		SELECT id, run_id, type, level, message, is_read, created_at
		FROM alerts WHERE run_id = ? AND is_read = 0 ORDER BY created_at DESC
	`
)

// Insert persists the alert unless an unread alert with the same dedup key
// was created within the cooldown window. A non-positive cooldown skips the
// window check entirely (discrete lifecycle events).
func (r *AlertSQLite) Insert(ctx context.Context, a models.Alert, cooldown time.Duration) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	} else {
		created = created.UTC()
	}

	if cooldown <= 0 {
		_, err := r.db.ExecContext(ctx, insertAlertSQL,
			a.ID, a.RunID, a.Type, a.Level, a.Message, created)
		if err != nil {
			return false, err
		}
		return true, nil
	}

	res, err := r.db.ExecContext(ctx, insertAlertDedupSQL,
		a.ID, a.RunID, a.Type, a.Level, a.Message, created,
		a.RunID, a.Type, a.Level, created.Add(-cooldown),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *AlertSQLite) Unread(ctx context.Context, runID string) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, selectUnreadAlertsSQL, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Alert, 0, 16)
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.RunID, &a.Type, &a.Level, &a.Message, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AlertSQLite) MarkRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE alerts SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
