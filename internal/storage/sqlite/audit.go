package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"docreg/internal/audit"
)

// AuditLog persists audit entries
type AuditLog struct {
	q querier
}

var _ audit.Recorder = (*AuditLog)(nil)

// Record inserts entry
func (a *AuditLog) Record(ctx context.Context, entry audit.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := a.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, entity_type, entity_id, action, username, create_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.EntityType, entry.EntityID, string(entry.Action), entry.Username, toMillis(entry.CreatedAt))

	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the entries for entityID, oldest first
func (a *AuditLog) ListByEntity(ctx context.Context, entityID string) ([]audit.Entry, error) {
	rows, err := a.q.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, username, create_date
		FROM audit_log WHERE entity_id = ?
		ORDER BY create_date, rowid
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e         audit.Entry
			action    string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &e.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Action = audit.Action(action)
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}
