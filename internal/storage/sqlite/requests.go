package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "docreg/internal/errors"
	"docreg/internal/registration"
)

// requestRepository implements registration.Repository
type requestRepository struct {
	q querier
}

var _ registration.Repository = (*requestRepository)(nil)

// CountPending returns the number of pending requests for username
func (r *requestRepository) CountPending(ctx context.Context, username string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM register_requests WHERE username = ? AND status = ?",
		username, registration.StatusPending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return n, nil
}

// Insert adds a new request. A pending duplicate that slipped past the
// pre-check is reported as errors.ErrDuplicatePendingRegistration.
func (r *requestRepository) Insert(ctx context.Context, req *registration.Request) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO register_requests (id, username, password, email, storage_quota, submit_time, status, operated_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.Username, req.PasswordHash, req.Email, req.StorageQuota,
		toMillis(req.SubmitTime), req.Status, nullMillis(req.OperatedTime))

	if isUniqueViolation(err) {
		return apperrors.Wrap(apperrors.ErrDuplicatePendingRegistration, err)
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// List returns every request ordered by submit time, then id
func (r *requestRepository) List(ctx context.Context) ([]registration.Summary, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, username, email, storage_quota, submit_time, status, operated_time
		FROM register_requests
		ORDER BY submit_time, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []registration.Summary{}
	for rows.Next() {
		var (
			s          registration.Summary
			submitTime int64
			operated   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Username, &s.Email, &s.StorageQuota, &submitTime, &s.Status, &operated); err != nil {
			return nil, fmt.Errorf("scan request row: %w", err)
		}
		s.SubmitTime = fromMillis(submitTime)
		s.OperatedTime = fromNullMillis(operated)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request rows: %w", err)
	}
	return summaries, nil
}

// FindPending returns all pending requests with id
func (r *requestRepository) FindPending(ctx context.Context, id string) ([]registration.Request, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, username, password, email, storage_quota, submit_time, status, operated_time
		FROM register_requests
		WHERE id = ? AND status = ?
	`, id, registration.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("find pending request: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var requests []registration.Request
	for rows.Next() {
		var (
			req        registration.Request
			submitTime int64
			operated   sql.NullInt64
		)
		if err := rows.Scan(&req.ID, &req.Username, &req.PasswordHash, &req.Email,
			&req.StorageQuota, &submitTime, &req.Status, &operated); err != nil {
			return nil, fmt.Errorf("scan request row: %w", err)
		}
		req.SubmitTime = fromMillis(submitTime)
		req.OperatedTime = fromNullMillis(operated)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request rows: %w", err)
	}
	return requests, nil
}

// SetStatus updates the status and operation time of request id
func (r *requestRepository) SetStatus(ctx context.Context, id string, status registration.Status, operatedAt time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE register_requests
		SET status = ?, operated_time = ?
		WHERE id = ?
	`, status, toMillis(operatedAt), id)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
