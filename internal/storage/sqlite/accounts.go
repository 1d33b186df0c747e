package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docreg/internal/account"
	apperrors "docreg/internal/errors"
)

// accountRepository implements account.Store over the users table
type accountRepository struct {
	q querier
}

var _ account.Store = (*accountRepository)(nil)

// ActiveExists checks if a non-deleted account uses username
func (r *accountRepository) ActiveExists(ctx context.Context, username string) (bool, error) {
	var exists int
	err := r.q.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE username = ? AND delete_date IS NULL",
		username,
	).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check active account: %w", err)
	}
	return true, nil
}

// Create inserts acct. The partial unique index on active usernames turns a
// concurrent duplicate into errors.ErrUsernameTaken at write time.
func (r *accountRepository) Create(ctx context.Context, acct *account.Account) error {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, username, password, email, role_id, storage_quota, onboarding, create_date, delete_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, acct.ID, acct.Username, acct.PasswordHash, acct.Email, acct.Role, acct.StorageQuota,
		acct.Onboarding, toMillis(acct.CreatedAt), nullMillis(acct.DeletedAt))

	if isUniqueViolation(err) {
		return apperrors.Wrap(apperrors.ErrUsernameTaken, err)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByUsername retrieves the active account for username, or nil
func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	var (
		acct      account.Account
		createdAt int64
		deletedAt sql.NullInt64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, username, password, email, role_id, storage_quota, onboarding, create_date, delete_date
		FROM users WHERE username = ? AND delete_date IS NULL
	`, username).Scan(
		&acct.ID,
		&acct.Username,
		&acct.PasswordHash,
		&acct.Email,
		&acct.Role,
		&acct.StorageQuota,
		&acct.Onboarding,
		&createdAt,
		&deletedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	acct.CreatedAt = fromMillis(createdAt)
	acct.DeletedAt = fromNullMillis(deletedAt)
	return &acct, nil
}
