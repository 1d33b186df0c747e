package account

import (
	"context"
	"time"
)

// DefaultRole is assigned to accounts provisioned from approved registrations
const DefaultRole = "user"

// Account is an active user of the document-management application
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	Role         string
	StorageQuota int64
	Onboarding   bool
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// Store defines the account operations registration depends on.
// Implementations own username uniqueness among non-deleted accounts and
// report a violation as errors.ErrUsernameTaken.
type Store interface {
	// ActiveExists reports whether a non-deleted account uses username
	ActiveExists(ctx context.Context, username string) (bool, error)

	// Create persists a new account and assigns its ID
	Create(ctx context.Context, acct *Account) error

	// GetByUsername retrieves the non-deleted account for username, or nil
	GetByUsername(ctx context.Context, username string) (*Account, error)
}
