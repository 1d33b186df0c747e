package registration

import (
	"context"
	"time"

	"docreg/internal/account"
	"docreg/internal/audit"
)

// Status is the review state of a registration request
type Status int

const (
	StatusPending  Status = 0
	StatusApproved Status = 1
	StatusRejected Status = 2
)

// Valid reports whether s is inside the known status range
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusRejected
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "invalid"
	}
}

// EntityType tags audit entries written for registration requests
const EntityType = "RegistrationRequest"

// Request is an application for a user account awaiting an administrator
type Request struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	StorageQuota int64
	SubmitTime   time.Time
	Status       Status
	OperatedTime *time.Time
}

// Summary is the list view of a request; it never carries the password
type Summary struct {
	ID           string
	Username     string
	Email        string
	StorageQuota int64
	SubmitTime   time.Time
	Status       Status
	OperatedTime *time.Time
}

// Summary returns the list view of r
func (r *Request) Summary() Summary {
	return Summary{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		StorageQuota: r.StorageQuota,
		SubmitTime:   r.SubmitTime,
		Status:       r.Status,
		OperatedTime: r.OperatedTime,
	}
}

// Repository is the registration request table as seen from one transaction
type Repository interface {
	// CountPending returns the number of pending requests for username
	CountPending(ctx context.Context, username string) (int, error)

	// Insert persists a new request
	Insert(ctx context.Context, req *Request) error

	// List returns every request ordered by submit time, then id
	List(ctx context.Context) ([]Summary, error)

	// FindPending returns all pending requests with the given id
	FindPending(ctx context.Context, id string) ([]Request, error)

	// SetStatus records the transition of a request
	SetStatus(ctx context.Context, id string, status Status, operatedAt time.Time) error
}

// Tx exposes the collaborators one operation uses, all bound to the same
// storage transaction
type Tx interface {
	Requests() Repository
	Accounts() account.Store
	Audit() audit.Recorder
}

// Transactor runs fn inside a single transaction, committing when fn
// returns nil and rolling back otherwise
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// EventKind mirrors the audit action that produced an event
type EventKind string

const (
	EventCreated EventKind = "create"
	EventUpdated EventKind = "update"
)

// Event describes a committed change to a request
type Event struct {
	Kind      EventKind
	RequestID string
	Username  string
	Email     string
	Status    Status
	At        time.Time
}

// Listener is notified after a change has been committed. Listeners must not
// block; failures are theirs to log.
type Listener interface {
	OnEvent(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, ev Event)

func (f ListenerFunc) OnEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}
