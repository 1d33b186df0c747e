package registration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"docreg/internal/account"
	"docreg/internal/audit"
	apperrors "docreg/internal/errors"
	"docreg/internal/limiter"
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	// DefaultRole is assigned to accounts created on approval
	DefaultRole string
	// Approvals serializes approvals per username inside this process
	Approvals *limiter.KeyLimiter
	Tracer    trace.Tracer
	Listeners []Listener
	// Clock returns the current time; timestamps are stored in milliseconds
	Clock func() time.Time
}

// Service owns the registration request lifecycle: creation with uniqueness
// checks, listing, and the single pending -> approved/rejected transition.
// Every public method runs in exactly one transaction.
type Service struct {
	db          Transactor
	defaultRole string
	approvals   *limiter.KeyLimiter
	tracer      trace.Tracer
	listeners   []Listener
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a registration service over db
func NewService(db Transactor, opts Options, logger *slog.Logger) *Service {
	if opts.DefaultRole == "" {
		opts.DefaultRole = account.DefaultRole
	}
	if opts.Approvals == nil {
		opts.Approvals = limiter.NewKeyLimiter(0)
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("registration")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	clock := opts.Clock

	return &Service{
		db:          db,
		defaultRole: opts.DefaultRole,
		approvals:   opts.Approvals,
		tracer:      opts.Tracer,
		listeners:   opts.Listeners,
		logger:      logger,
		now: func() time.Time {
			return clock().UTC().Truncate(time.Millisecond)
		},
		newID: func() string { return uuid.New().String() },
	}
}

// Create validates username uniqueness and persists req as a pending
// request. It returns the new request ID.
func (s *Service) Create(ctx context.Context, req Request) (id string, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.Create",
		trace.WithAttributes(attribute.String("username", req.Username)))
	defer func() { endSpan(span, err) }()

	if req.Status != StatusPending {
		return "", apperrors.ErrInvalidStatus
	}

	err = s.db.WithinTx(ctx, func(tx Tx) error {
		pending, err := tx.Requests().CountPending(ctx, req.Username)
		if err != nil {
			return fmt.Errorf("count pending requests: %w", err)
		}
		if pending > 0 {
			return apperrors.ErrDuplicatePendingRegistration
		}

		taken, err := tx.Accounts().ActiveExists(ctx, req.Username)
		if err != nil {
			return fmt.Errorf("check existing account: %w", err)
		}
		if taken {
			return apperrors.ErrUsernameTaken
		}

		req.ID = s.newID()
		req.SubmitTime = s.now()
		req.OperatedTime = nil

		if err := tx.Requests().Insert(ctx, &req); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}

		return tx.Audit().Record(ctx, audit.Entry{
			ID:         s.newID(),
			EntityType: EntityType,
			EntityID:   req.ID,
			Action:     audit.ActionCreate,
			Username:   req.Username,
			CreatedAt:  req.SubmitTime,
		})
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("registration request created", "id", req.ID, "username", req.Username)
	s.notify(ctx, Event{
		Kind:      EventCreated,
		RequestID: req.ID,
		Username:  req.Username,
		Email:     req.Email,
		Status:    req.Status,
		At:        req.SubmitTime,
	})

	return req.ID, nil
}

// ListAll returns every stored request ordered by submit time
func (s *Service) ListAll(ctx context.Context) (summaries []Summary, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.ListAll")
	defer func() { endSpan(span, err) }()

	err = s.db.WithinTx(ctx, func(tx Tx) error {
		var err error
		summaries, err = tx.Requests().List(ctx)
		if err != nil {
			return fmt.Errorf("list requests: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(summaries)))
	return summaries, nil
}

// UpdateStatus moves the pending request id to status and returns the
// operation time. Approval provisions an account in the same transaction;
// if provisioning fails nothing is committed and the request stays pending.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (operatedAt time.Time, err error) {
	ctx, span := s.tracer.Start(ctx, "registration.UpdateStatus",
		trace.WithAttributes(
			attribute.String("request_id", id),
			attribute.Int("status", int(status)),
		))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return time.Time{}, apperrors.ErrInvalidStatus
	}

	var (
		req  Request
		held string
	)
	defer func() {
		if held != "" {
			s.approvals.Release(held)
		}
	}()

	err = s.db.WithinTx(ctx, func(tx Tx) error {
		matches, err := tx.Requests().FindPending(ctx, id)
		if err != nil {
			return fmt.Errorf("find pending request: %w", err)
		}
		switch len(matches) {
		case 0:
			return apperrors.ErrNotFound
		case 1:
			req = matches[0]
		default:
			return apperrors.Wrap(apperrors.ErrConflict,
				fmt.Errorf("%d pending requests share id %s", len(matches), id))
		}

		if status == StatusApproved {
			if !s.approvals.TryAcquire(req.Username) {
				return apperrors.Wrap(apperrors.ErrConflict,
					fmt.Errorf("approval for %s already in progress", req.Username))
			}
			held = req.Username
		}

		operatedAt = s.now()
		if err := tx.Requests().SetStatus(ctx, id, status, operatedAt); err != nil {
			return fmt.Errorf("set status: %w", err)
		}

		if status == StatusApproved {
			acct := &account.Account{
				Username:     req.Username,
				PasswordHash: req.PasswordHash,
				Email:        req.Email,
				Role:         s.defaultRole,
				StorageQuota: req.StorageQuota,
				Onboarding:   true,
				CreatedAt:    operatedAt,
			}
			if err := tx.Accounts().Create(ctx, acct); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
		}

		return tx.Audit().Record(ctx, audit.Entry{
			ID:         s.newID(),
			EntityType: EntityType,
			EntityID:   id,
			Action:     audit.ActionUpdate,
			Username:   req.Username,
			CreatedAt:  operatedAt,
		})
	})
	if err != nil {
		return time.Time{}, err
	}

	s.logger.Info("registration request operated",
		"id", id,
		"username", req.Username,
		"status", status.String(),
	)
	s.notify(ctx, Event{
		Kind:      EventUpdated,
		RequestID: id,
		Username:  req.Username,
		Email:     req.Email,
		Status:    status,
		At:        operatedAt,
	})

	return operatedAt, nil
}

func (s *Service) notify(ctx context.Context, ev Event) {
	for _, l := range s.listeners {
		l.OnEvent(ctx, ev)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.KindOf(err).String())
	}
	span.End()
}
