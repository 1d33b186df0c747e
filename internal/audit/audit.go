package audit

import (
	"context"
	"time"
)

// Action is the kind of change an entry records
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Entry is one audit log record
type Entry struct {
	ID         string
	EntityType string
	EntityID   string
	Action     Action
	Username   string
	CreatedAt  time.Time
}

// Recorder accepts audit entries inside the caller's transaction
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}
