package domain

import (
	"context"
	"time"
)

// AuditStore persists audit log entries.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionStore persists execution records reported by the executor.
type ExecutionStore interface {
	Record(ctx context.Context, rec AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]AuditLog, error)
}
