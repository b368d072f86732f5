package domain

import (
	"context"
	"time"
)

// ListOpts controls pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// IntentRecord is a persisted intent together with its evaluation and, once
// known, its receipt.
type IntentRecord struct {
	Intent       TradeIntent
	Evaluation   EvaluationResult
	Receipt      *ExecutionReceipt
	ReconciledAt *time.Time
}

// IntentStore persists emitted intents for audit and feedback correlation.
type IntentStore interface {
	Insert(ctx context.Context, intent TradeIntent, eval EvaluationResult) error
	MarkReconciled(ctx context.Context, correlationID string, receipt ExecutionReceipt) error
	GetByCorrelationID(ctx context.Context, correlationID string) (IntentRecord, error)
	ListReconciled(ctx context.Context, opts ListOpts) ([]IntentRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
