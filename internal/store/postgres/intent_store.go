package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/intent"
)

// IntentStore implements domain.IntentStore using PostgreSQL. Each row keeps
// the intent, the evaluation it was built from and, once reconciled, the
// receipt.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore creates a new IntentStore backed by the given pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

const intentSelectCols = `intent, evaluation, receipt, reconciled_at`

// Insert records an emitted intent. Re-inserting the same correlation id is
// a no-op.
func (s *IntentStore) Insert(ctx context.Context, ti domain.TradeIntent, eval domain.EvaluationResult) error {
	intentJSON, err := json.Marshal(ti)
	if err != nil {
		return fmt.Errorf("postgres: marshal intent %s: %w", ti.CorrelationID, err)
	}
	evalJSON, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("postgres: marshal evaluation %s: %w", ti.CorrelationID, err)
	}
	wire, err := intent.Marshal(ti)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	const query = `
		INSERT INTO intents (
			correlation_id, candidate_id, strategy, asset,
			size_usd, expected_pnl_usd, success_prob, snapshot_version,
			created_at, expires_at, intent, evaluation, wire
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13
		) ON CONFLICT (correlation_id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		ti.CorrelationID, eval.CandidateID, ti.Strategy, ti.Asset,
		ti.SizeUSD, ti.ExpectedPnLUSD, ti.SuccessProb, int64(ti.SnapshotVersion),
		ti.CreatedAt, ti.ExpiresAt, intentJSON, evalJSON, wire,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert intent %s: %w", ti.CorrelationID, err)
	}
	return nil
}

// MarkReconciled attaches a receipt. It returns domain.ErrNotFound when the
// intent was never recorded.
func (s *IntentStore) MarkReconciled(ctx context.Context, correlationID string, r domain.ExecutionReceipt) error {
	receiptJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal receipt %s: %w", correlationID, err)
	}
	reconciledAt := r.CompletedAt
	if reconciledAt.IsZero() {
		reconciledAt = time.Now().UTC()
	}

	const query = `
		UPDATE intents
		SET receipt = $2, success = $3, realized_pnl_usd = $4, reconciled_at = $5
		WHERE correlation_id = $1`
	tag, err := s.pool.Exec(ctx, query, correlationID, receiptJSON, r.Success, r.RealizedPnLUSD, reconciledAt)
	if err != nil {
		return fmt.Errorf("postgres: reconcile intent %s: %w", correlationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: reconcile intent %s: %w", correlationID, domain.ErrNotFound)
	}
	return nil
}

// GetByCorrelationID returns one record or domain.ErrNotFound.
func (s *IntentStore) GetByCorrelationID(ctx context.Context, correlationID string) (domain.IntentRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+intentSelectCols+` FROM intents WHERE correlation_id = $1`, correlationID)
	rec, err := scanIntent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IntentRecord{}, fmt.Errorf("postgres: intent %s: %w", correlationID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.IntentRecord{}, fmt.Errorf("postgres: get intent %s: %w", correlationID, err)
	}
	return rec, nil
}

// ListReconciled returns reconciled intents oldest first, optionally only
// those reconciled at or after opts.Since.
func (s *IntentStore) ListReconciled(ctx context.Context, opts domain.ListOpts) ([]domain.IntentRecord, error) {
	query, args := listReconciledQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reconciled intents: %w", err)
	}
	defer rows.Close()

	var out []domain.IntentRecord
	for rows.Next() {
		rec, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan intent: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list reconciled intents rows: %w", err)
	}
	return out, nil
}

func listReconciledQuery(opts domain.ListOpts) (string, []any) {
	query := `SELECT ` + intentSelectCols + ` FROM intents WHERE reconciled_at IS NOT NULL`
	var args []any
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND reconciled_at >= $%d", len(args))
	}
	query += " ORDER BY reconciled_at ASC, correlation_id ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func scanIntent(row pgx.Row) (domain.IntentRecord, error) {
	var (
		rec                               domain.IntentRecord
		intentJSON, evalJSON, receiptJSON []byte
		reconciledAt                      *time.Time
	)
	if err := row.Scan(&intentJSON, &evalJSON, &receiptJSON, &reconciledAt); err != nil {
		return domain.IntentRecord{}, err
	}
	if err := json.Unmarshal(intentJSON, &rec.Intent); err != nil {
		return domain.IntentRecord{}, fmt.Errorf("unmarshal intent: %w", err)
	}
	if err := json.Unmarshal(evalJSON, &rec.Evaluation); err != nil {
		return domain.IntentRecord{}, fmt.Errorf("unmarshal evaluation: %w", err)
	}
	if receiptJSON != nil {
		var r domain.ExecutionReceipt
		if err := json.Unmarshal(receiptJSON, &r); err != nil {
			return domain.IntentRecord{}, fmt.Errorf("unmarshal receipt: %w", err)
		}
		rec.Receipt = &r
	}
	rec.ReconciledAt = reconciledAt
	return rec, nil
}

var _ domain.IntentStore = (*IntentStore)(nil)
