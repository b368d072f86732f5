package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	archivePageSize  = 500
	archivePartSize  = 8 * 1024 * 1024
)

// ArchiveConfig controls where and how reconciled intents are archived.
type ArchiveConfig struct {
	Prefix string
	// PageSize bounds each ListReconciled query.
	PageSize int
	Clock    func() time.Time
}

// IntentArchiver implements domain.Archiver by copying reconciled intents
// into one JSONL object per run. Rows are not deleted from the intent store;
// pruning is a separate, explicit step after the archive is verified.
type IntentArchiver struct {
	writer  domain.BlobWriter
	intents domain.IntentStore
	audit   domain.AuditStore
	cfg     ArchiveConfig
}

// NewArchiver creates an archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, intents domain.IntentStore, audit domain.AuditStore, cfg ArchiveConfig) *IntentArchiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "archive/intents/"
	}
	if !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = archivePageSize
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &IntentArchiver{writer: writer, intents: intents, audit: audit, cfg: cfg}
}

// ArchiveReconciled uploads every intent reconciled at or after since and
// returns how many were archived. Nothing is written when there is nothing
// to archive.
func (a *IntentArchiver) ArchiveReconciled(ctx context.Context, since time.Time) (int64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var count int64
	for offset := 0; ; offset += a.cfg.PageSize {
		page, err := a.intents.ListReconciled(ctx, domain.ListOpts{
			Since:  &since,
			Limit:  a.cfg.PageSize,
			Offset: offset,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive query: %w", err)
		}
		for _, rec := range page {
			if err := enc.Encode(newArchiveLine(rec)); err != nil {
				return 0, fmt.Errorf("s3blob: archive encode %s: %w", rec.Intent.CorrelationID, err)
			}
		}
		count += int64(len(page))
		if len(page) < a.cfg.PageSize {
			break
		}
	}
	if count == 0 {
		return 0, nil
	}

	path := ArchivePath(a.cfg.Prefix, since, a.cfg.Clock())
	if err := a.writer.PutMultipart(ctx, path, &buf, archivePartSize); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.intents", map[string]any{
			"path":  path,
			"count": count,
			"since": since.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return count, nil
}

// ArchivePath partitions archives by the day the run covers from:
//
//	archive/intents/2026/03/02/20260302T000000Z-20260303T030000Z.jsonl
func ArchivePath(prefix string, since, until time.Time) string {
	const stamp = "20060102T150405Z"
	since, until = since.UTC(), until.UTC()
	return fmt.Sprintf("%s%s/%s-%s.jsonl", prefix, since.Format("2006/01/02"), since.Format(stamp), until.Format(stamp))
}

// archiveLine is one JSONL record.
type archiveLine struct {
	Intent       domain.TradeIntent       `json:"intent"`
	Evaluation   domain.EvaluationResult  `json:"evaluation"`
	Receipt      *domain.ExecutionReceipt `json:"receipt,omitempty"`
	ReconciledAt *time.Time               `json:"reconciled_at,omitempty"`
}

func newArchiveLine(rec domain.IntentRecord) archiveLine {
	return archiveLine{
		Intent:       rec.Intent,
		Evaluation:   rec.Evaluation,
		Receipt:      rec.Receipt,
		ReconciledAt: rec.ReconciledAt,
	}
}

var _ domain.Archiver = (*IntentArchiver)(nil)
