// Package auditexport ships the audit trail to S3 as JSON Lines objects.
// It only reads audit rows; retention of both the table and the bucket is
// handled elsewhere.
package auditexport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/timex"
	"github.com/google/uuid"
)

// DefaultBatchSize is the maximum number of events per object.
const DefaultBatchSize = 500

// DefaultSettle is how old an event must be before it is exported. Ids are
// assigned at insert time, so a row with a lower id can still become
// visible after a higher one; waiting lets such rows land first.
const DefaultSettle = 10 * time.Second

// ObjectKey returns the bucket key for an export made at t.
func ObjectKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("audit/%04d/%02d/%02d/%s.jsonl", t.Year(), int(t.Month()), t.Day(), uuid.New())
}

// Exporter uploads audit events with ids above its cursor, in id order. The
// cursor only moves after a successful upload, so a failed run is retried in
// full next time.
type Exporter struct {
	repomanager repomanager.RepositoryManager
	uploader    Uploader
	bucket      string
	batchSize   int
	settle      time.Duration
	clock       timex.Clock
	logger      logging.Logger

	mu     sync.Mutex
	cursor int64
}

// NewExporter exports events whose id is above afterID.
func NewExporter(m repomanager.RepositoryManager, up Uploader, bucket string, afterID int64, clock timex.Clock, logger logging.Logger) *Exporter {
	return &Exporter{
		repomanager: m,
		uploader:    up,
		bucket:      bucket,
		batchSize:   DefaultBatchSize,
		settle:      DefaultSettle,
		clock:       clock,
		logger:      logger.With("module", "audit_export"),
		cursor:      afterID,
	}
}

// Cursor returns the id of the last exported event.
func (e *Exporter) Cursor() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// ExportOnce uploads every settled event, one object per batch, and returns
// how many events were shipped.
func (e *Exporter) ExportOnce(ctx context.Context) (int, error) {
	return e.export(ctx, e.settle)
}

func (e *Exporter) export(ctx context.Context, settle time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0
	for {
		events, err := e.repomanager.Audit(e.repomanager.Conn()).AfterID(ctx, e.cursor, e.batchSize)
		if err != nil {
			return total, fmt.Errorf("read audit events: %w", err)
		}
		full := len(events) == e.batchSize

		settled := settledPrefix(events, e.clock.Now().Add(-settle))
		if len(settled) == 0 {
			return total, nil
		}

		if err := e.upload(ctx, settled); err != nil {
			return total, err
		}
		e.cursor = settled[len(settled)-1].ID
		total += len(settled)

		if !full || len(settled) < len(events) {
			return total, nil
		}
	}
}

// settledPrefix returns the leading events created no later than cutoff.
// The first unsettled event ends the prefix so the cursor never passes it.
func settledPrefix(events []models.AuditEvent, cutoff time.Time) []models.AuditEvent {
	for i, ev := range events {
		if ev.CreatedAt.After(cutoff) {
			return events[:i]
		}
	}
	return events
}

func (e *Exporter) upload(ctx context.Context, events []models.AuditEvent) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("encode audit event %d: %w", events[i].ID, err)
		}
	}

	key := ObjectKey(e.clock.Now())
	_, err := e.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	e.logger.Info(ctx, "audit events exported", "key", key, "count", len(events))
	return nil
}

// Run exports every interval until ctx is done, then makes a last attempt
// with a short deadline that ships every visible event.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := e.export(flushCtx, 0); err != nil {
				e.logger.Error(flushCtx, "final audit export failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := e.ExportOnce(ctx); err != nil {
				e.logger.Error(ctx, "audit export failed", "error", err)
			}
		}
	}
}
