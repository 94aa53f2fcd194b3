package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/postcommit"
	"github.com/codely-app/snippetd/internal/repository"
)

// EventInput is one incoming extension telemetry event.
type EventInput struct {
	EventType string
	ClientID  string
	Metadata  string
}

const maxTelemetryBatch = 100

// TelemetryService ingests VSCode extension telemetry. Aggregate
// counters are the primary work; the detailed event rows are deferred
// post-commit side effects whose failures never reach the caller.
type TelemetryService struct {
	events  repository.TelemetryRepository
	metrics *MetricsService
	log     *zap.Logger
	now     func() time.Time
}

// NewTelemetryService constructs the telemetry ingest service.
func NewTelemetryService(events repository.TelemetryRepository, metrics *MetricsService, log *zap.Logger) *TelemetryService {
	return &TelemetryService{events: events, metrics: metrics, log: log, now: time.Now}
}

// Ingest records a batch of extension events: extension metrics are
// updated synchronously, then the detailed rows are written best-effort.
func (t *TelemetryService) Ingest(ctx context.Context, events []EventInput) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) > maxTelemetryBatch {
		return fmt.Errorf("%w: batch too large (%d > %d)", errs.ErrValidation, len(events), maxTelemetryBatch)
	}
	for i, e := range events {
		if e.EventType == "" || e.ClientID == "" {
			return fmt.Errorf("%w: event[%d] missing type or client id", errs.ErrValidation, i)
		}
	}

	for _, e := range events {
		t.metrics.RecordExtensionAction(ctx, e.ClientID)
	}

	q := postcommit.New()
	now := t.now()
	for _, e := range events {
		e := e
		q.Add("telemetry-event", func(ctx context.Context) error {
			id, err := uuid.NewV4()
			if err != nil {
				return err
			}
			return t.events.InsertEvent(ctx, &model.VSCodeTelemetryEvent{
				ID:        id,
				EventType: e.EventType,
				ClientID:  e.ClientID,
				Timestamp: now,
				Metadata:  e.Metadata,
			})
		})
	}
	q.Drain(ctx, t.log)
	return nil
}

// Cleanup deletes detailed events older than the retention window.
// Idempotent; wired to the recurring retention job.
func (t *TelemetryService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := t.now().Add(-retention)
	n, err := t.events.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.log.Info("telemetry retention cleanup", zap.Int64("deleted", n))
	}
	return n, nil
}
