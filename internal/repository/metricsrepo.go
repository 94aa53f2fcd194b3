package repository

import (
	"context"
	"time"

	"github.com/codely-app/snippetd/internal/model"
)

// MetricsRepository persists daily rollup rows. All additions are
// expressed as in-database increment upserts so concurrent flushes
// never lose counts.
type MetricsRepository interface {
	// AddSnippetMetrics adds the given deltas to the row for date,
	// creating it if missing.
	AddSnippetMetrics(ctx context.Context, date time.Time, snippets, views int) error

	// AddVSCodeMetrics adds actions to the row for date and overwrites
	// unique_clients with the count of distinct clients seen since the
	// last flush.
	AddVSCodeMetrics(ctx context.Context, date time.Time, actions, uniqueClients int) error

	// GetSnippetMetrics reads one daily row (nil if absent).
	GetSnippetMetrics(ctx context.Context, date time.Time) (*model.SnippetMetrics, error)
}

// TelemetryRepository stores detailed extension events.
type TelemetryRepository interface {
	// InsertEvent appends one telemetry event row.
	InsertEvent(ctx context.Context, e *model.VSCodeTelemetryEvent) error
	// DeleteEventsBefore removes events older than cutoff and returns how
	// many were deleted. Idempotent retention entry point.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// InsertScanAudit records a secret-scan outcome for a snippet,
	// best-effort.
	InsertScanAudit(ctx context.Context, snippetID string, status string, findings []string, at time.Time) error
}
