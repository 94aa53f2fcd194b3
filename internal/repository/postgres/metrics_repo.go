package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/repository"
)

// MetricsRepo implements MetricsRepository using PostgreSQL.
type MetricsRepo struct{ db *DB }

var _ repository.MetricsRepository = (*MetricsRepo)(nil)

// NewMetricsRepo constructs a metrics repository.
func NewMetricsRepo(db *DB) *MetricsRepo { return &MetricsRepo{db: db} }

// AddSnippetMetrics folds cache-accumulated deltas into the daily row.
// The increment happens in SQL so concurrent flushes add up correctly.
func (r *MetricsRepo) AddSnippetMetrics(ctx context.Context, date time.Time, snippets, views int) error {
	const q = `
INSERT INTO snippet_metrics (date, total_snippets, total_views)
VALUES ($1,$2,$3)
ON CONFLICT (date) DO UPDATE SET
  total_snippets = snippet_metrics.total_snippets + EXCLUDED.total_snippets,
  total_views    = snippet_metrics.total_views + EXCLUDED.total_views`
	_, err := r.db.Pool.Exec(ctx, q, date, snippets, views)
	return err
}

// AddVSCodeMetrics adds actions and overwrites unique_clients with the
// distinct-clients count seen since the last flush. unique_clients is
// not additive: it converges only through flushes.
func (r *MetricsRepo) AddVSCodeMetrics(ctx context.Context, date time.Time, actions, uniqueClients int) error {
	const q = `
INSERT INTO vscode_extension_metrics (date, total_actions, unique_clients)
VALUES ($1,$2,$3)
ON CONFLICT (date) DO UPDATE SET
  total_actions  = vscode_extension_metrics.total_actions + EXCLUDED.total_actions,
  unique_clients = EXCLUDED.unique_clients`
	_, err := r.db.Pool.Exec(ctx, q, date, actions, uniqueClients)
	return err
}

// GetSnippetMetrics reads one daily row.
func (r *MetricsRepo) GetSnippetMetrics(ctx context.Context, date time.Time) (*model.SnippetMetrics, error) {
	const q = `SELECT date, total_snippets, total_views FROM snippet_metrics WHERE date=$1`
	var m model.SnippetMetrics
	err := r.db.Pool.QueryRow(ctx, q, date).Scan(&m.Date, &m.TotalSnippets, &m.TotalViews)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// TelemetryRepo implements TelemetryRepository using PostgreSQL.
type TelemetryRepo struct{ db *DB }

var _ repository.TelemetryRepository = (*TelemetryRepo)(nil)

// NewTelemetryRepo constructs a telemetry repository.
func NewTelemetryRepo(db *DB) *TelemetryRepo { return &TelemetryRepo{db: db} }

// InsertEvent appends one telemetry event row.
func (r *TelemetryRepo) InsertEvent(ctx context.Context, e *model.VSCodeTelemetryEvent) error {
	const q = `
INSERT INTO vscode_telemetry_events (id, event_type, client_id, event_time, metadata)
VALUES ($1,$2,$3,$4,$5)`
	_, err := r.db.Pool.Exec(ctx, q, e.ID, e.EventType, e.ClientID, e.Timestamp, e.Metadata)
	return err
}

// DeleteEventsBefore removes events older than cutoff.
func (r *TelemetryRepo) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM vscode_telemetry_events WHERE event_time < $1`
	tag, err := r.db.Pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertScanAudit records one secret-scan outcome.
func (r *TelemetryRepo) InsertScanAudit(ctx context.Context, snippetID string, status string, findings []string, at time.Time) error {
	const q = `
INSERT INTO scan_audit (snippet_id, status, findings, created_at)
VALUES ($1,$2,$3,$4)`
	_, err := r.db.Pool.Exec(ctx, q, snippetID, status, strings.Join(findings, ","), at)
	return err
}
