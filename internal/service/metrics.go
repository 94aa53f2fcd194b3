// Package service contains application services for the snippet
// lifecycle, retrieval access control, diffing, metrics, and social
// features.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codely-app/snippetd/internal/cache"
	"github.com/codely-app/snippetd/internal/repository"
)

// flushEvery is the batching threshold: every flushEvery-th cache
// increment folds the accumulated cache value into the daily row. The
// trade is bounded staleness (at most flushEvery events or one
// scheduler tick) for an order of magnitude fewer durable writes.
const flushEvery = 10

// counterTTL keeps leftover cache counters alive long enough for the
// scheduled flush to fold them in.
const counterTTL = 48 * time.Hour

// MetricsService buffers per-day counters in the ephemeral cache and
// periodically flushes them into durable daily rollups. It holds no
// ambient global state: clock, cache, and store are injected.
type MetricsService struct {
	cache cache.Cache
	repo  repository.MetricsRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewMetricsService constructs a metrics aggregator.
func NewMetricsService(c cache.Cache, repo repository.MetricsRepository, log *zap.Logger) *MetricsService {
	return &MetricsService{cache: c, repo: repo, log: log, now: time.Now}
}

// NewMetricsServiceWithClock constructs an aggregator with an injected
// clock for tests.
func NewMetricsServiceWithClock(c cache.Cache, repo repository.MetricsRepository, log *zap.Logger, now func() time.Time) *MetricsService {
	return &MetricsService{cache: c, repo: repo, log: log, now: now}
}

func dayKey(prefix string, day time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, day.Format("2006-01-02"))
}

func (m *MetricsService) today() time.Time {
	return m.now().UTC().Truncate(24 * time.Hour)
}

// RecordSnippetCreation counts one snippet creation. Metrics are a
// side channel: failures are logged and never propagated to the
// caller's primary path.
func (m *MetricsService) RecordSnippetCreation(ctx context.Context) {
	m.bump(ctx, "snippet_metrics", func(ctx context.Context, day time.Time, n int) error {
		return m.repo.AddSnippetMetrics(ctx, day, n, 0)
	})
}

// RecordSnippetView counts one successful retrieval.
func (m *MetricsService) RecordSnippetView(ctx context.Context) {
	m.bump(ctx, "snippet_view_metrics", func(ctx context.Context, day time.Time, n int) error {
		return m.repo.AddSnippetMetrics(ctx, day, 0, n)
	})
}

// bump increments the per-day cache counter and, on every flushEvery-th
// event, persists the accumulated cache value and clears the key.
func (m *MetricsService) bump(ctx context.Context, prefix string, persist func(context.Context, time.Time, int) error) {
	day := m.today()
	key := dayKey(prefix, day)
	n, err := m.cache.IncrBy(ctx, key, 1, counterTTL)
	if err != nil {
		m.log.Warn("metrics cache increment failed", zap.String("key", key), zap.Error(err))
		return
	}
	if n%flushEvery != 0 {
		return
	}
	if err := persist(ctx, day, int(n)); err != nil {
		// The durable write failed; keep the cache value so the periodic
		// flush can recover the counts.
		m.log.Warn("metrics flush failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := m.cache.Del(ctx, key); err != nil {
		m.log.Warn("metrics cache clear failed", zap.String("key", key), zap.Error(err))
	}
}

// RecordExtensionAction counts one VSCode extension action and tracks
// the acting client in the per-day unique-client set.
func (m *MetricsService) RecordExtensionAction(ctx context.Context, clientID string) {
	day := m.today()
	actionsKey := dayKey("vscode_metrics", day)
	clientsKey := dayKey("vscode_clients", day)

	if err := m.cache.SAdd(ctx, clientsKey, clientID, counterTTL); err != nil {
		m.log.Warn("metrics client set add failed", zap.Error(err))
	}
	n, err := m.cache.IncrBy(ctx, actionsKey, 1, counterTTL)
	if err != nil {
		m.log.Warn("metrics cache increment failed", zap.String("key", actionsKey), zap.Error(err))
		return
	}
	if n%flushEvery != 0 {
		return
	}
	if err := m.flushVSCode(ctx, day, int(n)); err != nil {
		m.log.Warn("vscode metrics flush failed", zap.Error(err))
	}
}

func (m *MetricsService) flushVSCode(ctx context.Context, day time.Time, actions int) error {
	clientsKey := dayKey("vscode_clients", day)
	uniques, err := m.cache.SCard(ctx, clientsKey)
	if err != nil {
		return err
	}
	// unique_clients is overwritten, not added: it is "distinct clients
	// seen since the last flush" and converges only through flushes.
	if err := m.repo.AddVSCodeMetrics(ctx, day, actions, uniques); err != nil {
		return err
	}
	return m.cache.Del(ctx, dayKey("vscode_metrics", day), clientsKey)
}

// FlushDay folds any leftover cache counters for the given day into the
// durable rollups. Idempotent: flushing an already-empty day is a
// no-op. This is the entry point the scheduled job calls, guaranteeing
// counts survive days whose traffic never hits the modulo threshold.
func (m *MetricsService) FlushDay(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)

	creationKey := dayKey("snippet_metrics", day)
	viewKey := dayKey("snippet_view_metrics", day)

	creations, _, err := m.cache.GetInt64(ctx, creationKey)
	if err != nil {
		return err
	}
	views, _, err := m.cache.GetInt64(ctx, viewKey)
	if err != nil {
		return err
	}
	if creations > 0 || views > 0 {
		if err := m.repo.AddSnippetMetrics(ctx, day, int(creations), int(views)); err != nil {
			return err
		}
		if err := m.cache.Del(ctx, creationKey, viewKey); err != nil {
			return err
		}
	}

	actionsKey := dayKey("vscode_metrics", day)
	actions, _, err := m.cache.GetInt64(ctx, actionsKey)
	if err != nil {
		return err
	}
	uniques, err := m.cache.SCard(ctx, dayKey("vscode_clients", day))
	if err != nil {
		return err
	}
	if actions > 0 || uniques > 0 {
		if err := m.repo.AddVSCodeMetrics(ctx, day, int(actions), uniques); err != nil {
			return err
		}
		if err := m.cache.Del(ctx, actionsKey, dayKey("vscode_clients", day)); err != nil {
			return err
		}
	}
	return nil
}

// FlushNow flushes today's leftovers; wired to the recurring job.
func (m *MetricsService) FlushNow(ctx context.Context) error {
	return m.FlushDay(ctx, m.today())
}
