package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codely-app/snippetd/internal/cache"
	"github.com/codely-app/snippetd/internal/errs"
)

func newTelemetryFixture(now *time.Time) (*TelemetryService, *fakeTelemetryRepo, *fakeMetricsRepo) {
	clock := func() time.Time { return *now }
	events := newFakeTelemetryRepo()
	metricsRepo := newFakeMetricsRepo()
	metrics := NewMetricsServiceWithClock(cache.NewMemoryWithClock(clock), metricsRepo, zap.NewNop(), clock)
	svc := NewTelemetryService(events, metrics, zap.NewNop())
	svc.now = clock
	return svc, events, metricsRepo
}

func TestIngest_RecordsEventsAndMetrics(t *testing.T) {
	now := testNow
	svc, events, metricsRepo := newTelemetryFixture(&now)
	ctx := context.Background()
	day := testNow.UTC().Truncate(24 * time.Hour)

	batch := make([]EventInput, 10)
	for i := range batch {
		batch[i] = EventInput{EventType: "snippet_shared", ClientID: "client-1", Metadata: `{"ok":true}`}
	}
	require.NoError(t, svc.Ingest(ctx, batch))

	require.Len(t, events.events, 10)
	require.Equal(t, "snippet_shared", events.events[0].EventType)
	require.Equal(t, 10, metricsRepo.vscode[day].TotalActions)
	require.Equal(t, 1, metricsRepo.vscode[day].UniqueClients)
}

func TestIngest_Validation(t *testing.T) {
	now := testNow
	svc, events, _ := newTelemetryFixture(&now)
	ctx := context.Background()

	require.NoError(t, svc.Ingest(ctx, nil))

	err := svc.Ingest(ctx, []EventInput{{EventType: "", ClientID: "c"}})
	require.ErrorIs(t, err, errs.ErrValidation)

	err = svc.Ingest(ctx, []EventInput{{EventType: "e", ClientID: ""}})
	require.ErrorIs(t, err, errs.ErrValidation)

	big := make([]EventInput, maxTelemetryBatch+1)
	for i := range big {
		big[i] = EventInput{EventType: "e", ClientID: "c"}
	}
	err = svc.Ingest(ctx, big)
	require.ErrorIs(t, err, errs.ErrValidation)

	require.Empty(t, events.events)
}

func TestIngest_EventWriteFailureIsSwallowed(t *testing.T) {
	now := testNow
	svc, events, metricsRepo := newTelemetryFixture(&now)
	ctx := context.Background()
	day := testNow.UTC().Truncate(24 * time.Hour)

	events.insertErr = errs.ErrNotFound
	batch := make([]EventInput, 10)
	for i := range batch {
		batch[i] = EventInput{EventType: "e", ClientID: "c"}
	}
	require.NoError(t, svc.Ingest(ctx, batch))

	// Aggregates still landed even though the detail rows did not.
	require.Empty(t, events.events)
	require.Equal(t, 10, metricsRepo.vscode[day].TotalActions)
}

func TestCleanup_RemovesOldEvents(t *testing.T) {
	now := testNow
	svc, events, _ := newTelemetryFixture(&now)
	ctx := context.Background()

	require.NoError(t, svc.Ingest(ctx, []EventInput{{EventType: "old", ClientID: "c"}}))

	now = now.Add(100 * 24 * time.Hour)
	require.NoError(t, svc.Ingest(ctx, []EventInput{{EventType: "new", ClientID: "c"}}))

	deleted, err := svc.Cleanup(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
	require.Len(t, events.events, 1)
	require.Equal(t, "new", events.events[0].EventType)

	deleted, err = svc.Cleanup(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	require.Zero(t, deleted)
}
