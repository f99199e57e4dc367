package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollupDaily(t *testing.T) {
	recorder := newTestRecorder(t)
	rollup := NewRollup(recorder.db)
	ctx := context.Background()

	day := time.Date(2026, time.August, 22, 0, 0, 0, 0, time.UTC)
	alice, bob := int64(1), int64(2)

	seed := []*Event{
		{WorkspaceID: 1, Kind: KindAPIRequest, UserID: &alice, StatusCode: 200, DurationMS: 10, OccurredAt: day.Add(1 * time.Hour)},
		{WorkspaceID: 1, Kind: KindAPIRequest, UserID: &alice, StatusCode: 404, DurationMS: 20, OccurredAt: day.Add(2 * time.Hour)},
		{WorkspaceID: 1, Kind: KindAPIRequest, UserID: &bob, StatusCode: 200, DurationMS: 30, OccurredAt: day.Add(3 * time.Hour)},
		{WorkspaceID: 1, Kind: KindWebhookDelivery, OccurredAt: day.Add(4 * time.Hour)},
		// Next day and other workspace must not leak into workspace 1's row.
		{WorkspaceID: 1, Kind: KindAPIRequest, UserID: &alice, StatusCode: 200, OccurredAt: day.AddDate(0, 0, 1)},
		{WorkspaceID: 2, Kind: KindAPIRequest, UserID: &alice, StatusCode: 500, OccurredAt: day.Add(5 * time.Hour)},
	}
	for _, e := range seed {
		require.NoError(t, recorder.Record(ctx, e))
	}

	require.NoError(t, rollup.RollupDaily(ctx, day))

	stats, err := rollup.DailyStats(ctx, 1, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, stats, 1)

	got := stats[0]
	assert.Equal(t, int64(3), got.APIRequests)
	assert.Equal(t, int64(1), got.WebhookDeliveries)
	assert.Equal(t, int64(1), got.ErrorCount)
	assert.Equal(t, int64(15), got.AvgDurationMS) // (10+20+30+0)/4
	assert.Equal(t, int64(2), got.UniqueUsers)
}

func TestRollupDailyIsIdempotent(t *testing.T) {
	recorder := newTestRecorder(t)
	rollup := NewRollup(recorder.db)
	ctx := context.Background()

	day := time.Date(2026, time.August, 22, 0, 0, 0, 0, time.UTC)
	require.NoError(t, recorder.Record(ctx, &Event{WorkspaceID: 1, Kind: KindAPIRequest, OccurredAt: day.Add(time.Hour)}))
	require.NoError(t, rollup.RollupDaily(ctx, day))

	// A late event arrives and the day reruns; counts overwrite, not add.
	require.NoError(t, recorder.Record(ctx, &Event{WorkspaceID: 1, Kind: KindAPIRequest, OccurredAt: day.Add(2 * time.Hour)}))
	require.NoError(t, rollup.RollupDaily(ctx, day))

	stats, err := rollup.DailyStats(ctx, 1, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].APIRequests)
}

func TestPruneEvents(t *testing.T) {
	recorder := newTestRecorder(t)
	rollup := NewRollup(recorder.db)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -120)
	require.NoError(t, recorder.Record(ctx, &Event{WorkspaceID: 1, Kind: KindAPIRequest, OccurredAt: old}))
	require.NoError(t, recorder.Record(ctx, &Event{WorkspaceID: 1, Kind: KindAPIRequest}))

	pruned, err := rollup.PruneEvents(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	// Monthly counters survive the prune.
	counters, err := recorder.CurrentCounters(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.APIRequests)

	var remaining int
	require.NoError(t, recorder.db.QueryRow(`SELECT COUNT(*) FROM usage_events`).Scan(&remaining))
	assert.Equal(t, 1, remaining)
}
