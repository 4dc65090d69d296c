package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

func TestIngestor_AlertScenario(t *testing.T) {
	f := newIngestFixture("A", "B")
	ctx := context.Background()

	f.ingest.Accept(ctx, observation("A", 100, 10, 6))
	f.ingest.Accept(ctx, observation("B", 50, 10, 1))

	alerts := f.notes.byKind(domain.KindAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "A", alerts[0].Symbol)
	assert.NotEmpty(t, alerts[0].ID)

	f.clock.Advance(10 * time.Second)
	f.ingest.Accept(ctx, observation("A", 101, 10, 6))
	assert.Len(t, f.notes.byKind(domain.KindAlert), 1, "cooldown suppresses the second alert")
}

func TestIngestor_ReportsOnlyOnCompleteBatch(t *testing.T) {
	f := newIngestFixture("A", "B")
	ctx := context.Background()

	f.ingest.Accept(ctx, observation("A", 100, 10, 1))
	f.ingest.Accept(ctx, observation("A", 101, 10, 1))
	assert.Empty(t, f.notes.byKind(domain.KindReport))

	f.ingest.Accept(ctx, observation("B", 50, 10, 1))
	reports := f.notes.byKind(domain.KindReport)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Text, "A  101.0000")
	assert.Len(t, f.notes.byKind(domain.KindHourly), 1)
	assert.Equal(t, 2, f.store.Len())
}

func TestIngestor_BaselineCommitsOnDelivery(t *testing.T) {
	f := newIngestFixture("A")
	ctx := context.Background()

	f.ingest.Accept(ctx, observation("A", 100, 10, 1))
	reports := f.notes.byKind(domain.KindReport)
	require.Len(t, reports, 1)
	assert.Nil(t, f.throttle.State().Baseline, "no baseline before delivery")

	reports[0].OnDelivered()
	base := f.throttle.State().Baseline
	require.NotNil(t, base)
	assert.InDelta(t, 1.0, base.Entries["A"].ChangePercent, 1e-9)

	f.clock.Advance(20 * time.Minute)
	f.ingest.Accept(ctx, observation("A", 100, 10, 1.1))
	assert.Len(t, f.notes.byKind(domain.KindReport), 1, "immaterial change is not reported")

	f.ingest.Accept(ctx, observation("A", 100, 10, 2))
	assert.Len(t, f.notes.byKind(domain.KindReport), 2)
}

func TestIngestor_RecordFailureDoesNotBlock(t *testing.T) {
	f := newIngestFixture("A")
	f.records.err = errors.New("disk full")

	f.ingest.Accept(context.Background(), observation("A", 1, 1, 0))
	_, ok := f.store.Get("A")
	assert.True(t, ok)
	assert.Equal(t, 1, f.records.len())
}
