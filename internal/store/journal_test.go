package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/engine"
)

func report(seq int64) engine.StatReport {
	return engine.StatReport{
		Seq:                  seq,
		Reason:               "timer",
		Time:                 1000 * seq,
		ResolveTime:          1000*seq + 20,
		EstimatedResolveTime: 20,
		TimelineSize:         4,
		ResolveDuration:      3,
		DispatchDuration:     1,
		TotalDuration:        5,
		CacheHit:             seq%2 == 0,
	}
}

func TestStatReports_WriteAndRead(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, s.WriteStatReport(ctx, report(seq)))
	}
	require.NoError(t, s.WriteStatReport(ctx, report(3)), "duplicate seq is ignored")

	all, err := s.ReadStatReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, report(2), all[1])

	latest, err := s.ReadStatReports(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(4), latest[0].Seq)
	assert.Equal(t, int64(5), latest[1].Seq)

	last, err := s.LastStatSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}

func TestStatReports_Empty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	reports, err := s.ReadStatReports(ctx, 10)
	require.NoError(t, err)
	assert.NotNil(t, reports)
	assert.Empty(t, reports)

	last, err := s.LastStatSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestTimelineCallbacks_WriteAndRead(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	start := engine.TimelineCallback{
		Time: 1000, InstanceID: "cb@1000", ObjectID: "cb",
		Edge: engine.CallbackStart, Callback: "onPlay",
		Data: map[string]any{"part": "p1"},
	}
	stop := engine.TimelineCallback{
		Time: 5000, InstanceID: "cb@1000", ObjectID: "cb",
		Edge: engine.CallbackStop, Callback: "onStop",
	}
	require.NoError(t, s.WriteTimelineCallback(ctx, stop))
	require.NoError(t, s.WriteTimelineCallback(ctx, start))
	require.NoError(t, s.WriteTimelineCallback(ctx, start))

	cbs, err := s.ReadTimelineCallbacks(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []engine.TimelineCallback{start, stop}, cbs)

	latest, err := s.ReadTimelineCallbacks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []engine.TimelineCallback{stop}, latest)
}

func TestJournal_WritesRelevantEvents(t *testing.T) {
	s := createTestStore(t)
	j := NewJournal(s, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	r := report(1)
	j.Listen(engine.Event{Kind: engine.EventStatReport, Stats: &r})
	j.Listen(engine.Event{Kind: engine.EventTimelineCallback, Callback: &engine.TimelineCallback{
		Time: 10, InstanceID: "a@0", ObjectID: "a", Edge: engine.CallbackStart, Callback: "go",
	}})
	j.Listen(engine.Event{Kind: engine.EventInfo, Message: "not journaled"})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("journal did not stop")
	}

	reports, err := s.ReadStatReports(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []engine.StatReport{r}, reports)

	cbs, err := s.ReadTimelineCallbacks(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, cbs, 1)
	assert.Equal(t, "go", cbs[0].Callback)
	assert.Zero(t, j.Dropped())
}

func TestJournal_DropsWhenFull(t *testing.T) {
	s := createTestStore(t)
	j := NewJournal(s, 1)

	r := report(1)
	j.Listen(engine.Event{Kind: engine.EventStatReport, Stats: &r})
	j.Listen(engine.Event{Kind: engine.EventStatReport, Stats: &r})

	assert.Equal(t, int64(1), j.Dropped())
}
