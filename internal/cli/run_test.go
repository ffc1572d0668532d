package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/store"
)

func TestRun_JournalsUntilCancelled(t *testing.T) {
	fx := newFixture(t)
	db := fx.path("tsr.db")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := executeContext(t, ctx, "run", fx.config,
		"--timeline", fx.timeline,
		"--datastore", fx.datastore,
		"--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Conductor started with 2 device(s).")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	reports, err := st.ReadStatReports(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, reports, "at least the first resolve cycle is journaled")
	assert.Equal(t, int64(1), reports[0].Seq)

	ds, err := st.LoadDatastore(context.Background())
	require.NoError(t, err)
	require.Contains(t, ds, "headline", "the datastore document is persisted")
	assert.Equal(t, "Breaking", ds["headline"].Value)
}

func TestRun_ResumesStatSeq(t *testing.T) {
	fx := newFixture(t)
	db := fx.path("tsr.db")
	seedJournal(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := executeContext(t, ctx, "run", fx.config, "--timeline", fx.timeline, "--db", db)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	reports, err := st.ReadStatReports(context.Background(), 0)
	require.NoError(t, err)
	require.Greater(t, len(reports), 2)
	assert.Equal(t, int64(3), reports[2].Seq)
}

func TestRun_InvalidConfig(t *testing.T) {
	fx := newFixture(t)
	cfg := writeFile(t, fx.dir, "bad.cue", `mappings: gfx: {device: "abstract", deviceId: "nope"}`)

	out, err := executeContext(t, context.Background(), "run", cfg, "--timeline", fx.timeline)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "C010")
}
