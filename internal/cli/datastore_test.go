package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/store"
)

func TestDatastore_SetListDelete(t *testing.T) {
	fx := newFixture(t)
	db := fx.path("tsr.db")

	out, err := execute(t, "datastore", "--db", db, "list")
	require.NoError(t, err)
	assert.Equal(t, "(empty)\n", out)

	out, err = execute(t, "datastore", "--db", db, "set", "headline", "Breaking", "--modified", "5")
	require.NoError(t, err)
	assert.Equal(t, "headline = \"Breaking\" (modified 5)\n", out)

	_, err = execute(t, "datastore", "--db", db, "set", "score", "{home: 2, away: 1}", "--modified", "7")
	require.NoError(t, err)

	out, err = execute(t, "datastore", "--db", db, "list")
	require.NoError(t, err)
	assert.Equal(t, "headline = \"Breaking\" (modified 5)\nscore = {\"away\":1,\"home\":2} (modified 7)\n", out)

	out, err = execute(t, "datastore", "--db", db, "delete", "headline")
	require.NoError(t, err)
	assert.Equal(t, "deleted headline\n", out)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	ds, err := st.LoadDatastore(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, ds, "headline")
	require.Contains(t, ds, "score")
	assert.Equal(t, map[string]any{"home": int64(2), "away": int64(1)}, ds["score"].Value)
}

func TestDatastore_SetDefaultsModifiedToNow(t *testing.T) {
	fx := newFixture(t)
	db := fx.path("tsr.db")

	out, err := execute(t, "--format", "json", "datastore", "--db", db, "set", "n", "42")
	require.NoError(t, err)

	var resp struct {
		Data DatastoreListing `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Contains(t, resp.Data.Entries, "n")
	assert.Positive(t, resp.Data.Entries["n"].Modified)
}

func TestDatastore_Import(t *testing.T) {
	fx := newFixture(t)
	db := fx.path("tsr.db")

	_, err := execute(t, "datastore", "--db", db, "set", "stale", "x", "--modified", "1")
	require.NoError(t, err)

	out, err := execute(t, "datastore", "--db", db, "import", fx.datastore)
	require.NoError(t, err)
	assert.Equal(t, "headline = \"Breaking\" (modified 0)\n", out)

	out, err = execute(t, "datastore", "--db", db, "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "stale", "import replaces the datastore")
}

func TestDatastore_ImportMissingFile(t *testing.T) {
	fx := newFixture(t)

	_, err := execute(t, "datastore", "--db", fx.path("tsr.db"), "import", fx.path("nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDatastore_RequiresDB(t *testing.T) {
	_, err := execute(t, "datastore", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
