package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const studioCUE = `
package studio

devices: {
	abs0: type: "abstract"
	abs1: type: "abstract"
}

mappings: {
	gfx: {device: "abstract", deviceId: "abs0"}
	vt:  {device: "abstract", deviceId: "abs1"}
}
`

const rundownYAML = `
- id: bg
  layer: gfx
  enable: {start: 0, end: 5000}
  content:
    template: lower-third
    "$references":
      text: {datastoreKey: headline}
- id: show
  layer: vt
  enable: {start: now, duration: 3000}
  content: {clip: intro.mp4}
- id: next
  layer: vt_look
  isLookahead: true
  lookaheadForLayer: vt
  enable: {start: 0}
  content: {clip: news.mp4}
- id: orphan
  layer: studio_lights
  enable: {start: 0}
`

const datastoreYAML = `
headline:
  value: Breaking
  modified: 0
`

// fixture writes the standard configuration, timeline and datastore into
// a temp dir.
type fixture struct {
	dir       string
	config    string
	timeline  string
	datastore string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{
		dir:       dir,
		config:    writeFile(t, dir, "studio.cue", studioCUE),
		timeline:  writeFile(t, dir, "rundown.yaml", rundownYAML),
		datastore: writeFile(t, dir, "ds.yaml", datastoreYAML),
	}
}

func (fx fixture) path(name string) string {
	return filepath.Join(fx.dir, name)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns what it wrote to
// stdout. Logs are discarded.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}
