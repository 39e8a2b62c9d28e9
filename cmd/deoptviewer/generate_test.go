package deoptviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/deoptviewer/internal/bundle"
	"github.com/kamilpajak/deoptviewer/internal/config"
	"github.com/kamilpajak/deoptviewer/internal/progress"
	"github.com/kamilpajak/deoptviewer/pkg/models"
)

func init() {
	color.NoColor = true
}

type recorder struct {
	events []progress.Event
}

func (r *recorder) Emit(ev progress.Event) { r.events = append(r.events, ev) }

// writeInput writes a grouped document whose files live under dir.
func writeInput(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(`{"maps":{"nodes":{}},"files":{`)
	first := true
	for id, body := range files {
		if !first {
			b.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(id)
		fmt.Fprintf(&b, "%s:%s", key, body)
	}
	b.WriteString("}}")

	path := filepath.Join(dir, "grouped.json")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func TestGenerate_LocalSources(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app")
	require.NoError(t, os.MkdirAll(src, 0755))
	hot := filepath.Join(src, "hot.js")
	require.NoError(t, os.WriteFile(hot, []byte("function hot() {}"), 0644))
	cold := filepath.Join(src, "cold.js")

	input := writeInput(t, dir, map[string]string{
		hot:  `{"codes":[],"deopts":[{"severity":3,"bailoutType":"eager"}],"ics":[]}`,
		cold: `{"codes":[{"severity":1}],"deopts":[],"ics":[{"severity":1}]}`,
	})
	out := filepath.Join(dir, "out")
	rec := &recorder{}

	rep, m, err := generate(context.Background(), input, out, config.DefaultConfig(), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{hot}, rep.Order(), "zero-score files are omitted by default")
	f, _ := rep.Lookup(hot)
	require.NotNil(t, f.Source)
	assert.Equal(t, "function hot() {}", f.Source.Src)
	assert.Equal(t, "hot.js", f.Source.RelativePath)

	assert.Equal(t, 1, m.Files)
	assert.Equal(t, "omit", m.ZeroScore)
	assert.FileExists(t, filepath.Join(out, bundle.DataScript))
	assert.FileExists(t, filepath.Join(out, bundle.ManifestFile))

	require.NotEmpty(t, rec.events)
	assert.Equal(t, progress.EventInfo, rec.events[0].Type)
	assert.Equal(t, progress.EventDone, rec.events[len(rec.events)-1].Type)
}

func TestGenerate_IncludeZeroScore(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a", "x.js")
	b := filepath.Join(dir, "a", "y.js")
	input := writeInput(t, dir, map[string]string{
		a: `{"codes":[],"deopts":[{"severity":2}],"ics":[]}`,
		b: `{"codes":[],"deopts":[],"ics":[{"severity":1}]}`,
	})

	cfg := config.DefaultConfig()
	cfg.ZeroScore = "include"

	rep, _, err := generate(context.Background(), input, filepath.Join(dir, "out"), cfg, nil)
	require.NoError(t, err)
	require.Len(t, rep.Files, 2)
	assert.Equal(t, a, rep.Files[0].ID)

	x, _ := rep.Lookup(a)
	require.NotNil(t, x.Source)
	assert.False(t, x.Source.OK(), "x.js does not exist on disk")

	y, _ := rep.Lookup(b)
	assert.Nil(t, y.Source)
}

func TestGenerate_RemoteSources(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/static/main.js" {
			fmt.Fprint(w, "console.log(1)")
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	dir := t.TempDir()
	input := writeInput(t, dir, map[string]string{
		ts.URL + "/static/main.js":   `{"codes":[],"deopts":[{"severity":3}],"ics":[]}`,
		ts.URL + "/static/vendor.js": `{"codes":[],"deopts":[],"ics":[{"severity":2},{"severity":3}]}`,
	})

	cfg := config.DefaultConfig()
	cfg.Concurrency = 2

	rep, m, err := generate(context.Background(), input, filepath.Join(dir, "out"), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{ts.URL + "/static/vendor.js", ts.URL + "/static/main.js"}, rep.Order())
	main, _ := rep.Lookup(ts.URL + "/static/main.js")
	assert.Equal(t, "console.log(1)", main.Source.Src)
	assert.Equal(t, "main.js", main.Source.RelativePath)

	vendor, _ := rep.Lookup(ts.URL + "/static/vendor.js")
	assert.Contains(t, vendor.Source.SrcError, "404")
	assert.Equal(t, 1, m.SourceErrors)
}

func TestGenerate_RedirectedSources(t *testing.T) {
	dir := t.TempDir()
	mirror := filepath.Join(dir, "mirror")
	target := filepath.Join(mirror, "report-renderer", "report-render", "pages", "search.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("search()"), 0644))

	id := "/place/db/instances/abc/report-render/pages/search.js"
	input := writeInput(t, dir, map[string]string{
		id: `{"codes":[],"deopts":[{"severity":2}],"ics":[]}`,
	})

	cfg := config.DefaultConfig()
	cfg.Redirect.Base = mirror

	rep, _, err := generate(context.Background(), input, filepath.Join(dir, "out"), cfg, nil)
	require.NoError(t, err)

	f, ok := rep.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "search()", f.Source.Src)
	assert.Equal(t, target, f.Source.SrcPath)
	assert.Equal(t, "report-render/pages/search.js", f.Source.RelativePath)
}

func TestGenerate_MalformedSeverity(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, map[string]string{
		"/a/x.js": `{"codes":[],"deopts":[{"severity":4}],"ics":[]}`,
	})
	out := filepath.Join(dir, "out")
	rec := &recorder{}

	_, _, err := generate(context.Background(), input, out, config.DefaultConfig(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/a/x.js")
	assert.NoDirExists(t, out, "nothing is written for a malformed input")
	assert.Equal(t, progress.EventError, rec.events[len(rec.events)-1].Type)
}

func TestGenerate_MissingInput(t *testing.T) {
	_, _, err := generate(context.Background(), filepath.Join(t.TempDir(), "none.json"), t.TempDir(), config.DefaultConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestGenerate_Cancelled(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, map[string]string{
		"/a/x.js": `{"codes":[],"deopts":[{"severity":2}],"ics":[]}`,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := generate(ctx, input, filepath.Join(dir, "out"), config.DefaultConfig(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_DeadlineKeepsResolvedSources(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "slow()")
	}))
	defer ts.Close()

	dir := t.TempDir()
	local := filepath.Join(dir, "app", "fast.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0755))
	require.NoError(t, os.WriteFile(local, []byte("fast()"), 0644))
	remote := ts.URL + "/slow.js"

	input := writeInput(t, dir, map[string]string{
		local:  `{"codes":[],"deopts":[{"severity":2},{"severity":2}],"ics":[]}`,
		remote: `{"codes":[],"deopts":[{"severity":1}],"ics":[{"severity":2}]}`,
	})
	out := filepath.Join(dir, "out")
	rec := &recorder{}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	rep, m, err := generate(ctx, input, out, config.DefaultConfig(), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{local, remote}, rep.Order())
	fast, _ := rep.Lookup(local)
	assert.Equal(t, "fast()", fast.Source.Src)
	slow, _ := rep.Lookup(remote)
	assert.Contains(t, slow.Source.SrcError, "deadline exceeded")

	assert.Equal(t, 1, m.SourceErrors)
	assert.FileExists(t, filepath.Join(out, bundle.DataScript))
	assert.Equal(t, progress.EventDone, rec.events[len(rec.events)-1].Type)
}

func TestLoadConfig_NoDeadlineByDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvAccessKey, "")
	t.Setenv(config.EnvSecretKey, "")

	cfg, err := loadConfig(generateCmd)
	require.NoError(t, err)
	assert.Zero(t, cfg.RunTimeout)

	ctx, stop := runContext(context.Background(), cfg)
	defer stop()
	_, ok := ctx.Deadline()
	assert.False(t, ok, "a run without --timeout has no deadline")
}

func TestRunContext_Timeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RunTimeout = time.Minute

	ctx, stop := runContext(context.Background(), cfg)
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestOutputJSON(t *testing.T) {
	rep := &models.Report{Files: []models.RankedFile{
		{ID: "/b.js", File: &models.EnrichedFile{Score: 2}},
		{ID: "/a.js", File: &models.EnrichedFile{Score: 1}},
	}}

	var buf bytes.Buffer
	require.NoError(t, outputJSON(&buf, rep))

	var decoded struct {
		FileOrder []string `json:"fileOrder"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []string{"/b.js", "/a.js"}, decoded.FileOrder)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "deoptviewer dev")
}
