package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/deoptviewer/internal/bundle"
	"github.com/kamilpajak/deoptviewer/pkg/models"
)

func TestSnapshotBundle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if !IsAvailable() {
		t.Skip("playwright not installed")
	}

	dir := t.TempDir()
	rep := &models.Report{
		Root: "/app/",
		Files: []models.RankedFile{{ID: "/app/hot.js", File: &models.EnrichedFile{
			FileRecord: models.FileRecord{Deopts: []models.Entry{models.NewEntry(3, nil)}},
			Source:     &models.Resolution{SrcPath: "/app/hot.js", RelativePath: "hot.js", Src: "function hotPath() {}"},
			Score:      1,
		}}},
	}
	_, err := bundle.Write(dir, rep, bundle.Options{})
	require.NoError(t, err)

	text, err := SnapshotBundle(dir)
	require.NoError(t, err)
	assert.Contains(t, string(text), "hot.js")
	assert.Contains(t, string(text), "1 files")
	assert.Contains(t, string(text), "function hotPath() {}")
}

func TestSnapshotBundle_MissingDir(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if !IsAvailable() {
		t.Skip("playwright not installed")
	}

	_, err := SnapshotBundle(t.TempDir() + "/missing")
	assert.Error(t, err)
}
