// Package bundle writes a report as a self-contained directory the browser
// viewer can open: the report as a script and as MessagePack, the viewer
// page, and a manifest describing the run.
package bundle

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kamilpajak/deoptviewer/pkg/models"
)

// Bundle file names.
const (
	DataScript   = "v8-data.js"
	DataBinary   = "v8-data.bin"
	IndexFile    = "index.html"
	ManifestFile = "manifest.json"
)

//go:embed static/index.html
var static embed.FS

// Manifest describes one generated bundle.
type Manifest struct {
	RunID         string    `json:"runId"`
	GeneratedAt   time.Time `json:"generatedAt"`
	Version       string    `json:"version,omitempty"`
	Input         string    `json:"input,omitempty"`
	Root          string    `json:"root"`
	Files         int       `json:"files"`
	SourceErrors  int       `json:"sourceErrors"`
	FullInclusion bool      `json:"fullInclusion"`
	ZeroScore     string    `json:"zeroScore"`
}

// Options carries the run details recorded in the manifest.
type Options struct {
	Version       string
	Input         string
	FullInclusion bool
	ZeroScore     string
	// Now overrides the generation time. Used by tests.
	Now func() time.Time
}

// Write creates dir if needed and writes every bundle file into it.
// Existing bundle files are replaced.
func Write(dir string, rep *models.Report, opts Options) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	script := make([]byte, 0, len(data)+32)
	script = append(script, "window.V8Data = "...)
	script = append(script, data...)
	script = append(script, ";\n"...)
	if err := writeAtomic(dir, DataScript, script); err != nil {
		return nil, err
	}

	bin, err := EncodeBinary(rep)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(dir, DataBinary, bin); err != nil {
		return nil, err
	}

	index, err := static.ReadFile("static/" + IndexFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read viewer page: %w", err)
	}
	if err := writeAtomic(dir, IndexFile, index); err != nil {
		return nil, err
	}

	m := newManifest(rep, opts)
	mdata, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := writeAtomic(dir, ManifestFile, append(mdata, '\n')); err != nil {
		return nil, err
	}

	return m, nil
}

// EncodeBinary encodes rep as MessagePack. Map keys inside entries and
// metadata are sorted so output is reproducible.
func EncodeBinary(rep *models.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(rep); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadManifest loads the manifest of an existing bundle.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func newManifest(rep *models.Report, opts Options) *Manifest {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	m := &Manifest{
		RunID:         uuid.New().String(),
		GeneratedAt:   now().UTC(),
		Version:       opts.Version,
		Input:         opts.Input,
		Root:          rep.Root,
		Files:         len(rep.Files),
		FullInclusion: opts.FullInclusion,
		ZeroScore:     opts.ZeroScore,
	}
	for _, f := range rep.Files {
		if f.File.Source != nil && !f.File.Source.OK() {
			m.SourceErrors++
		}
	}
	return m
}

// writeAtomic writes data to a temp file in dir and renames it into place.
func writeAtomic(dir, name string, data []byte) error {
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}
