package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kamilpajak/deoptviewer/pkg/models"
)

// ErrMissingFiles is returned when the document has no "files" object.
var ErrMissingFiles = errors.New(`grouped document has no "files" object`)

// GroupedParser reads the per-file grouping produced by the upstream log
// parser: {"files": {"<id>": {"codes": [...], "deopts": [...], "ics": [...]}}, ...}.
// Key order of "files" is kept as arrival order; every other top-level
// field is kept verbatim.
type GroupedParser struct{}

// Parse reads and parses a grouped document from a file.
func (p *GroupedParser) Parse(path string) (*models.Grouped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grouped input: %w", err)
	}
	defer f.Close()

	return p.Decode(f)
}

// ParseBytes parses a grouped document from raw bytes.
func (p *GroupedParser) ParseBytes(data []byte) (*models.Grouped, error) {
	return p.Decode(bytes.NewReader(data))
}

// Decode parses a grouped document from r.
func (p *GroupedParser) Decode(r io.Reader) (*models.Grouped, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("failed to parse grouped input: %w", err)
	}

	g := &models.Grouped{}
	sawFiles := false

	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, fmt.Errorf("failed to parse grouped input: %w", err)
		}

		if key == "files" {
			files, err := decodeFiles(dec)
			if err != nil {
				return nil, fmt.Errorf("failed to parse files: %w", err)
			}
			g.Files = files
			sawFiles = true
			continue
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse field %q: %w", key, err)
		}
		g.Metadata = append(g.Metadata, models.Field{Key: key, Value: raw})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("failed to parse grouped input: %w", err)
	}

	if !sawFiles {
		return nil, ErrMissingFiles
	}

	return g, nil
}

// decodeFiles reads the "files" object. A repeated id replaces the earlier
// record but keeps its position.
func decodeFiles(dec *json.Decoder) ([]models.FileInput, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var files []models.FileInput
	seen := make(map[string]int)

	for dec.More() {
		id, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		var rec models.FileRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("file %s: %w", id, err)
		}

		if i, ok := seen[id]; ok {
			files[i].Record = rec
			continue
		}
		seen[id] = len(files)
		files = append(files, models.FileInput{ID: id, Record: rec})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	return files, nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
