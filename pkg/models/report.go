package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// SeveritySummary counts entries per severity tier: index 0 holds tier 1.
type SeveritySummary [3]int

// Total returns the number of entries counted.
func (s SeveritySummary) Total() int {
	return s[0] + s[1] + s[2]
}

// FileSeverities holds the severity histogram of every category of a file.
type FileSeverities struct {
	Codes  SeveritySummary `json:"codes"`
	Deopts SeveritySummary `json:"deopts"`
	ICs    SeveritySummary `json:"ics"`
}

// Resolution is the outcome of locating a file's source text. Exactly one of
// Src or SrcError is meaningful; SrcError is empty on success.
type Resolution struct {
	SrcPath      string `json:"srcPath"`
	RelativePath string `json:"relativePath"`
	Src          string `json:"src,omitempty"`
	SrcError     string `json:"srcError,omitempty"`
}

// OK reports whether the source text was obtained.
func (r Resolution) OK() bool {
	return r.SrcError == ""
}

// EnrichedFile is a file's record as it appears in the final report.
// Source is nil when the source was never fetched; such files encode with
// their category lists only.
type EnrichedFile struct {
	FileRecord
	Source     *Resolution
	Severities FileSeverities
	Score      int
}

type enrichedWire struct {
	Codes        []Entry `json:"codes" msgpack:"codes"`
	Deopts       []Entry `json:"deopts" msgpack:"deopts"`
	ICs          []Entry `json:"ics" msgpack:"ics"`
	RelativePath *string `json:"relativePath,omitempty" msgpack:"relativePath,omitempty"`
	SrcPath      *string `json:"srcPath,omitempty" msgpack:"srcPath,omitempty"`
	Src          *string `json:"src,omitempty" msgpack:"src,omitempty"`
	SrcError     *string `json:"srcError,omitempty" msgpack:"srcError,omitempty"`
}

func (f *EnrichedFile) wire() enrichedWire {
	rec := f.FileRecord.normalized()
	w := enrichedWire{Codes: rec.Codes, Deopts: rec.Deopts, ICs: rec.ICs}
	if s := f.Source; s != nil {
		w.RelativePath = &s.RelativePath
		w.SrcPath = &s.SrcPath
		if s.OK() {
			w.Src = &s.Src
		} else {
			w.SrcError = &s.SrcError
		}
	}
	return w
}

// MarshalJSON encodes the record in the webapp's data layout.
func (f *EnrichedFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.wire())
}

// EncodeMsgpack encodes the record in the webapp's data layout.
func (f *EnrichedFile) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(f.wire())
}

// Field is one top-level pass-through value of the grouped input.
type Field struct {
	Key   string
	Value json.RawMessage
}

// FileInput is one file of the grouped input.
type FileInput struct {
	ID     string
	Record FileRecord
}

// Grouped is the upstream grouping stage's output: per-file records in
// arrival order plus top-level metadata passed through untouched.
type Grouped struct {
	Files    []FileInput
	Metadata []Field
}

// IDs returns the file identifiers in arrival order.
func (g *Grouped) IDs() []string {
	ids := make([]string, len(g.Files))
	for i, f := range g.Files {
		ids[i] = f.ID
	}
	return ids
}

// RankedFile pairs a file identifier with its enriched record.
type RankedFile struct {
	ID   string
	File *EnrichedFile
}

// Report is the ranked, source-correlated result. Files are in rank order.
type Report struct {
	Root     string
	Files    []RankedFile
	Metadata []Field
}

// Order returns the file identifiers in rank order.
func (r *Report) Order() []string {
	ids := make([]string, len(r.Files))
	for i, f := range r.Files {
		ids[i] = f.ID
	}
	return ids
}

// Lookup returns the enriched record for id.
func (r *Report) Lookup(id string) (*EnrichedFile, bool) {
	for _, f := range r.Files {
		if f.ID == id {
			return f.File, true
		}
	}
	return nil, false
}

// reservedKeys are produced by the report itself and never taken from
// pass-through metadata.
var reservedKeys = map[string]bool{"files": true, "fileOrder": true}

// MarshalJSON writes the metadata, then "files" as an object whose key order
// is rank order, then "fileOrder" listing the same order explicitly.
func (r *Report) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')

	for _, f := range r.Metadata {
		if reservedKeys[f.Key] {
			continue
		}
		if err := writeJSONKey(&b, f.Key); err != nil {
			return nil, err
		}
		b.Write(f.Value)
		b.WriteByte(',')
	}

	b.WriteString(`"files":{`)
	for i, rf := range r.Files {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeJSONKey(&b, rf.ID); err != nil {
			return nil, err
		}
		data, err := json.Marshal(rf.File)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", rf.ID, err)
		}
		b.Write(data)
	}
	b.WriteString(`},"fileOrder":`)

	order, err := json.Marshal(r.Order())
	if err != nil {
		return nil, err
	}
	b.Write(order)
	b.WriteByte('}')

	return b.Bytes(), nil
}

func writeJSONKey(b *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	b.Write(k)
	b.WriteByte(':')
	return nil
}

// EncodeMsgpack writes the same layout as MarshalJSON as a MessagePack map.
func (r *Report) EncodeMsgpack(enc *msgpack.Encoder) error {
	var meta []Field
	for _, f := range r.Metadata {
		if !reservedKeys[f.Key] {
			meta = append(meta, f)
		}
	}

	if err := enc.EncodeMapLen(len(meta) + 2); err != nil {
		return err
	}
	for _, f := range meta {
		if err := enc.EncodeString(f.Key); err != nil {
			return err
		}
		if err := encodeRawJSON(enc, f.Value); err != nil {
			return err
		}
	}

	if err := enc.EncodeString("files"); err != nil {
		return err
	}
	if err := enc.EncodeMapLen(len(r.Files)); err != nil {
		return err
	}
	for _, rf := range r.Files {
		if err := enc.EncodeString(rf.ID); err != nil {
			return err
		}
		if err := enc.Encode(rf.File); err != nil {
			return fmt.Errorf("failed to encode %s: %w", rf.ID, err)
		}
	}

	if err := enc.EncodeString("fileOrder"); err != nil {
		return err
	}
	return enc.Encode(r.Order())
}
