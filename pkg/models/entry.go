package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Category names one of the three per-file diagnostic lists.
type Category string

const (
	CategoryCodes  Category = "codes"
	CategoryDeopts Category = "deopts"
	CategoryICs    Category = "ics"
)

// Categories lists every category in report order.
var Categories = []Category{CategoryCodes, CategoryDeopts, CategoryICs}

// Entry is a single diagnostic event produced by the upstream parser.
// Only Severity is interpreted; the original object is kept verbatim so it
// can be re-emitted unchanged.
type Entry struct {
	Severity int
	raw      json.RawMessage
}

// NewEntry builds an entry from a field map. The severity field is set
// from sev and overrides any value in fields.
func NewEntry(sev int, fields map[string]any) Entry {
	obj := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		obj[k] = v
	}
	obj["severity"] = sev
	raw, _ := json.Marshal(obj)
	return Entry{Severity: sev, raw: raw}
}

// UnmarshalJSON keeps the raw object and extracts the severity.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var head struct {
		Severity int `json:"severity"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	e.Severity = head.Severity
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the entry exactly as it was received.
func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e.raw) == 0 {
		return json.Marshal(map[string]int{"severity": e.Severity})
	}
	return e.raw, nil
}

// EncodeMsgpack writes the entry's fields as a MessagePack map.
func (e Entry) EncodeMsgpack(enc *msgpack.Encoder) error {
	raw, err := e.MarshalJSON()
	if err != nil {
		return err
	}
	return encodeRawJSON(enc, raw)
}

// FileRecord holds the diagnostic entries observed for one file, each list
// in the order it appeared in the source log.
type FileRecord struct {
	Codes  []Entry `json:"codes"`
	Deopts []Entry `json:"deopts"`
	ICs    []Entry `json:"ics"`
}

// Entries returns the list for the given category.
func (r FileRecord) Entries(c Category) []Entry {
	switch c {
	case CategoryCodes:
		return r.Codes
	case CategoryDeopts:
		return r.Deopts
	case CategoryICs:
		return r.ICs
	}
	return nil
}

// Len returns the total number of entries across all categories.
func (r FileRecord) Len() int {
	return len(r.Codes) + len(r.Deopts) + len(r.ICs)
}

// normalized replaces nil lists with empty ones so they encode as [].
func (r FileRecord) normalized() FileRecord {
	if r.Codes == nil {
		r.Codes = []Entry{}
	}
	if r.Deopts == nil {
		r.Deopts = []Entry{}
	}
	if r.ICs == nil {
		r.ICs = []Entry{}
	}
	return r
}

// encodeRawJSON re-encodes a JSON document as MessagePack, keeping integers
// as integers.
func encodeRawJSON(enc *msgpack.Encoder, raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("failed to decode pass-through value: %w", err)
	}
	return enc.Encode(fromJSONNumbers(v))
}

func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, x := range t {
			t[k] = fromJSONNumbers(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = fromJSONNumbers(x)
		}
		return t
	}
	return v
}
