// Package meta holds the free-form key/value attributes attached to trips and expenses
// (booking references, notes, receipt links). Keys and values are bounded so the
// stored JSON stays small and deterministic.
package meta

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
)

// Metadata is a small string map with validation and stable JSON encoding.
type Metadata map[string]string

const (
	MaxPairs     = 20
	MaxKeyLen    = 64
	MaxValLen    = 512
	MaxTotalJSON = 8192
)

var (
	ErrTooManyPairs = errors.New("metadata too many pairs")
	ErrKeyLength    = errors.New("metadata key too long or empty")
	ErrValueLength  = errors.New("metadata value too long")
	ErrTooLarge     = errors.New("metadata exceeds max json size")
)

// New copies m; a nil map yields an empty Metadata.
func New(m map[string]string) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Metadata) Clone() Metadata { return New(m) }

// Keys returns the keys in ascending order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies other into m, later keys overwriting. Pairs that would break the
// limits are skipped; Validate reports what remains.
func (m Metadata) Merge(other Metadata) {
	for _, k := range other.Keys() {
		if _, exists := m[k]; !exists && len(m) >= MaxPairs {
			continue
		}
		m[k] = other[k]
	}
}

func (m Metadata) Validate() error {
	if len(m) > MaxPairs {
		return ErrTooManyPairs
	}
	for k, v := range m {
		if len(k) == 0 || len(k) > MaxKeyLen {
			return ErrKeyLength
		}
		if len(v) > MaxValLen {
			return ErrValueLength
		}
	}
	b, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	if len(b) > MaxTotalJSON {
		return ErrTooLarge
	}
	return nil
}

// MarshalJSON encodes with sorted keys so equal maps always hash the same.
func (m Metadata) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = Metadata{}
		return nil
	}
	var tmp map[string]string
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*m = New(tmp)
	return nil
}
