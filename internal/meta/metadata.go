// Package meta holds the small caller-supplied key/value map attached to
// transactions, with size limits and a deterministic JSON encoding.
package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tinoosan/accounts-ledger/internal/errs"
)

// Metadata is a bounded string map.
type Metadata map[string]string

const (
	MaxPairs     = 20
	MaxKeyLen    = 64
	MaxValLen    = 256
	MaxTotalJSON = 4096
)

// New copies m; a nil input yields nil so empty metadata stays omitted.
func New(m map[string]string) Metadata {
	if len(m) == 0 {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata { return New(m) }

// Validate enforces the pair, key, value and encoded-size limits.
func (m Metadata) Validate() error {
	if len(m) > MaxPairs {
		return errs.Wrap(errs.ErrInvalid, fmt.Sprintf("metadata has more than %d pairs", MaxPairs))
	}
	for _, k := range m.keys() {
		if k == "" || len(k) > MaxKeyLen {
			return errs.Wrap(errs.ErrInvalid, "metadata key is empty or too long")
		}
		if len(m[k]) > MaxValLen {
			return errs.Wrap(errs.ErrInvalid, "metadata value for "+k+" is too long")
		}
	}
	b, err := m.MarshalStableJSON()
	if err != nil {
		return err
	}
	if len(b) > MaxTotalJSON {
		return errs.Wrap(errs.ErrInvalid, "metadata exceeds max json size")
	}
	return nil
}

// MarshalStableJSON encodes m with sorted keys; empty maps encode as {}.
func (m Metadata) MarshalStableJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range m.keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) { return m.MarshalStableJSON() }

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = nil
		return nil
	}
	var tmp map[string]string
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*m = New(tmp)
	return nil
}

func (m Metadata) keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
