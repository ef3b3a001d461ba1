package meta

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tinoosan/accounts-ledger/internal/errs"
)

func TestNewAndClone(t *testing.T) {
	if New(nil) != nil || New(map[string]string{}) != nil {
		t.Fatalf("empty input should yield nil metadata")
	}
	src := map[string]string{"ref": "inv-1"}
	m := New(src)
	src["ref"] = "changed"
	if m["ref"] != "inv-1" {
		t.Fatalf("New must copy its input")
	}
	c := m.Clone()
	c["ref"] = "x"
	if m["ref"] != "inv-1" {
		t.Fatalf("Clone must be independent")
	}
}

func TestValidationLimits(t *testing.T) {
	pairs := make(map[string]string)
	for i := 0; i < MaxPairs+1; i++ {
		pairs["k"+string(rune('a'+i%26))+string(rune('a'+i/26))] = "v"
	}
	if err := New(pairs).Validate(); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected too many pairs, got %v", err)
	}
	if err := New(map[string]string{strings.Repeat("k", MaxKeyLen+1): "v"}).Validate(); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected key too long, got %v", err)
	}
	if err := New(map[string]string{"k": strings.Repeat("v", MaxValLen+1)}).Validate(); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected value too long, got %v", err)
	}
	if err := New(map[string]string{"ref": "inv-1"}).Validate(); err != nil {
		t.Fatalf("valid metadata rejected: %v", err)
	}
}

func TestStableJSON(t *testing.T) {
	m := New(map[string]string{"b": "2", "a": "1"})
	b, _ := m.MarshalStableJSON()
	if string(b) != `{"a":"1","b":"2"}` {
		t.Fatalf("unexpected stable json: %s", b)
	}
	var empty Metadata
	b, _ = empty.MarshalStableJSON()
	if string(b) != `{}` {
		t.Fatalf("nil metadata should encode as {}, got %s", b)
	}
	var back Metadata
	if err := json.Unmarshal([]byte(`{"a":"1","b":"2"}`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["b"] != "2" || len(back) != 2 {
		t.Fatalf("unexpected decoded metadata: %+v", back)
	}
}
