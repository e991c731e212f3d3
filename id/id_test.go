package id_test

import (
	"testing"

	"github.com/stevearc/eat-your-vegetables/id"
)

func TestNewCarriesPrefix(t *testing.T) {
	tid := id.NewTaskID()
	if tid.Prefix() != id.PrefixTask {
		t.Fatalf("prefix = %q, want %q", tid.Prefix(), id.PrefixTask)
	}
	if tid.IsNil() {
		t.Fatal("new ID should not be nil")
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewWorkerID()
	parsed, err := id.ParseWorkerID(orig.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Fatalf("round trip mismatch: %q != %q", parsed.String(), orig.String())
	}
}

func TestParseWithWrongPrefix(t *testing.T) {
	tid := id.NewTaskID()
	if _, err := id.ParseWorkerID(tid.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestOwnerTokensUnique(t *testing.T) {
	a := id.NewOwnerToken()
	b := id.NewOwnerToken()
	if a == b {
		t.Fatalf("owner tokens collided: %q", a)
	}
}

func TestNilMarshalsEmpty(t *testing.T) {
	data, err := id.Nil.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("nil ID marshaled to %q", data)
	}
}
