package storage

import (
	"strings"
	"testing"
)

func TestIdOf_Deterministic(t *testing.T) {
	a := IdOf([]byte("hello"))
	b := IdOf([]byte("hello"))
	c := IdOf([]byte("world"))

	if a != b {
		t.Error("same bytes must produce the same id")
	}
	if a == c {
		t.Error("different bytes must produce different ids")
	}
	if a.IsZero() {
		t.Error("computed id must not be zero")
	}
}

func TestParseObjId_RoundTrip(t *testing.T) {
	id := IdOf([]byte("round-trip"))

	parsed, err := ParseObjId(id.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != id {
		t.Errorf("expected %s, got %s", id, parsed)
	}
}

func TestParseObjId_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not hex", "zzzz"},
		{"too short", "abcd"},
		{"too long", strings.Repeat("ab", 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseObjId(tt.input); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}

func TestObjId_Text(t *testing.T) {
	id := IdOf([]byte("text"))

	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded ObjId
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != id {
		t.Error("text round-trip must preserve the id")
	}

	var zero ObjId
	text, err = zero.MarshalText()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(text) != 0 {
		t.Errorf("zero id must serialize empty, got %q", text)
	}

	var fromEmpty ObjId
	if err := fromEmpty.UnmarshalText(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fromEmpty.IsZero() {
		t.Error("empty text must decode to the zero id")
	}
}

func TestObjId_MapKey(t *testing.T) {
	m := map[ObjId]string{
		IdOf([]byte("a")): "a",
		IdOf([]byte("b")): "b",
	}

	if m[IdOf([]byte("a"))] != "a" {
		t.Error("recomputed id must hit the same map slot")
	}
}
