package worker

import (
	"errors"
	"strings"
	"testing"

	"go.jetify.com/typeid"
)

func TestNewRunIDUsesTypeID(t *testing.T) {
	id := newRunID()
	parsed, err := typeid.FromString(id)
	if err != nil {
		t.Fatalf("expected run id to be a parseable typeid, got %q: %v", id, err)
	}
	if got, want := parsed.Prefix(), "run"; got != want {
		t.Fatalf("unexpected run id prefix: got %q want %q", got, want)
	}
}

func TestNewIDFallsBackToTimestampShapeWhenGeneratorFails(t *testing.T) {
	originalGenerator := generateTypeID
	t.Cleanup(func() {
		generateTypeID = originalGenerator
	})

	generateTypeID = func(string) (string, error) {
		return "", errors.New("boom")
	}

	id := newID("run")
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("expected fallback id to keep legacy shape, got %q", id)
	}
}
