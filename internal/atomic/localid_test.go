package atomic

import (
	"errors"
	"testing"

	"github.com/junction-api/junction/internal/jsonapierr"
)

func TestLocalIDTracker_DeclareAssignResolve(t *testing.T) {
	tracker := NewLocalIDTracker()

	if err := tracker.Declare("articles", "a1"); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	if !tracker.IsDeclared("articles", "a1") {
		t.Error("a1 should be declared")
	}

	if err := tracker.Assign("articles", "a1", "real-id"); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	id, err := tracker.Resolve("articles", "a1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id != "real-id" {
		t.Errorf("Expected real-id, got %s", id)
	}
}

func TestLocalIDTracker_DoubleDeclare(t *testing.T) {
	tracker := NewLocalIDTracker()

	if err := tracker.Declare("articles", "a1"); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	err := tracker.Declare("articles", "a1")
	if err == nil {
		t.Fatal("Expected error for double declaration")
	}
	var dupErr *jsonapierr.LocalIdAlreadyDeclaredError
	if !errors.As(err, &dupErr) {
		t.Errorf("Expected LocalIdAlreadyDeclaredError, got %T", err)
	}
}

func TestLocalIDTracker_SameIDDifferentTypes(t *testing.T) {
	tracker := NewLocalIDTracker()

	// local IDs are scoped per type
	if err := tracker.Declare("articles", "x"); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	if err := tracker.Declare("people", "x"); err != nil {
		t.Fatalf("Declare with different type failed: %v", err)
	}
}

func TestLocalIDTracker_ResolveUndeclared(t *testing.T) {
	tracker := NewLocalIDTracker()

	_, err := tracker.Resolve("articles", "missing")
	if err == nil {
		t.Fatal("Expected error for undeclared local ID")
	}
	var notFound *jsonapierr.LocalIdNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Expected LocalIdNotFoundError, got %T", err)
	}
}

func TestLocalIDTracker_ResolveDeclaredButUnassigned(t *testing.T) {
	tracker := NewLocalIDTracker()

	if err := tracker.Declare("articles", "a1"); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	// the real ID only exists once the declaring create has executed
	if _, err := tracker.Resolve("articles", "a1"); err == nil {
		t.Fatal("Expected error before assignment")
	}
}

func TestLocalIDTracker_AssignUndeclared(t *testing.T) {
	tracker := NewLocalIDTracker()

	if err := tracker.Assign("articles", "a1", "id"); err == nil {
		t.Fatal("Expected error assigning an undeclared local ID")
	}
}

func TestLocalIDTracker_Reset(t *testing.T) {
	tracker := NewLocalIDTracker()
	tracker.Declare("articles", "a1")
	tracker.Reset()

	if tracker.IsDeclared("articles", "a1") {
		t.Error("Reset should clear declarations")
	}
}
