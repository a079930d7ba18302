package upload

import (
	"errors"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusPending, StatusMigrating, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false}, // never skips MIGRATING
		{StatusMigrating, StatusCompleted, true},
		{StatusMigrating, StatusFailed, true},
		{StatusMigrating, StatusCancelled, false}, // migration is irrevocable
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusMigrating, false},
		{StatusFailed, StatusMigrating, false},
	}

	for _, c := range cases {
		s := &Session{ID: "a", RootID: "a", Status: c.from}
		err := s.Transition(c.to)
		if c.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", c.from, c.to, err)
		}
		if !c.ok {
			if !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("%s -> %s: expected ErrInvalidStateTransition, got %v", c.from, c.to, err)
			}
			if s.Status != c.from {
				t.Fatalf("%s -> %s: status mutated on rejected transition", c.from, c.to)
			}
		}
	}

	// A child whose bytes are already in can still be swept up by a cancel
	// of the whole upload.
	child := &Session{ID: "c", RootID: "a", Status: StatusMigrating}
	if err := child.Transition(StatusCancelled); err != nil {
		t.Fatalf("child MIGRATING -> CANCELLED must be allowed: %v", err)
	}
}

func validSnapshot() *Snapshot {
	return &Snapshot{
		RootID: "root",
		Entries: map[string]*TreeEntry{
			"root": {ID: "root", Name: "test", Kind: KindFolder, Children: []string{"f1", "d1"}},
			"f1":   {ID: "f1", Name: "test.txt", Kind: KindFile},
			"d1":   {ID: "d1", Name: "test2", Kind: KindFolder},
		},
	}
}

func TestSnapshotValidate(t *testing.T) {
	if err := validSnapshot().Validate(); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}

	s := validSnapshot()
	s.Entries["root"].Children = []string{"f1", "d1", "ghost"}
	if err := s.Validate(); err == nil {
		t.Fatal("unknown child id must be rejected")
	}

	s = validSnapshot()
	s.Entries["d1"].Children = []string{"f1"}
	if err := s.Validate(); err == nil {
		t.Fatal("a child referenced twice must be rejected")
	}

	s = validSnapshot()
	s.Entries["orphan"] = &TreeEntry{ID: "orphan", Name: "x", Kind: KindFile}
	if err := s.Validate(); err == nil {
		t.Fatal("unreachable entries must be rejected")
	}

	s = validSnapshot()
	s.RootID = "f1"
	if err := s.Validate(); err == nil {
		t.Fatal("a file root must be rejected")
	}
}
