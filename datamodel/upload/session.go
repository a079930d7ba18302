// Package upload defines the per-item session record tracked for every
// uploaded file or folder, its status state machine, and the folder tree
// snapshot taken before any bytes arrive.
package upload

import (
	"chaindrive/cid"
	"errors"
	"fmt"
	"time"
)

type Kind uint8

const (
	KindFile   Kind = 0x00
	KindFolder Kind = 0x01
)

func (k Kind) String() string {
	if k == KindFolder {
		return "FOLDER"
	}
	return "FILE"
}

type Status uint8

const (
	StatusPending   Status = 0x00
	StatusMigrating Status = 0x01
	StatusCompleted Status = 0x02
	StatusCancelled Status = 0x03
	StatusFailed    Status = 0x04
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusMigrating:
		return "MIGRATING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transition is allowed from s.
// FAILED is kept distinct from CANCELLED so users can tell a broken upload
// (re-upload needed) from one they stopped themselves.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

var ErrNotFound = errors.New("not found")
var ErrPermissionDenied = errors.New("permission denied")
var ErrInvalidStateTransition = errors.New("invalid state transition")
var ErrIncompleteSubtree = errors.New("incomplete subtree")

// TreeEntry describes one expected member of a folder upload. Children holds
// the ids of direct children in their fixed upload order; the order is
// significant, it determines folder node link order.
type TreeEntry struct {
	ID       string   `cbor:"1,keyasint"`
	Name     string   `cbor:"2,keyasint,omitempty"`
	Kind     Kind     `cbor:"3,keyasint"`
	Children []string `cbor:"4,keyasint,omitempty"`
}

// Snapshot is the immutable shape of a folder upload, taken at creation time
// before any bytes arrive. It is stored as a flat arena from entry id to
// descriptor rather than a pointer tree; parent linkage goes through the
// child id lists, which makes the bottom-up CID walk a plain index lookup.
type Snapshot struct {
	RootID  string                `cbor:"1,keyasint"`
	Entries map[string]*TreeEntry `cbor:"2,keyasint"`
}

// Validate checks that the snapshot enumerates every expected child exactly
// once by id and that every referenced child has a descriptor.
func (s *Snapshot) Validate() error {
	root, ok := s.Entries[s.RootID]
	if !ok {
		return fmt.Errorf("snapshot root entry %q missing", s.RootID)
	}
	if root.Kind != KindFolder {
		return fmt.Errorf("snapshot root entry %q is not a folder", s.RootID)
	}

	seen := map[string]bool{s.RootID: true}
	for id, e := range s.Entries {
		if e.ID != id {
			return fmt.Errorf("snapshot entry %q has mismatched id %q", id, e.ID)
		}
		for _, child := range e.Children {
			if _, ok := s.Entries[child]; !ok {
				return fmt.Errorf("snapshot entry %q references unknown child %q", id, child)
			}
			if seen[child] {
				return fmt.Errorf("snapshot child %q referenced more than once", child)
			}
			seen[child] = true
		}
		if e.Kind == KindFile && len(e.Children) != 0 {
			return fmt.Errorf("snapshot file entry %q must not have children", id)
		}
	}
	if len(seen) != len(s.Entries) {
		return fmt.Errorf("snapshot has %d entries but %d are reachable", len(s.Entries), len(seen))
	}
	return nil
}

// Transform describes a byte transform the caller applied before chunking.
// Pure metadata; the content arrives already processed.
type Transform struct {
	Algorithm string `cbor:"1,keyasint"`
	ChunkSize uint64 `cbor:"2,keyasint,omitempty"`
}

type Options struct {
	Compression *Transform `cbor:"1,keyasint,omitempty"`
	Encryption  *Transform `cbor:"2,keyasint,omitempty"`
}

// Session is the state record of one uploaded item (file or folder).
// RootID is the session's own id for top-level items, else the id of the
// top-level session of the folder upload it belongs to. RelativeID is the
// snapshot entry id the session implements, empty exactly when the session
// is itself top-level.
type Session struct {
	ID         string `cbor:"1,keyasint"`
	RootID     string `cbor:"2,keyasint"`
	RelativeID string `cbor:"3,keyasint,omitempty"`
	Kind       Kind   `cbor:"4,keyasint"`
	Status     Status `cbor:"5,keyasint"`

	Name     string `cbor:"6,keyasint,omitempty"`
	MimeType string `cbor:"7,keyasint,omitempty"` // FILE only

	Snapshot *Snapshot `cbor:"8,keyasint,omitempty"` // FOLDER only, top-level only
	Options  *Options  `cbor:"9,keyasint,omitempty"`

	Owner string `cbor:"10,keyasint"`

	// DeclaredSize is the byte count announced at creation for files;
	// zero means unknown, non-zero is verified by the DAG builder.
	DeclaredSize uint64 `cbor:"11,keyasint,omitempty"`

	// RootCid and Size are set when the session's DAG has been built,
	// together with the transition to MIGRATING.
	RootCid *cid.Cid `cbor:"12,keyasint,omitempty"`
	Size    uint64   `cbor:"13,keyasint,omitempty"`

	CreatedAt time.Time `cbor:"14,keyasint"`
	UpdatedAt time.Time `cbor:"15,keyasint"`
}

// TopLevel reports whether the session is the root of its upload.
func (s *Session) TopLevel() bool {
	return s.RootID == s.ID
}

// CanTransition reports whether moving from the current status to the given
// one is allowed. COMPLETED is only reachable through MIGRATING, CANCELLED
// only before migration starts, FAILED from any non-terminal state.
//
// One exception: a non-top-level session can be cancelled while MIGRATING.
// For a child, MIGRATING only means its bytes are in; when the whole upload
// is cancelled before its own migration starts, the cascade has to reach
// those children too.
func (s *Session) CanTransition(to Status) bool {
	switch to {
	case StatusMigrating:
		return s.Status == StatusPending
	case StatusCompleted:
		return s.Status == StatusMigrating
	case StatusCancelled:
		return s.Status == StatusPending || (s.Status == StatusMigrating && !s.TopLevel())
	case StatusFailed:
		return !s.Status.Terminal()
	}
	return false
}

// Transition moves the session to the given status or returns
// ErrInvalidStateTransition, carrying the offending pair for the caller.
func (s *Session) Transition(to Status) error {
	if !s.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// SessionStore is the durable table of upload sessions.
type SessionStore interface {
	// Put stores or updates a session record.
	Put(*Session) error

	// Get retrieves a session by id. Returns ErrNotFound if absent.
	Get(id string) (*Session, error)

	// EnumerateByRoot returns every session belonging to the given
	// top-level session, the top-level session itself excluded.
	EnumerateByRoot(rootID string) ([]*Session, error)

	// EnumerateByStatus returns every session currently in the given
	// status. Used by the migration sweep to find stuck sessions.
	EnumerateByStatus(Status) ([]*Session, error)

	// Close releases any resources held by the SessionStore.
	Close() error
}
