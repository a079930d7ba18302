// Package dag defines the content-addressed node model of the upload
// pipeline: the deterministic payload encoding, the builder that turns raw
// bytes and folder trees into nodes, and the store contracts the pipeline
// persists through.
package dag

import (
	"chaindrive/cid"
	"errors"
	"time"
)

type NodeType uint8

const (
	NodeTypeChunk  NodeType = 0x00
	NodeTypeFile   NodeType = 0x01
	NodeTypeFolder NodeType = 0x02
)

var ErrNotFound = errors.New("not found")
var ErrEncoding = errors.New("encoding error")

func (t NodeType) String() string {
	switch t {
	case NodeTypeChunk:
		return "chunk-node"
	case NodeTypeFile:
		return "file-node"
	case NodeTypeFolder:
		return "folder-node"
	}
	return "unknown"
}

// Node is a finalized DAG node as persisted in the NodeStore.
// A Node is immutable once created: the CID is the typed SHA256 of Payload,
// so the payload for a given CID never changes. The only mutable columns are
// the archival ones (PieceIndex/PieceOffset), set once the external ledger
// places the node into its long-term piece storage.
type Node struct {
	Cid         cid.Cid   `cbor:"1,keyasint"`           // CID of the node, hash of Payload
	Payload     []byte    `cbor:"2,keyasint,omitempty"` // Encoded node payload (links + inline data)
	RootCid     cid.Cid   `cbor:"3,keyasint"`           // CID of the top-level node of this subtree
	HeadCid     *cid.Cid  `cbor:"4,keyasint,omitempty"` // Root of the named document this row belongs to (folder uploads)
	Type        NodeType  `cbor:"5,keyasint"`
	Size        uint64    `cbor:"6,keyasint,omitempty"` // Logical size of the subtree below this node
	PieceIndex  *uint64   `cbor:"7,keyasint,omitempty"` // Set once archived into piece storage
	PieceOffset *uint64   `cbor:"8,keyasint,omitempty"`
	CreatedAt   time.Time `cbor:"9,keyasint"`
}

// Archived reports whether the node has been placed into the external
// ledger's long-term piece storage.
func (n *Node) Archived() bool {
	return n.PieceIndex != nil && n.PieceOffset != nil
}

// NodeStore is the durable table of finalized DAG nodes, keyed by CID.
// Rows are append-mostly: insert-or-ignore on CID, update-in-place only for
// the archival columns. No row is ever deleted.
type NodeStore interface {
	// PutIfAbsent stores the node unless a row for its CID already exists.
	// Content addressing makes the existing row equivalent, so the conflict
	// is a no-op; the bool reports whether a new row was written.
	PutIfAbsent(*Node) (bool, error)

	// Get retrieves a node by CID. Returns ErrNotFound if no row exists.
	Get(*cid.Cid) (*Node, error)

	// Has checks whether a row for the CID exists.
	Has(*cid.Cid) (bool, error)

	// EnumerateByRoot returns every node whose RootCid equals the given CID.
	EnumerateByRoot(*cid.Cid) ([]*Node, error)

	// MarkArchived records the piece placement for a node. Idempotent.
	MarkArchived(c *cid.Cid, pieceIndex uint64, pieceOffset uint64) error

	// HasArchived reports whether any node in the store has ever been
	// archived. Drives the archival listener's startup mode decision.
	HasArchived() (bool, error)

	// Enumerate returns the CIDs of all stored nodes.
	Enumerate() ([]*cid.Cid, error)

	// Close releases any resources held by the NodeStore.
	Close() error
}

// ChunkStore is the append-only store of raw upload chunks keyed by
// (uploadId, partIndex). Pure key-value semantics: a chunk write is atomic or
// it doesn't happen, and re-writing the same key is an idempotent overwrite.
type ChunkStore interface {
	// Put stores the raw bytes for one part of an upload.
	Put(uploadID string, partIndex uint32, data []byte) error

	// ListOrdered returns the chunk bytes for an upload ordered by part
	// index, ascending. Gap detection is the DAG builder's job, not the
	// store's.
	ListOrdered(uploadID string) ([][]byte, error)

	// Count returns the number of chunks stored for an upload.
	Count(uploadID string) (int, error)

	// Close releases any resources held by the ChunkStore.
	Close() error
}
