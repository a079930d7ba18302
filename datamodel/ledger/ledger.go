// Package ledger models the external chain's view of published nodes: the
// confirmation result recorded per CID once a node's batch transaction lands.
package ledger

import (
	"chaindrive/cid"
	"time"
)

type Status uint8

const (
	StatusPending   Status = 0x00
	StatusConfirmed Status = 0x01
	StatusFailed    Status = 0x02
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// TransactionResult is the current confirmation state of one node CID.
// At most one row exists per CID; a later write supersedes an earlier one
// regardless of content (arrival order wins, there is no notion of a
// "better" result).
type TransactionResult struct {
	Cid         cid.Cid   `cbor:"1,keyasint"`
	Success     bool      `cbor:"2,keyasint,omitempty"`
	Status      Status    `cbor:"3,keyasint"`
	BatchTxHash string    `cbor:"4,keyasint,omitempty"`
	BlockNumber *uint64   `cbor:"5,keyasint,omitempty"`
	BlockHash   string    `cbor:"6,keyasint,omitempty"`
	CreatedAt   time.Time `cbor:"7,keyasint"`
}

// TransactionResults is the durable table of confirmation results.
type TransactionResults interface {
	// Set upserts the result for its CID, latest write wins.
	Set(*TransactionResult) error

	// Get returns the current result for a CID, or nil if none exists.
	Get(*cid.Cid) (*TransactionResult, error)

	// Enumerate returns every stored result.
	Enumerate() ([]*TransactionResult, error)

	// Close releases any resources held by the store.
	Close() error
}
