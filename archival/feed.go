// Package archival consumes the external ledger's announcement feed: batches
// of CID-to-transaction mappings that report which nodes landed on chain and,
// eventually, where they were archived. All writes it makes are upserts, so
// the feed's at-least-once delivery is harmless.
package archival

import "context"

const (
	ModeLive    = "live"
	ModeRecover = "recover"
)

// SubscribeRequest selects where the feed starts. Live delivers only new
// mappings; recover replays history from FromBlock onward.
type SubscribeRequest struct {
	Mode      string `json:"mode"`
	FromBlock uint64 `json:"fromBlock,omitempty"`
}

// Mapping announces that a node's CID was included in a batch transaction.
type Mapping struct {
	Cid         string `json:"cid"`
	BatchTxHash string `json:"batchTxHash"`
	BlockNumber uint64 `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
	Success     bool   `json:"success"`
}

// Placement announces that an archived node landed in piece storage.
type Placement struct {
	Cid         string `json:"cid"`
	PieceIndex  uint64 `json:"pieceIndex"`
	PieceOffset uint64 `json:"pieceOffset"`
}

// Batch is one inbound feed message.
type Batch struct {
	Mappings   []Mapping   `json:"mappings,omitempty"`
	Placements []Placement `json:"placements,omitempty"`
}

// Feed is a subscription to the external announcement stream. The returned
// channel is closed when the subscription ends; transport errors end the
// subscription rather than surfacing per-message.
type Feed interface {
	Subscribe(ctx context.Context, req *SubscribeRequest) (<-chan *Batch, error)
	Close() error
}
