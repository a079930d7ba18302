// Package status assembles the read model of an upload: the session record
// joined with its DAG nodes, their ledger transaction results, and their
// archival placement.
package status

import (
	"fmt"

	"chaindrive/datamodel/dag"
	"chaindrive/datamodel/ledger"
	"chaindrive/datamodel/upload"
)

// NodeSummary is the per-node line of an object summary.
type NodeSummary struct {
	Cid  string `cbor:"1,keyasint"`
	Type string `cbor:"2,keyasint"`
	Size uint64 `cbor:"3,keyasint,omitempty"`

	TxStatus    string  `cbor:"4,keyasint,omitempty"`
	BatchTxHash string  `cbor:"5,keyasint,omitempty"`
	BlockNumber *uint64 `cbor:"6,keyasint,omitempty"`

	Archived    bool    `cbor:"7,keyasint,omitempty"`
	PieceIndex  *uint64 `cbor:"8,keyasint,omitempty"`
	PieceOffset *uint64 `cbor:"9,keyasint,omitempty"`
}

// ObjectSummary describes one upload: its session state plus, once migrated,
// every node of its DAG with ledger and archival progress.
type ObjectSummary struct {
	UploadID string `cbor:"1,keyasint"`
	Name     string `cbor:"2,keyasint,omitempty"`
	Kind     string `cbor:"3,keyasint"`
	Status   string `cbor:"4,keyasint"`
	RootCid  string `cbor:"5,keyasint,omitempty"` // empty until migration finishes
	Size     uint64 `cbor:"6,keyasint,omitempty"`

	// PublishedNodes counts nodes with any recorded transaction result;
	// ArchivedNodes those already placed into piece storage. MinBlock and
	// MaxBlock span the confirmed block numbers across the subtree.
	TotalNodes     int     `cbor:"7,keyasint,omitempty"`
	PublishedNodes int     `cbor:"8,keyasint,omitempty"`
	ArchivedNodes  int     `cbor:"9,keyasint,omitempty"`
	MinBlock       *uint64 `cbor:"10,keyasint,omitempty"`
	MaxBlock       *uint64 `cbor:"11,keyasint,omitempty"`

	Nodes []NodeSummary `cbor:"12,keyasint,omitempty"`
}

// FullyArchived reports whether every node of the upload has been placed into
// long-term piece storage.
func (s *ObjectSummary) FullyArchived() bool {
	return s.TotalNodes > 0 && s.ArchivedNodes == s.TotalNodes
}

type Service struct {
	sessions upload.SessionStore
	nodes    dag.NodeStore
	results  ledger.TransactionResults
}

func NewService(sessions upload.SessionStore, nodes dag.NodeStore, results ledger.TransactionResults) *Service {
	return &Service{
		sessions: sessions,
		nodes:    nodes,
		results:  results,
	}
}

// Summarize builds the summary for one upload, owner-checked. Before
// migration the summary carries session state only; after it, the node list
// reflects whatever the ledger and the archival feed have reported so far.
func (s *Service) Summarize(owner, uploadID string) (*ObjectSummary, error) {
	session, err := s.sessions.Get(uploadID)
	if err != nil {
		return nil, err
	}
	if session.Owner != owner {
		return nil, fmt.Errorf("%w: upload %s does not belong to %s", upload.ErrPermissionDenied, uploadID, owner)
	}

	summary := &ObjectSummary{
		UploadID: session.ID,
		Name:     session.Name,
		Kind:     session.Kind.String(),
		Status:   session.Status.String(),
		Size:     session.Size,
	}

	if session.RootCid == nil {
		return summary, nil
	}
	summary.RootCid = session.RootCid.String()

	nodes, err := s.nodes.EnumerateByRoot(session.RootCid)
	if err != nil {
		return nil, err
	}

	summary.TotalNodes = len(nodes)
	for _, n := range nodes {
		line := NodeSummary{
			Cid:  n.Cid.String(),
			Type: n.Type.String(),
			Size: n.Size,
		}

		res, err := s.results.Get(&n.Cid)
		if err != nil {
			return nil, err
		}
		if res != nil {
			line.TxStatus = res.Status.String()
			line.BatchTxHash = res.BatchTxHash
			line.BlockNumber = res.BlockNumber
			summary.PublishedNodes++
			if res.Status == ledger.StatusConfirmed && res.BlockNumber != nil {
				blk := *res.BlockNumber
				if summary.MinBlock == nil || blk < *summary.MinBlock {
					summary.MinBlock = &blk
				}
				if summary.MaxBlock == nil || blk > *summary.MaxBlock {
					summary.MaxBlock = &blk
				}
			}
		}

		if n.Archived() {
			line.Archived = true
			line.PieceIndex = n.PieceIndex
			line.PieceOffset = n.PieceOffset
			summary.ArchivedNodes++
		}

		summary.Nodes = append(summary.Nodes, line)
	}

	return summary, nil
}
