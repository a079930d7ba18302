package archival

import (
	"errors"

	"chaindrive/datamodel/dag"
	"chaindrive/datamodel/ledger"

	log "github.com/sirupsen/logrus"
)

// DefaultRecoveryMargin is how many blocks the recovery subscription rewinds
// past the oldest known gap. A safety buffer against feed reordering, not a
// correctness constant.
const DefaultRecoveryMargin = 100

// ResolveSubscription decides the startup subscription mode.
//
// A store that has never archived anything has no history to reconcile, so it
// subscribes live. Otherwise the subscription recovers from margin blocks
// before the oldest confirmed block whose node is still unarchived; if every
// confirmed node is already archived, from the newest confirmed block, to
// re-check the recent past the feed may have reshuffled.
func ResolveSubscription(nodes dag.NodeStore, results ledger.TransactionResults, margin uint64) (*SubscribeRequest, error) {
	archived, err := nodes.HasArchived()
	if err != nil {
		return nil, err
	}
	if !archived {
		return &SubscribeRequest{Mode: ModeLive}, nil
	}

	all, err := results.Enumerate()
	if err != nil {
		return nil, err
	}

	var minGap, maxSeen *uint64
	for _, res := range all {
		if res.Status != ledger.StatusConfirmed || res.BlockNumber == nil {
			continue
		}
		blk := *res.BlockNumber
		if maxSeen == nil || blk > *maxSeen {
			maxSeen = &blk
		}

		node, err := nodes.Get(&res.Cid)
		if err != nil {
			if errors.Is(err, dag.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !node.Archived() && (minGap == nil || blk < *minGap) {
			minGap = &blk
		}
	}

	base := maxSeen
	if minGap != nil {
		base = minGap
	}
	if base == nil {
		// Archived rows exist but no confirmed result is on record; the
		// whole history is suspect.
		log.Warn("archival: archived nodes without confirmation records, recovering from block 0")
		return &SubscribeRequest{Mode: ModeRecover, FromBlock: 0}, nil
	}

	from := uint64(0)
	if *base > margin {
		from = *base - margin
	}
	return &SubscribeRequest{Mode: ModeRecover, FromBlock: from}, nil
}
