package archival

import (
	"context"
	"errors"
	"time"

	"chaindrive/cid"
	"chaindrive/datamodel/dag"
	"chaindrive/datamodel/ledger"
	"chaindrive/metrics"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// Archiver schedules nodes for placement into long-term piece storage. The
// actual placement happens downstream; its completion is reported back
// through NodeStore.MarkArchived.
type Archiver interface {
	ScheduleArchival(cids []*cid.Cid) error
}

const defaultQueueDepth = 64

// Listener is the single long-lived consumer of the archival feed. Exactly
// one runs per deployment; its writes are all idempotent upserts, so replays
// and recovery overlap never corrupt state.
type Listener struct {
	feed     Feed
	tracker  *Tracker
	nodes    dag.NodeStore
	archiver Archiver

	margin     uint64
	queueDepth int
}

func NewListener(feed Feed, tracker *Tracker, nodes dag.NodeStore, archiver Archiver, margin uint64) *Listener {
	return &Listener{
		feed:       feed,
		tracker:    tracker,
		nodes:      nodes,
		archiver:   archiver,
		margin:     margin,
		queueDepth: defaultQueueDepth,
	}
}

// Run subscribes and consumes batches until the context is cancelled or the
// subscription dies. Receipt and application are decoupled by a buffered
// queue so a slow storage write does not stall the transport.
func (l *Listener) Run(ctx context.Context) error {
	req, err := ResolveSubscription(l.nodes, l.tracker.results, l.margin)
	if err != nil {
		return err
	}

	batches, err := l.feed.Subscribe(ctx, req)
	if err != nil {
		return err
	}

	queue := make(chan *Batch, l.queueDepth)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for {
			select {
			case batch, ok := <-batches:
				if !ok {
					return nil
				}
				select {
				case queue <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		for batch := range queue {
			l.apply(batch)
		}
		return nil
	})

	return g.Wait()
}

// apply records every mapping of a batch. Per-mapping failures are logged and
// skipped; one bad mapping must never halt the feed.
func (l *Listener) apply(batch *Batch) {
	var toArchive []*cid.Cid

	for _, m := range batch.Mappings {
		c, err := cid.FromString(m.Cid)
		if err != nil {
			log.Warnf("archival: dropping mapping with bad cid %q: %v", m.Cid, err)
			metrics.FeedMessagesDropped.Inc()
			continue
		}

		status := ledger.StatusConfirmed
		if !m.Success {
			status = ledger.StatusFailed
		}
		blk := m.BlockNumber
		res := &ledger.TransactionResult{
			Cid:         *c,
			Success:     m.Success,
			Status:      status,
			BatchTxHash: m.BatchTxHash,
			BlockNumber: &blk,
			BlockHash:   m.BlockHash,
			CreatedAt:   time.Now().UTC(),
		}
		if err := l.tracker.SetResult(res); err != nil {
			log.Errorf("archival: cannot record result for %s: %v", c.String(), err)
			continue
		}

		if m.Success {
			toArchive = append(toArchive, c)
		}
	}

	if len(toArchive) > 0 && l.archiver != nil {
		if err := l.archiver.ScheduleArchival(toArchive); err != nil {
			log.Errorf("archival: cannot schedule %d nodes for archival: %v", len(toArchive), err)
		}
	}

	for _, p := range batch.Placements {
		c, err := cid.FromString(p.Cid)
		if err != nil {
			log.Warnf("archival: dropping placement with bad cid %q: %v", p.Cid, err)
			metrics.FeedMessagesDropped.Inc()
			continue
		}
		if err := l.nodes.MarkArchived(c, p.PieceIndex, p.PieceOffset); err != nil {
			if errors.Is(err, dag.ErrNotFound) {
				// The shared feed announces nodes we never stored.
				log.Debugf("archival: placement for unknown node %s", c.String())
				continue
			}
			log.Errorf("archival: cannot mark %s archived: %v", c.String(), err)
			continue
		}
		metrics.ArchivalsApplied.Inc()
	}
}

// NullArchiver acknowledges scheduling without doing anything, for
// deployments where the placement pipeline runs out of process.
type NullArchiver struct{}

func (NullArchiver) ScheduleArchival(cids []*cid.Cid) error {
	log.Debugf("archival: %d nodes scheduled for out-of-process placement", len(cids))
	return nil
}
