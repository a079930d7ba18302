package archival

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"chaindrive/cid"
	"chaindrive/datamodel/dag"
	"chaindrive/datamodel/ledger"
	"chaindrive/datastore/leveldb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFeed replays a fixed sequence of batches and records the subscription
// request it was given.
type memFeed struct {
	req     *SubscribeRequest
	batches []*Batch
}

func (f *memFeed) Subscribe(ctx context.Context, req *SubscribeRequest) (<-chan *Batch, error) {
	f.req = req
	out := make(chan *Batch, len(f.batches))
	for _, b := range f.batches {
		out <- b
	}
	close(out)
	return out, nil
}

func (f *memFeed) Close() error { return nil }

type recordingArchiver struct {
	mu        sync.Mutex
	scheduled []*cid.Cid
}

func (a *recordingArchiver) ScheduleArchival(cids []*cid.Cid) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scheduled = append(a.scheduled, cids...)
	return nil
}

func newStores(t *testing.T) (*leveldb.NodeStore, *leveldb.TxResults) {
	t.Helper()
	dir := t.TempDir()
	nodes, err := leveldb.NewNodeStore(filepath.Join(dir, "nodes"))
	require.NoError(t, err)
	results, err := leveldb.NewTxResults(filepath.Join(dir, "txresults"))
	require.NoError(t, err)
	t.Cleanup(func() {
		nodes.Close()
		results.Close()
	})
	return nodes, results
}

func storedNode(t *testing.T, nodes *leveldb.NodeStore, seed string) *cid.Cid {
	t.Helper()
	c, err := cid.Sum(cid.CidTypeFileNode, []byte(seed))
	require.NoError(t, err)
	_, err = nodes.PutIfAbsent(&dag.Node{Cid: *c, RootCid: *c, Type: dag.NodeTypeFile})
	require.NoError(t, err)
	return c
}

func TestListenerAppliesMappingsAndPlacements(t *testing.T) {
	nodes, results := newStores(t)
	c := storedNode(t, nodes, "node-a")

	batch := &Batch{
		Mappings: []Mapping{{
			Cid:         c.String(),
			BatchTxHash: "0xabc",
			BlockNumber: 123,
			BlockHash:   "0xblock",
			Success:     true,
		}},
		Placements: []Placement{{
			Cid:        c.String(),
			PieceIndex: 7, PieceOffset: 4096,
		}},
	}
	// The same batch delivered twice; at-least-once must be harmless.
	feed := &memFeed{batches: []*Batch{batch, batch}}
	archiver := &recordingArchiver{}
	tracker := NewTracker(results)

	listener := NewListener(feed, tracker, nodes, archiver, DefaultRecoveryMargin)
	require.NoError(t, listener.Run(context.Background()))

	// Nothing was archived beforehand, so the subscription starts live.
	assert.Equal(t, ModeLive, feed.req.Mode)

	res, err := tracker.GetResult(c)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ledger.StatusConfirmed, res.Status)
	assert.EqualValues(t, 123, *res.BlockNumber)
	assert.Equal(t, "0xabc", res.BatchTxHash)

	node, err := nodes.Get(c)
	require.NoError(t, err)
	assert.True(t, node.Archived())
	assert.EqualValues(t, 7, *node.PieceIndex)

	// Both deliveries scheduled the node; dedup is the downstream's problem.
	assert.Len(t, archiver.scheduled, 2)

	all, err := results.Enumerate()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListenerDropsMalformedMappings(t *testing.T) {
	nodes, results := newStores(t)
	good := storedNode(t, nodes, "node-b")

	feed := &memFeed{batches: []*Batch{{
		Mappings: []Mapping{
			{Cid: "not-a-cid", Success: true, BlockNumber: 5},
			{Cid: good.String(), Success: true, BlockNumber: 9, BatchTxHash: "0x9"},
		},
		Placements: []Placement{
			{Cid: "also-not-a-cid", PieceIndex: 1},
		},
	}}}
	tracker := NewTracker(results)

	listener := NewListener(feed, tracker, nodes, NullArchiver{}, DefaultRecoveryMargin)
	require.NoError(t, listener.Run(context.Background()))

	res, err := tracker.GetResult(good)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "0x9", res.BatchTxHash)
}

func TestListenerRecordsFailedTransactions(t *testing.T) {
	nodes, results := newStores(t)
	c := storedNode(t, nodes, "node-c")

	archiver := &recordingArchiver{}
	feed := &memFeed{batches: []*Batch{{
		Mappings: []Mapping{{Cid: c.String(), Success: false, BlockNumber: 42, BatchTxHash: "0xdead"}},
	}}}

	listener := NewListener(feed, NewTracker(results), nodes, archiver, DefaultRecoveryMargin)
	require.NoError(t, listener.Run(context.Background()))

	res, err := results.Get(c)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ledger.StatusFailed, res.Status)
	// Failed transactions are never scheduled for archival.
	assert.Empty(t, archiver.scheduled)
}

func TestResolveSubscription(t *testing.T) {
	nodes, results := newStores(t)

	// Nothing archived: live.
	req, err := ResolveSubscription(nodes, results, 100)
	require.NoError(t, err)
	assert.Equal(t, ModeLive, req.Mode)

	archivedCid := storedNode(t, nodes, "archived")
	gapCid := storedNode(t, nodes, "gap")

	blkA, blkB := uint64(500), uint64(380)
	require.NoError(t, results.Set(&ledger.TransactionResult{
		Cid: *archivedCid, Success: true, Status: ledger.StatusConfirmed, BlockNumber: &blkA,
	}))
	require.NoError(t, results.Set(&ledger.TransactionResult{
		Cid: *gapCid, Success: true, Status: ledger.StatusConfirmed, BlockNumber: &blkB,
	}))
	require.NoError(t, nodes.MarkArchived(archivedCid, 1, 0))

	// One node is confirmed at block 380 but not archived: recover from
	// 380 minus the margin.
	req, err = ResolveSubscription(nodes, results, 100)
	require.NoError(t, err)
	assert.Equal(t, ModeRecover, req.Mode)
	assert.EqualValues(t, 280, req.FromBlock)

	// A margin larger than the block number clamps to zero.
	req, err = ResolveSubscription(nodes, results, 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 0, req.FromBlock)

	// Once the gap is archived too, recovery rewinds from the newest
	// confirmed block instead.
	require.NoError(t, nodes.MarkArchived(gapCid, 2, 0))
	req, err = ResolveSubscription(nodes, results, 100)
	require.NoError(t, err)
	assert.Equal(t, ModeRecover, req.Mode)
	assert.EqualValues(t, 400, req.FromBlock)
}
