package status_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"chaindrive/datamodel/dag"
	"chaindrive/datamodel/ledger"
	"chaindrive/datastore/leveldb"
	"chaindrive/ingest"
	"chaindrive/migrate"
	"chaindrive/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	ingest  *ingest.Service
	status  *status.Service
	nodes   *leveldb.NodeStore
	results *leveldb.TxResults
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	sessions, err := leveldb.NewSessionStore(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	chunks, err := leveldb.NewChunkStore(filepath.Join(dir, "chunks"))
	require.NoError(t, err)
	nodes, err := leveldb.NewNodeStore(filepath.Join(dir, "nodes"))
	require.NoError(t, err)
	results, err := leveldb.NewTxResults(filepath.Join(dir, "txresults"))
	require.NoError(t, err)
	t.Cleanup(func() {
		sessions.Close()
		chunks.Close()
		nodes.Close()
		results.Close()
	})

	coord := migrate.NewCoordinator(sessions, chunks, nodes, dag.NewBuilder(0), 1, time.Millisecond)
	return &env{
		ingest:  ingest.NewService(sessions, chunks, coord),
		status:  status.NewService(sessions, nodes, results),
		nodes:   nodes,
		results: results,
	}
}

func TestSummaryBeforeMigration(t *testing.T) {
	e := newEnv(t)

	session, err := e.ingest.CreateFile("alice", "test.txt", "text/plain", 0, nil)
	require.NoError(t, err)

	summary, err := e.status.Summarize("alice", session.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", summary.Status)
	assert.Empty(t, summary.RootCid)
	assert.Zero(t, summary.TotalNodes)
}

func TestSummaryConfirmationThenArchival(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	session, err := e.ingest.CreateFile("alice", "test.txt", "text/plain", 100, nil)
	require.NoError(t, err)
	require.NoError(t, e.ingest.UploadChunk("alice", session.ID, 0, bytes.Repeat([]byte("x"), 100)))
	done, err := e.ingest.Complete(ctx, "alice", session.ID)
	require.NoError(t, err)

	// Freshly migrated: one node, nothing published or archived yet.
	summary, err := e.status.Summarize("alice", session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalNodes)
	assert.Zero(t, summary.PublishedNodes)
	assert.Zero(t, summary.ArchivedNodes)
	assert.Nil(t, summary.MinBlock)

	// The ledger confirms every node of the subtree at block 123.
	subtree, err := e.nodes.EnumerateByRoot(done.RootCid)
	require.NoError(t, err)
	blk := uint64(123)
	for _, n := range subtree {
		require.NoError(t, e.results.Set(&ledger.TransactionResult{
			Cid: n.Cid, Success: true, Status: ledger.StatusConfirmed,
			BatchTxHash: "0xbatch", BlockNumber: &blk,
		}))
	}

	summary, err = e.status.Summarize("alice", session.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.TotalNodes, summary.PublishedNodes)
	require.NotNil(t, summary.MinBlock)
	assert.EqualValues(t, 123, *summary.MinBlock)
	assert.EqualValues(t, 123, *summary.MaxBlock)
	assert.Zero(t, summary.ArchivedNodes)
	assert.False(t, summary.FullyArchived())

	// Piece placement lands for every node.
	for i, n := range subtree {
		require.NoError(t, e.nodes.MarkArchived(&n.Cid, uint64(i), 0))
	}

	summary, err = e.status.Summarize("alice", session.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.TotalNodes, summary.ArchivedNodes)
	assert.True(t, summary.FullyArchived())
	for _, line := range summary.Nodes {
		assert.True(t, line.Archived)
		assert.Equal(t, "CONFIRMED", line.TxStatus)
	}
}
