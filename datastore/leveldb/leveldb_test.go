package leveldb

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chaindrive/cid"
	"chaindrive/datamodel/dag"
	"chaindrive/datamodel/ledger"
	"chaindrive/datamodel/upload"
)

func testCid(t *testing.T, ct cid.CidType, payload string) *cid.Cid {
	t.Helper()
	c, err := cid.Sum(ct, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestChunkStorePutListOrdered(t *testing.T) {
	cs, err := NewChunkStore(filepath.Join(t.TempDir(), "chunks"))
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	// Out-of-order writes, ListOrdered must return part order.
	if err := cs.Put("up1", 2, []byte("cc")); err != nil {
		t.Fatal(err)
	}
	if err := cs.Put("up1", 0, []byte("aa")); err != nil {
		t.Fatal(err)
	}
	if err := cs.Put("up1", 1, []byte("bb")); err != nil {
		t.Fatal(err)
	}
	// A different upload must not leak in.
	if err := cs.Put("up2", 0, []byte("zz")); err != nil {
		t.Fatal(err)
	}

	chunks, err := cs.ListOrdered("up1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if !bytes.Equal(chunks[0], []byte("aa")) || !bytes.Equal(chunks[1], []byte("bb")) || !bytes.Equal(chunks[2], []byte("cc")) {
		t.Fatalf("chunks out of order: %q", chunks)
	}

	// Re-writing the same key is an idempotent overwrite.
	if err := cs.Put("up1", 1, []byte("bb")); err != nil {
		t.Fatal(err)
	}
	n, err := cs.Count("up1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 chunks after overwrite, got %d", n)
	}
}

func TestNodeStorePutIfAbsentDedup(t *testing.T) {
	ns, err := NewNodeStore(filepath.Join(t.TempDir(), "nodes"))
	if err != nil {
		t.Fatal(err)
	}
	defer ns.Close()

	root := testCid(t, cid.CidTypeFileNode, "root")
	node := &dag.Node{
		Cid:     *root,
		Payload: []byte{0x01},
		RootCid: *root,
		Type:    dag.NodeTypeFile,
		Size:    100,
	}

	created, err := ns.PutIfAbsent(node)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first put must create the row")
	}

	created, err = ns.PutIfAbsent(node)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second put of the same CID must be a no-op")
	}

	got, err := ns.Get(root)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Cid.Equal(root) || got.Size != 100 {
		t.Fatalf("unexpected node: %+v", got)
	}

	if _, err := ns.Get(testCid(t, cid.CidTypeFileNode, "missing")); !errors.Is(err, dag.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNodeStoreRootScanAndArchival(t *testing.T) {
	ns, err := NewNodeStore(filepath.Join(t.TempDir(), "nodes"))
	if err != nil {
		t.Fatal(err)
	}
	defer ns.Close()

	root := testCid(t, cid.CidTypeFolderNode, "folder")
	child := testCid(t, cid.CidTypeFileNode, "file")
	other := testCid(t, cid.CidTypeFileNode, "unrelated")

	for _, n := range []*dag.Node{
		{Cid: *root, RootCid: *root, Type: dag.NodeTypeFolder},
		{Cid: *child, RootCid: *root, HeadCid: root, Type: dag.NodeTypeFile},
		{Cid: *other, RootCid: *other, Type: dag.NodeTypeFile},
	} {
		if _, err := ns.PutIfAbsent(n); err != nil {
			t.Fatal(err)
		}
	}

	nodes, err := ns.EnumerateByRoot(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes under root, got %d", len(nodes))
	}

	archived, err := ns.HasArchived()
	if err != nil {
		t.Fatal(err)
	}
	if archived {
		t.Fatal("nothing archived yet")
	}

	if err := ns.MarkArchived(child, 7, 4096); err != nil {
		t.Fatal(err)
	}
	// Idempotent re-mark.
	if err := ns.MarkArchived(child, 7, 4096); err != nil {
		t.Fatal(err)
	}

	archived, err = ns.HasArchived()
	if err != nil {
		t.Fatal(err)
	}
	if !archived {
		t.Fatal("expected HasArchived after MarkArchived")
	}

	// The root-scan copy must carry the archival columns too.
	nodes, err = ns.EnumerateByRoot(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		if n.Cid.Equal(child) && !n.Archived() {
			t.Fatal("root-scan copy missing archival columns")
		}
	}
}

func TestSessionStoreRoundtrip(t *testing.T) {
	ss, err := NewSessionStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	now := time.Now().UTC()
	root := &upload.Session{
		ID: "root", RootID: "root", Kind: upload.KindFolder,
		Status: upload.StatusPending, Name: "test", Owner: "alice",
		Snapshot: &upload.Snapshot{
			RootID: "e0",
			Entries: map[string]*upload.TreeEntry{
				"e0": {ID: "e0", Name: "test", Kind: upload.KindFolder, Children: []string{"e1"}},
				"e1": {ID: "e1", Name: "test.txt", Kind: upload.KindFile},
			},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	child := &upload.Session{
		ID: "c1", RootID: "root", RelativeID: "e1", Kind: upload.KindFile,
		Status: upload.StatusPending, Name: "test.txt", MimeType: "text/plain",
		Owner: "alice", CreatedAt: now, UpdatedAt: now,
	}

	if err := ss.Put(root); err != nil {
		t.Fatal(err)
	}
	if err := ss.Put(child); err != nil {
		t.Fatal(err)
	}

	got, err := ss.Get("root")
	if err != nil {
		t.Fatal(err)
	}
	if got.Snapshot == nil || len(got.Snapshot.Entries) != 2 {
		t.Fatalf("snapshot lost in roundtrip: %+v", got.Snapshot)
	}
	if got.Owner != "alice" || got.Kind != upload.KindFolder {
		t.Fatalf("unexpected session: %+v", got)
	}

	subtree, err := ss.EnumerateByRoot("root")
	if err != nil {
		t.Fatal(err)
	}
	if len(subtree) != 1 || subtree[0].ID != "c1" {
		t.Fatalf("unexpected subtree: %+v", subtree)
	}

	pending, err := ss.EnumerateByStatus(upload.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending sessions, got %d", len(pending))
	}

	if _, err := ss.Get("nope"); !errors.Is(err, upload.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTxResultsLatestWriteWins(t *testing.T) {
	tr, err := NewTxResults(filepath.Join(t.TempDir(), "txresults"))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	c := testCid(t, cid.CidTypeFileNode, "published")

	res, err := tr.Get(c)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatal("expected nil result before any write")
	}

	blk := uint64(123)
	first := &ledger.TransactionResult{
		Cid: *c, Success: true, Status: ledger.StatusConfirmed,
		BatchTxHash: "0xaaa", BlockNumber: &blk,
	}
	if err := tr.Set(first); err != nil {
		t.Fatal(err)
	}

	// The same write applied twice leaves the same state.
	if err := tr.Set(first); err != nil {
		t.Fatal(err)
	}

	res, err = tr.Get(c)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.BatchTxHash != "0xaaa" || *res.BlockNumber != 123 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// A later write supersedes, whatever it carries.
	blk2 := uint64(456)
	if err := tr.Set(&ledger.TransactionResult{
		Cid: *c, Success: false, Status: ledger.StatusFailed,
		BatchTxHash: "0xbbb", BlockNumber: &blk2,
	}); err != nil {
		t.Fatal(err)
	}

	res, err = tr.Get(c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.BatchTxHash != "0xbbb" || *res.BlockNumber != 456 {
		t.Fatalf("latest write must win: %+v", res)
	}

	all, err := tr.Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single row per CID, got %d", len(all))
	}
}
