package leveldb

import (
	"errors"
	"time"

	"chaindrive/cid"
	"chaindrive/datamodel/dag"

	"github.com/fxamacker/cbor/v2"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	goleveldb "github.com/syndtr/goleveldb/leveldb"

	log "github.com/sirupsen/logrus"
)

var _ dag.NodeStore = (*NodeStore)(nil)

// NodeStore is the durable table of finalized DAG nodes. Every record is
// written under two keys, by CID and by (root CID, CID), so subtree reads
// are a single prefix scan. Both keys are updated in one batch.
type NodeStore struct {
	LevelDB
}

func NewNodeStore(path string) (*NodeStore, error) {
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	return &NodeStore{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
	}, nil
}

func (l *NodeStore) PutIfAbsent(node *dag.Node) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Dedup on CID: content addressing guarantees an existing row holds
	// the same payload, so the conflict is a no-op, not an error.
	_, err := l.db.Get(keyFromCid(keyPrefixNode, &node.Cid), nil)
	if err == nil {
		log.Debugf("PutIfAbsent: node %s already exists, skipping", node.Cid.String())
		return false, nil
	}
	if err != lerrors.ErrNotFound {
		return false, err
	}

	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	raw, err := cbor.Marshal(node)
	if err != nil {
		return false, err
	}

	batch := new(goleveldb.Batch)
	batch.Put(keyFromCid(keyPrefixNode, &node.Cid), raw)
	batch.Put(rootKey(&node.RootCid, &node.Cid), raw)

	if err := l.db.Write(batch, nil); err != nil {
		return false, err
	}

	return true, nil
}

func rootKey(root *cid.Cid, c *cid.Cid) []byte {
	return keyFromParts(keyPrefixNodeRoot, root.String(), c.String())
}

func (l *NodeStore) Get(c *cid.Cid) (*dag.Node, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.get(c)
}

func (l *NodeStore) get(c *cid.Cid) (*dag.Node, error) {
	raw, err := l.db.Get(keyFromCid(keyPrefixNode, c), nil)
	if err != nil {
		if errors.Is(err, lerrors.ErrNotFound) {
			return nil, dag.ErrNotFound
		}
		return nil, err
	}

	node := &dag.Node{}
	if err := cbor.Unmarshal(raw, node); err != nil {
		return nil, err
	}

	// Compare the CID just in case
	if !node.Cid.Equal(c) {
		log.Errorf("Get: CID mismatch: %s != %s", c.String(), node.Cid.String())
		return nil, ErrCorrupted
	}

	return node, nil
}

func (l *NodeStore) Has(c *cid.Cid) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Get(keyFromCid(keyPrefixNode, c), nil)
	if err == nil {
		return true, nil
	} else if err == lerrors.ErrNotFound {
		return false, nil
	} else {
		return false, err
	}
}

func (l *NodeStore) EnumerateByRoot(root *cid.Cid) ([]*dag.Node, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := keyFromParts(keyPrefixNodeRoot, root.String(), "")

	var nodes []*dag.Node

	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		node := &dag.Node{}
		if err := cbor.Unmarshal(iter.Value(), node); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, iter.Error()
}

// MarkArchived records the piece placement of a node. Both copies of the
// record are rewritten in one batch. Idempotent: re-marking overwrites the
// same columns with the same values.
func (l *NodeStore) MarkArchived(c *cid.Cid, pieceIndex uint64, pieceOffset uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	node, err := l.get(c)
	if err != nil {
		return err
	}

	node.PieceIndex = &pieceIndex
	node.PieceOffset = &pieceOffset

	raw, err := cbor.Marshal(node)
	if err != nil {
		return err
	}

	batch := new(goleveldb.Batch)
	batch.Put(keyFromCid(keyPrefixNode, &node.Cid), raw)
	batch.Put(rootKey(&node.RootCid, &node.Cid), raw)

	return l.db.Write(batch, nil)
}

func (l *NodeStore) HasArchived() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixNode)), nil)
	defer iter.Release()

	for iter.Next() {
		node := &dag.Node{}
		if err := cbor.Unmarshal(iter.Value(), node); err != nil {
			return false, err
		}
		if node.Archived() {
			return true, nil
		}
	}

	return false, iter.Error()
}

func (l *NodeStore) Enumerate() ([]*cid.Cid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []*cid.Cid

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixNode)), nil)
	defer iter.Release()

	for iter.Next() {
		node := &dag.Node{}
		if err := cbor.Unmarshal(iter.Value(), node); err != nil {
			return nil, err
		}
		c := node.Cid
		results = append(results, &c)
	}

	return results, iter.Error()
}
