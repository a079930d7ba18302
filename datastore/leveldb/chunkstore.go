package leveldb

import (
	"chaindrive/datamodel/dag"

	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ dag.ChunkStore = (*ChunkStore)(nil)

// ChunkStore stores raw upload chunks keyed by (uploadId, partIndex).
// Writes are atomic single-key puts; re-writing an existing key is an
// idempotent overwrite and never interleaves with a concurrent writer of
// the same key.
type ChunkStore struct {
	LevelDB
}

func NewChunkStore(path string) (*ChunkStore, error) {
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	return &ChunkStore{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
	}, nil
}

func (l *ChunkStore) Put(uploadID string, partIndex uint32, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.db.Put(keyFromPart(uploadID, partIndex), data, nil)
}

// ListOrdered returns chunk bytes by part index, ascending. The fixed-width
// hex key layout makes the iterator order the numeric part order.
func (l *ChunkStore) ListOrdered(uploadID string) ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := keyFromParts(keyPrefixChunk, uploadID, "")

	var chunks [][]byte

	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		data := make([]byte, len(iter.Value()))
		copy(data, iter.Value())
		chunks = append(chunks, data)
	}

	return chunks, iter.Error()
}

func (l *ChunkStore) Count(uploadID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := keyFromParts(keyPrefixChunk, uploadID, "")

	count := 0
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		count++
	}

	return count, iter.Error()
}
