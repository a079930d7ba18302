// Package leveldb implements the datamodel store interfaces on top of a
// shared LevelDB instance: upload sessions, raw chunks, finalized DAG nodes
// and transaction results, separated by key prefixes.
package leveldb

import (
	"fmt"
	"sync"

	"chaindrive/cid"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"

	log "github.com/sirupsen/logrus"
)

var ErrCorrupted = fmt.Errorf("corrupted")

const (
	keyPrefixSession     = "SES" // Session record by id
	keyPrefixSessionRoot = "SRT" // Session id by (root id, id)
	keyPrefixChunk       = "CHK" // Raw chunk bytes by (upload id, part index)
	keyPrefixNode        = "NOD" // Node record by CID
	keyPrefixNodeRoot    = "NRT" // Node record by (root CID, CID)
	keyPrefixTxResult    = "TXR" // Transaction result by CID
)

type LevelDB struct {
	path string
	mu   sync.Mutex
	db   *leveldb.DB
}

func keyFromParts(prefix string, parts ...string) []byte {
	key := []byte(prefix)
	for i, p := range parts {
		if i > 0 {
			key = append(key, '/')
		}
		key = append(key, []byte(p)...)
	}
	return key
}

func keyFromCid(prefix string, c *cid.Cid) []byte {
	return keyFromParts(prefix, c.String())
}

// Part indexes are keyed as fixed-width hex so the lexicographic iterator
// order is the numeric order.
func keyFromPart(uploadID string, partIndex uint32) []byte {
	return keyFromParts(keyPrefixChunk, uploadID, fmt.Sprintf("%08x", partIndex))
}

func initLevelDb(path string) (*leveldb.DB, error) {
	opts := &opt.Options{
		Compression: opt.NoCompression,
	}

	// Open or create the new DB
	db, err := leveldb.OpenFile(path, opts)
	if errors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}

	if err != nil {
		return nil, err
	}

	log.Infof("Opened LevelDB at %s", path)

	return db, nil
}

func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}
