package leveldb

import (
	"errors"
	"time"

	"chaindrive/cid"
	"chaindrive/datamodel/ledger"

	"github.com/fxamacker/cbor/v2"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ ledger.TransactionResults = (*TxResults)(nil)

// TxResults is the durable table of transaction results, one row per CID.
// Set is a plain overwrite: the latest write wins by arrival order, which is
// what makes replayed feed deliveries harmless.
type TxResults struct {
	LevelDB
}

func NewTxResults(path string) (*TxResults, error) {
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	return &TxResults{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
	}, nil
}

func (l *TxResults) Set(res *ledger.TransactionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	raw, err := cbor.Marshal(res)
	if err != nil {
		return err
	}

	return l.db.Put(keyFromCid(keyPrefixTxResult, &res.Cid), raw, nil)
}

func (l *TxResults) Get(c *cid.Cid) (*ledger.TransactionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.db.Get(keyFromCid(keyPrefixTxResult, c), nil)
	if err != nil {
		if errors.Is(err, lerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	res := &ledger.TransactionResult{}
	if err := cbor.Unmarshal(raw, res); err != nil {
		return nil, err
	}

	return res, nil
}

func (l *TxResults) Enumerate() ([]*ledger.TransactionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []*ledger.TransactionResult

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixTxResult)), nil)
	defer iter.Release()

	for iter.Next() {
		res := &ledger.TransactionResult{}
		if err := cbor.Unmarshal(iter.Value(), res); err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, iter.Error()
}
