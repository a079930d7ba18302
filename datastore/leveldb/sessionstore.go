package leveldb

import (
	"errors"

	"chaindrive/datamodel/upload"

	"github.com/fxamacker/cbor/v2"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	goleveldb "github.com/syndtr/goleveldb/leveldb"

	log "github.com/sirupsen/logrus"
)

var _ upload.SessionStore = (*SessionStore)(nil)

// SessionStore is the durable table of upload sessions. Records are written
// by id and, for non-top-level sessions, additionally under a (root id, id)
// key so subtree reads are a single prefix scan.
type SessionStore struct {
	LevelDB
}

func NewSessionStore(path string) (*SessionStore, error) {
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	return &SessionStore{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
	}, nil
}

func (l *SessionStore) Put(s *upload.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := cbor.Marshal(s)
	if err != nil {
		return err
	}

	batch := new(goleveldb.Batch)
	batch.Put(keyFromParts(keyPrefixSession, s.ID), raw)
	if !s.TopLevel() {
		batch.Put(keyFromParts(keyPrefixSessionRoot, s.RootID, s.ID), raw)
	}

	return l.db.Write(batch, nil)
}

func (l *SessionStore) Get(id string) (*upload.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.db.Get(keyFromParts(keyPrefixSession, id), nil)
	if err != nil {
		if errors.Is(err, lerrors.ErrNotFound) {
			return nil, upload.ErrNotFound
		}
		return nil, err
	}

	s := &upload.Session{}
	if err := cbor.Unmarshal(raw, s); err != nil {
		return nil, err
	}

	// Compare the id just in case
	if s.ID != id {
		log.Errorf("Get: session id mismatch: %s != %s", id, s.ID)
		return nil, ErrCorrupted
	}

	return s, nil
}

func (l *SessionStore) EnumerateByRoot(rootID string) ([]*upload.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := keyFromParts(keyPrefixSessionRoot, rootID, "")

	var sessions []*upload.Session

	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		s := &upload.Session{}
		if err := cbor.Unmarshal(iter.Value(), s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, iter.Error()
}

func (l *SessionStore) EnumerateByStatus(status upload.Status) ([]*upload.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sessions []*upload.Session

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixSession)), nil)
	defer iter.Release()

	for iter.Next() {
		s := &upload.Session{}
		if err := cbor.Unmarshal(iter.Value(), s); err != nil {
			return nil, err
		}
		if s.Status == status {
			sessions = append(sessions, s)
		}
	}

	return sessions, iter.Error()
}
