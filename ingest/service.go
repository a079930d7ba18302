// Package ingest implements the upload intake: session creation, chunk
// acceptance, completion, and cancellation. Completion of a top-level upload
// hands the session to the migration coordinator; everything up to that point
// only records bytes and state.
package ingest

import (
	"context"
	"fmt"
	"time"

	"chaindrive/datamodel/dag"
	"chaindrive/datamodel/upload"
	"chaindrive/metrics"
	"chaindrive/migrate"

	"github.com/google/uuid"

	log "github.com/sirupsen/logrus"
)

type Service struct {
	sessions upload.SessionStore
	chunks   dag.ChunkStore
	coord    *migrate.Coordinator
}

func NewService(sessions upload.SessionStore, chunks dag.ChunkStore, coord *migrate.Coordinator) *Service {
	return &Service{
		sessions: sessions,
		chunks:   chunks,
		coord:    coord,
	}
}

// CreateFile opens a new top-level file upload session.
func (s *Service) CreateFile(owner, name, mimeType string, declaredSize uint64, opts *upload.Options) (*upload.Session, error) {
	if owner == "" || name == "" {
		return nil, fmt.Errorf("owner and name are required")
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	session := &upload.Session{
		ID:           id,
		RootID:       id,
		Kind:         upload.KindFile,
		Status:       upload.StatusPending,
		Name:         name,
		MimeType:     mimeType,
		Options:      opts,
		Owner:        owner,
		DeclaredSize: declaredSize,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.sessions.Put(session); err != nil {
		return nil, err
	}

	metrics.SessionsCreated.WithLabelValues(upload.KindFile.String()).Inc()
	log.Infof("ingest: created file upload %s (%s) for %s", id, name, owner)
	return session, nil
}

// CreateFolder opens a folder upload from its tree snapshot. One top-level
// session owns the snapshot; every other entry, file or subfolder, gets its
// own child session keyed back to the snapshot entry it implements.
func (s *Service) CreateFolder(owner string, snapshot *upload.Snapshot, opts *upload.Options) (*upload.Session, []*upload.Session, error) {
	if owner == "" {
		return nil, nil, fmt.Errorf("owner is required")
	}
	if snapshot == nil {
		return nil, nil, fmt.Errorf("folder upload requires a snapshot")
	}
	if err := snapshot.Validate(); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	rootID := uuid.NewString()
	root := &upload.Session{
		ID:        rootID,
		RootID:    rootID,
		Kind:      upload.KindFolder,
		Status:    upload.StatusPending,
		Name:      snapshot.Entries[snapshot.RootID].Name,
		Snapshot:  snapshot,
		Options:   opts,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var children []*upload.Session
	for id, entry := range snapshot.Entries {
		if id == snapshot.RootID {
			continue
		}
		children = append(children, &upload.Session{
			ID:         uuid.NewString(),
			RootID:     rootID,
			RelativeID: id,
			Kind:       entry.Kind,
			Status:     upload.StatusPending,
			Name:       entry.Name,
			Options:    opts,
			Owner:      owner,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := s.sessions.Put(root); err != nil {
		return nil, nil, err
	}
	for _, child := range children {
		if err := s.sessions.Put(child); err != nil {
			return nil, nil, err
		}
	}

	metrics.SessionsCreated.WithLabelValues(upload.KindFolder.String()).Inc()
	log.Infof("ingest: created folder upload %s (%s, %d entries) for %s", rootID, root.Name, len(snapshot.Entries), owner)
	return root, children, nil
}

// UploadChunk accepts one raw chunk of a file session. Chunks are only
// accepted while the session is PENDING; re-sending a part is an idempotent
// overwrite.
func (s *Service) UploadChunk(owner, uploadID string, partIndex uint32, data []byte) error {
	session, err := s.authorized(owner, uploadID)
	if err != nil {
		return err
	}

	if session.Kind != upload.KindFile {
		return fmt.Errorf("upload %s is a folder, it takes no bytes", uploadID)
	}
	if session.Status != upload.StatusPending {
		return fmt.Errorf("%w: upload %s is %s, cannot accept bytes", upload.ErrInvalidStateTransition, uploadID, session.Status)
	}

	if err := s.chunks.Put(session.ID, partIndex, data); err != nil {
		return err
	}

	metrics.ChunksIngested.Inc()
	metrics.BytesIngested.Add(float64(len(data)))
	return nil
}

// Complete marks a session's byte transfer finished.
//
// For a child session this only records the fact; the child is migrated
// together with its root. For a top-level session the whole subtree must be
// done transferring, and migration runs before Complete returns, so the
// returned session carries the final root CID on success. Completing a
// session that is already MIGRATING or COMPLETED returns the stored record
// unchanged, which makes client retries of Complete safe.
func (s *Service) Complete(ctx context.Context, owner, uploadID string) (*upload.Session, error) {
	session, err := s.authorized(owner, uploadID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case upload.StatusMigrating, upload.StatusCompleted:
		return session, nil
	case upload.StatusCancelled, upload.StatusFailed:
		return nil, fmt.Errorf("%w: upload %s is %s", upload.ErrInvalidStateTransition, uploadID, session.Status)
	}

	if session.TopLevel() && session.Kind == upload.KindFolder {
		if err := s.checkSubtreeDone(session); err != nil {
			return nil, err
		}
	}

	if err := session.Transition(upload.StatusMigrating); err != nil {
		return nil, err
	}
	if err := s.sessions.Put(session); err != nil {
		return nil, err
	}

	if !session.TopLevel() {
		log.Debugf("ingest: child session %s done transferring", uploadID)
		return session, nil
	}

	if err := s.coord.ProcessMigration(ctx, session.ID); err != nil {
		return nil, err
	}

	return s.sessions.Get(session.ID)
}

// checkSubtreeDone verifies that every snapshot entry of a folder upload has
// finished its byte transfer before the root is allowed to complete.
func (s *Service) checkSubtreeDone(root *upload.Session) error {
	children, err := s.sessions.EnumerateByRoot(root.ID)
	if err != nil {
		return err
	}

	byEntry := make(map[string]*upload.Session, len(children))
	for _, child := range children {
		byEntry[child.RelativeID] = child
	}

	for id := range root.Snapshot.Entries {
		if id == root.Snapshot.RootID {
			continue
		}
		child, ok := byEntry[id]
		if !ok {
			return fmt.Errorf("%w: snapshot entry %q has no session", upload.ErrIncompleteSubtree, id)
		}
		if child.Status != upload.StatusMigrating && child.Status != upload.StatusCompleted {
			return fmt.Errorf("%w: session %s (%s) is %s", upload.ErrIncompleteSubtree, child.ID, child.Name, child.Status)
		}
	}

	return nil
}

// Cancel aborts an upload that has not started migrating. Cancelling a
// top-level session cascades to every non-terminal child.
func (s *Service) Cancel(owner, uploadID string) error {
	session, err := s.authorized(owner, uploadID)
	if err != nil {
		return err
	}

	if session.Status != upload.StatusPending {
		return fmt.Errorf("%w: upload %s is %s, only PENDING uploads can be cancelled", upload.ErrInvalidStateTransition, uploadID, session.Status)
	}

	if err := session.Transition(upload.StatusCancelled); err != nil {
		return err
	}
	if err := s.sessions.Put(session); err != nil {
		return err
	}

	if !session.TopLevel() {
		return nil
	}

	children, err := s.sessions.EnumerateByRoot(session.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Status.Terminal() {
			continue
		}
		if err := child.Transition(upload.StatusCancelled); err != nil {
			log.Warnf("ingest: cannot cancel child %s: %v", child.ID, err)
			continue
		}
		if err := s.sessions.Put(child); err != nil {
			return err
		}
	}

	log.Infof("ingest: cancelled upload %s", uploadID)
	return nil
}

// Get returns the session record, owner-checked.
func (s *Service) Get(owner, uploadID string) (*upload.Session, error) {
	return s.authorized(owner, uploadID)
}

func (s *Service) authorized(owner, uploadID string) (*upload.Session, error) {
	session, err := s.sessions.Get(uploadID)
	if err != nil {
		return nil, err
	}
	if session.Owner != owner {
		return nil, fmt.Errorf("%w: upload %s does not belong to %s", upload.ErrPermissionDenied, uploadID, owner)
	}
	return session, nil
}
