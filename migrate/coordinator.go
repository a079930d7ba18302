// Package migrate turns completed upload sessions into persisted DAG nodes.
//
// The coordinator owns the PENDING -> MIGRATING -> COMPLETED leg of the
// session state machine. Migration is deterministic and idempotent: the DAG
// is re-derived from the stored chunks on every attempt, node writes are
// insert-or-ignore on CID, and a crash at any point is repaired by simply
// running the migration again.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chaindrive/datamodel/dag"
	"chaindrive/datamodel/upload"
	"chaindrive/helper/timer"
	"chaindrive/metrics"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 500 * time.Millisecond
)

type Coordinator struct {
	sessions upload.SessionStore
	chunks   dag.ChunkStore
	nodes    dag.NodeStore
	builder  *dag.Builder

	maxAttempts    uint64
	initialBackoff time.Duration

	// Collapses concurrent migrations of the same upload (the ingest path
	// and the sweep racing each other) into a single run.
	inflight singleflight.Group
}

func NewCoordinator(sessions upload.SessionStore, chunks dag.ChunkStore, nodes dag.NodeStore, builder *dag.Builder, maxAttempts uint64, initialBackoff time.Duration) *Coordinator {
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if initialBackoff <= 0 {
		initialBackoff = DefaultInitialBackoff
	}

	return &Coordinator{
		sessions:       sessions,
		chunks:         chunks,
		nodes:          nodes,
		builder:        builder,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
	}
}

// ProcessMigration drives the migration of one top-level upload to a terminal
// outcome: COMPLETED on success, FAILED once the retry budget is exhausted or
// a permanent error (bad encoding, missing chunks) is hit. Safe to call
// concurrently and safe to call again for an already-completed upload.
func (c *Coordinator) ProcessMigration(ctx context.Context, rootID string) error {
	_, err, _ := c.inflight.Do(rootID, func() (any, error) {
		return nil, c.migrate(ctx, rootID)
	})
	return err
}

func (c *Coordinator) migrate(ctx context.Context, rootID string) error {
	var attempt uint64

	backoff := retry.WithMaxRetries(c.maxAttempts-1, retry.NewExponential(c.initialBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.MigrationRetries.Inc()
			log.Warnf("migrate: retrying upload %s (attempt %d)", rootID, attempt)
		}
		return c.migrateOnce(rootID)
	})
	if err != nil {
		log.Errorf("migrate: upload %s failed permanently: %v", rootID, err)
		metrics.MigrationsFailed.Inc()
		c.markFailed(rootID)
		return err
	}

	return nil
}

// migrateOnce performs one full migration attempt. Transient storage errors
// are marked retryable; everything else (unknown session, encoding errors,
// malformed snapshots) fails the upload outright.
func (c *Coordinator) migrateOnce(rootID string) error {
	root, err := c.sessions.Get(rootID)
	if err != nil {
		if errors.Is(err, upload.ErrNotFound) {
			return fmt.Errorf("unknown upload %s: %w", rootID, err)
		}
		return retry.RetryableError(err)
	}

	switch root.Status {
	case upload.StatusCompleted:
		// Already done, nothing to repeat.
		return nil
	case upload.StatusCancelled, upload.StatusFailed:
		log.Warnf("migrate: upload %s is %s, skipping", rootID, root.Status)
		return nil
	}

	children, err := c.sessions.EnumerateByRoot(rootID)
	if err != nil {
		return retry.RetryableError(err)
	}

	results := make(map[string]*dag.BuildResult)
	var built []*dag.BuiltNode

	var rootResult *dag.BuildResult
	if root.Kind == upload.KindFile {
		rootResult, err = c.buildFile(root)
		if err != nil {
			return err
		}
		built = rootResult.Nodes
	} else {
		if root.Snapshot == nil {
			return fmt.Errorf("folder upload %s has no snapshot", rootID)
		}

		byEntry := make(map[string]*upload.Session, len(children))
		for _, child := range children {
			byEntry[child.RelativeID] = child
		}

		rootResult, err = c.buildEntry(root.Snapshot, root.Snapshot.RootID, byEntry, results, &built)
		if err != nil {
			return err
		}
	}

	// Persist the whole subtree, leaves first. A row that already exists is
	// the same content, so the conflict is counted and skipped.
	for _, n := range built {
		node := &dag.Node{
			Cid:     n.Cid,
			Payload: n.Payload,
			RootCid: rootResult.Root,
			Type:    n.Type,
			Size:    n.Size,
		}
		if root.Kind == upload.KindFolder {
			head := rootResult.Root
			node.HeadCid = &head
		}

		created, err := c.nodes.PutIfAbsent(node)
		if err != nil {
			return retry.RetryableError(err)
		}
		if created {
			metrics.NodesWritten.Inc()
		} else {
			metrics.NodesDeduplicated.Inc()
		}
	}

	// Children reach COMPLETED before the root does: a crash between the two
	// leaves the root MIGRATING, and the sweep finishes the job.
	for _, child := range children {
		res := results[child.RelativeID]
		if res == nil || child.Status == upload.StatusCompleted {
			continue
		}
		child.RootCid = &res.Root
		child.Size = res.Size
		if err := child.Transition(upload.StatusCompleted); err != nil {
			return err
		}
		if err := c.sessions.Put(child); err != nil {
			return retry.RetryableError(err)
		}
	}

	root.RootCid = &rootResult.Root
	root.Size = rootResult.Size
	if err := root.Transition(upload.StatusCompleted); err != nil {
		return err
	}
	if err := c.sessions.Put(root); err != nil {
		return retry.RetryableError(err)
	}

	metrics.MigrationsCompleted.Inc()
	log.Infof("migrate: upload %s completed, root %s, %d nodes, %d bytes", rootID, rootResult.Root.String(), len(built), rootResult.Size)
	return nil
}

// buildEntry walks the snapshot bottom-up and builds every node of the
// subtree rooted at the given entry. File entries are re-derived from their
// session's stored chunks; folder entries link their children in snapshot
// order. Results are recorded per entry so sessions can be finalized after.
func (c *Coordinator) buildEntry(snap *upload.Snapshot, entryID string, byEntry map[string]*upload.Session, results map[string]*dag.BuildResult, built *[]*dag.BuiltNode) (*dag.BuildResult, error) {
	entry, ok := snap.Entries[entryID]
	if !ok {
		return nil, fmt.Errorf("snapshot entry %q missing", entryID)
	}

	if entry.Kind == upload.KindFile {
		child, ok := byEntry[entryID]
		if !ok {
			return nil, fmt.Errorf("no session for snapshot entry %q", entryID)
		}
		res, err := c.buildFile(child)
		if err != nil {
			return nil, err
		}
		results[entryID] = res
		*built = append(*built, res.Nodes...)
		return res, nil
	}

	links := make([]dag.Link, 0, len(entry.Children))
	for _, childID := range entry.Children {
		res, err := c.buildEntry(snap, childID, byEntry, results, built)
		if err != nil {
			return nil, err
		}
		links = append(links, res.RootLink())
	}

	res, err := c.builder.BuildFolder(entry.Name, links)
	if err != nil {
		return nil, err
	}
	results[entryID] = res
	*built = append(*built, res.Nodes...)
	return res, nil
}

func (c *Coordinator) buildFile(s *upload.Session) (*dag.BuildResult, error) {
	parts, err := c.chunks.ListOrdered(s.ID)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	return c.builder.BuildFile(s.Name, parts, s.DeclaredSize)
}

// markFailed moves the upload and its children to FAILED. Best effort: the
// sweep will find anything left MIGRATING after a storage hiccup here.
func (c *Coordinator) markFailed(rootID string) {
	root, err := c.sessions.Get(rootID)
	if err != nil {
		log.Errorf("migrate: cannot load %s to mark failed: %v", rootID, err)
		return
	}

	children, err := c.sessions.EnumerateByRoot(rootID)
	if err != nil {
		log.Errorf("migrate: cannot enumerate %s to mark failed: %v", rootID, err)
		children = nil
	}

	for _, s := range append(children, root) {
		if s.Status.Terminal() {
			continue
		}
		if err := s.Transition(upload.StatusFailed); err != nil {
			continue
		}
		if err := c.sessions.Put(s); err != nil {
			log.Errorf("migrate: cannot mark session %s failed: %v", s.ID, err)
		}
	}
}

// SweepStuck re-drives every top-level upload left MIGRATING, typically after
// a restart mid-migration.
func (c *Coordinator) SweepStuck(ctx context.Context) error {
	stuck, err := c.sessions.EnumerateByStatus(upload.StatusMigrating)
	if err != nil {
		return err
	}

	for _, s := range stuck {
		if !s.TopLevel() {
			continue
		}
		log.Infof("migrate: sweeping stuck upload %s", s.ID)
		if err := c.ProcessMigration(ctx, s.ID); err != nil {
			log.Errorf("migrate: sweep of %s failed: %v", s.ID, err)
		}
	}

	return nil
}

// Run periodically sweeps for stuck migrations until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context, interval *timer.Interval) error {
	return timer.RunWithTicker(ctx, interval, func(ctx context.Context) error {
		if err := c.SweepStuck(ctx); err != nil {
			log.Errorf("migrate: sweep failed: %v", err)
		}
		return nil
	})
}
