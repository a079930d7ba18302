package commands

import (
	"context"
	"time"

	"chaindrive/config"
	"chaindrive/datamodel/dag"
	"chaindrive/datastore/leveldb"
	"chaindrive/migrate"
)

// RunMigrate re-drives migration by hand: one upload when an id is given,
// otherwise every session stuck in MIGRATING. Safe to run against a live
// store, migration is idempotent.
func RunMigrate(ctx context.Context, cfg *config.Config, uploadID string) {
	sessions, err := leveldb.NewSessionStore(cfg.DataStore.SessionPath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer sessions.Close()

	chunks, err := leveldb.NewChunkStore(cfg.DataStore.ChunkPath)
	if err != nil {
		log.Fatalf("Failed to open chunk store: %v", err)
	}
	defer chunks.Close()

	nodes, err := leveldb.NewNodeStore(cfg.DataStore.NodePath)
	if err != nil {
		log.Fatalf("Failed to open node store: %v", err)
	}
	defer nodes.Close()

	coord := migrate.NewCoordinator(sessions, chunks, nodes,
		dag.NewBuilder(cfg.Ingest.ChunkCapacity),
		cfg.Migration.MaxAttempts, time.Duration(cfg.Migration.InitialBackoffMs)*time.Millisecond)

	if uploadID != "" {
		if err := coord.ProcessMigration(ctx, uploadID); err != nil {
			log.Fatalf("Migration of %s failed: %v", uploadID, err)
		}
		log.Infof("Migration of %s done", uploadID)
		return
	}

	if err := coord.SweepStuck(ctx); err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}
}
