package commands

import (
	"context"

	"chaindrive/config"
	"chaindrive/datamodel/upload"
	"chaindrive/datastore/leveldb"
)

// RunInfo prints a snapshot of the local stores: session counts per status,
// node totals and archival progress.
func RunInfo(ctx context.Context, cfg *config.Config) {
	sessions, err := leveldb.NewSessionStore(cfg.DataStore.SessionPath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer sessions.Close()

	nodes, err := leveldb.NewNodeStore(cfg.DataStore.NodePath)
	if err != nil {
		log.Fatalf("Failed to open node store: %v", err)
	}
	defer nodes.Close()

	results, err := leveldb.NewTxResults(cfg.DataStore.TxResultPath)
	if err != nil {
		log.Fatalf("Failed to open transaction result store: %v", err)
	}
	defer results.Close()

	for _, s := range []upload.Status{
		upload.StatusPending,
		upload.StatusMigrating,
		upload.StatusCompleted,
		upload.StatusCancelled,
		upload.StatusFailed,
	} {
		list, err := sessions.EnumerateByStatus(s)
		if err != nil {
			log.Fatalf("Failed to enumerate sessions: %v", err)
		}
		log.Infof("Sessions %s: %d", s, len(list))
	}

	cids, err := nodes.Enumerate()
	if err != nil {
		log.Fatalf("Failed to enumerate nodes: %v", err)
	}

	archived := 0
	for _, c := range cids {
		node, err := nodes.Get(c)
		if err != nil {
			log.Errorf("Failed to read node %s: %v", c.String(), err)
			continue
		}
		if node.Archived() {
			archived++
		}
	}
	log.Infof("Nodes: %d total, %d archived", len(cids), archived)

	published, err := results.Enumerate()
	if err != nil {
		log.Fatalf("Failed to enumerate transaction results: %v", err)
	}
	log.Infof("Transaction results: %d", len(published))
}
