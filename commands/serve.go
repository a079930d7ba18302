package commands

import (
	"context"
	"net"
	"net/http"
	"time"

	"chaindrive/archival"
	"chaindrive/config"
	"chaindrive/datamodel/dag"
	"chaindrive/datastore/leveldb"
	"chaindrive/helper/timer"
	"chaindrive/ingest"
	"chaindrive/ingest/server"
	"chaindrive/migrate"
	"chaindrive/status"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// RunServe starts the upload daemon: the RPC surface, the migration sweep,
// the archival feed listener and the metrics endpoint, all tied to one
// context.
func RunServe(ctx context.Context, cfg *config.Config) {
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

	results, err := leveldb.NewTxResults(cfg.DataStore.TxResultPath)
	if err != nil {
		log.Fatalf("Failed to open transaction result store: %v", err)
	}
	defer results.Close()

	builder := dag.NewBuilder(cfg.Ingest.ChunkCapacity)
	coord := migrate.NewCoordinator(sessions, chunks, nodes, builder,
		cfg.Migration.MaxAttempts, time.Duration(cfg.Migration.InitialBackoffMs)*time.Millisecond)
	ingestSvc := ingest.NewService(sessions, chunks, coord)
	statusSvc := status.NewService(sessions, nodes, results)
	tracker := archival.NewTracker(results)

	listener, err := net.Listen("tcp", cfg.Listen.UploadAddress)
	if err != nil {
		log.Fatalf("Failed to create upload listener: %v", err)
	}

	srv, err := server.NewServer(listener, ingestSvc, statusSvc)
	if err != nil {
		log.Fatalf("Failed to create upload server: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(ctx)
	})

	g.Go(func() error {
		return coord.Run(ctx, &timer.Interval{
			Duration: time.Duration(cfg.Migration.SweepIntervalSec) * time.Second,
			Jitter:   time.Duration(cfg.Migration.SweepJitterSec) * time.Second,
		})
	})

	if cfg.Archival.FeedEndpoint != "" {
		feed := archival.NewWebsocketFeed(cfg.Archival.FeedEndpoint)
		defer feed.Close()
		feedListener := archival.NewListener(feed, tracker, nodes, archival.NullArchiver{}, cfg.Archival.RecoveryMargin)
		g.Go(func() error {
			return feedListener.Run(ctx)
		})
	} else {
		log.Warn("No archival feed endpoint configured, listener disabled")
	}

	if cfg.Listen.MetricsAddress != "" {
		msrv := &http.Server{Addr: cfg.Listen.MetricsAddress, Handler: promhttp.Handler()}
		g.Go(func() error {
			log.Infof("Metrics listening on %s", cfg.Listen.MetricsAddress)
			return msrv.ListenAndServe()
		})
		g.Go(func() error {
			<-ctx.Done()
			return msrv.Close()
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("Server terminated: %v", err)
	}
}
