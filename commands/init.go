package commands

import (
	"context"
	"os"
	"path/filepath"

	"chaindrive/config"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// RunInit writes a default config file and creates the datastore directories.
func RunInit(ctx context.Context, cfg *config.Config) {
	log.Info("RunInit()")

	for _, p := range []string{
		cfg.DataStore.SessionPath,
		cfg.DataStore.ChunkPath,
		cfg.DataStore.NodePath,
		cfg.DataStore.TxResultPath,
	} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			log.Fatalf("Failed to create datastore directory for %s: %v", p, err)
		}
	}

	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}
}
