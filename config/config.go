package config

import (
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Config is the on-disk configuration of the upload pipeline daemon.
type Config struct {
	// Default config file location
	configFile string

	Listen struct {
		UploadAddress  string `json:"upload"`
		MetricsAddress string `json:"metrics"`
	} `json:"listen"`

	DataStore struct {
		SessionPath  string `json:"sessions"`
		ChunkPath    string `json:"chunks"`
		NodePath     string `json:"nodes"`
		TxResultPath string `json:"txresults"`
	} `json:"datastore"`

	Ingest struct {
		// ChunkCapacity is the node payload capacity of the DAG
		// builder. Changing it changes every newly computed CID, so it
		// must stay fixed across a deployment's lifetime.
		ChunkCapacity int `json:"chunkCapacity"`
	} `json:"ingest"`

	Migration struct {
		MaxAttempts      uint64 `json:"maxAttempts"`
		InitialBackoffMs int    `json:"initialBackoffMs"`
		SweepIntervalSec int    `json:"sweepIntervalSec"`
		SweepJitterSec   int    `json:"sweepJitterSec"`
	} `json:"migration"`

	Archival struct {
		// FeedEndpoint is the websocket URL of the upstream notifier.
		// Empty disables the listener.
		FeedEndpoint   string `json:"feedEndpoint"`
		RecoveryMargin uint64 `json:"recoveryMargin"`
	} `json:"archival"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Listen.UploadAddress = ":5001"
	cfg.Listen.MetricsAddress = ":9091"

	cfg.DataStore.SessionPath = "/tmp/chaindrive/sessions"
	cfg.DataStore.ChunkPath = "/tmp/chaindrive/chunks"
	cfg.DataStore.NodePath = "/tmp/chaindrive/nodes"
	cfg.DataStore.TxResultPath = "/tmp/chaindrive/txresults"

	cfg.Ingest.ChunkCapacity = 256 * 1024

	cfg.Migration.MaxAttempts = 5
	cfg.Migration.InitialBackoffMs = 500
	cfg.Migration.SweepIntervalSec = 60
	cfg.Migration.SweepJitterSec = 5

	cfg.Archival.FeedEndpoint = ""
	cfg.Archival.RecoveryMargin = 100

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	// We'll marshall our structure to JSON and write it into a file
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	return nil
}
