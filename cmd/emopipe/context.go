package main

import (
	"fmt"

	"github.com/joho/godotenv"

	"github.com/scholfa/MLOpsEmotion/internal/config"
	"github.com/scholfa/MLOpsEmotion/internal/ledger"
	"github.com/scholfa/MLOpsEmotion/internal/stages"
)

// commandContext lazily loads the config and opens the ledger so that
// commands like "emopipe --help" never touch the filesystem.
type commandContext struct {
	configFlag *string

	cfg    *config.Config
	store  *ledger.Store
	runner *stages.Runner
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	_ = godotenv.Load()

	path := "config.toml"
	if c.configFlag != nil && *c.configFlag != "" {
		path = *c.configFlag
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare data directories: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureLedger() (*ledger.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open submission ledger: %w", err)
	}
	c.store = store
	return store, nil
}

func (c *commandContext) ensureRunner() (*stages.Runner, error) {
	if c.runner != nil {
		return c.runner, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.ensureLedger()
	if err != nil {
		return nil, err
	}
	runner, err := stages.NewRunner(cfg, store)
	if err != nil {
		return nil, err
	}
	c.runner = runner
	return runner, nil
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}
