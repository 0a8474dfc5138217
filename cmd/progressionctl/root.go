package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alem-hub/alem-progression/config"
	"github.com/alem-hub/alem-progression/internal/application/engine"
	"github.com/alem-hub/alem-progression/internal/bootstrap"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
)

// cli holds state shared by subcommands. Heavy resources are opened lazily
// so that "catalog validate" works without a database.
type cli struct {
	envFile string
	driver  string
	dbPath  string

	cfg     *config.Config
	log     *slog.Logger
	cat     *catalog.Catalog
	backend *bootstrap.Backend
	engine  *engine.Engine
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "progressionctl",
		Short:         "Administer the progression store",
		Long:          "progressionctl runs migrations, syncs the catalog, awards XP by hand and audits the ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "Load environment from this .env file first")
	root.PersistentFlags().StringVar(&c.driver, "driver", "", "Storage driver (overrides STORAGE_DRIVER)")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite database path (overrides STORAGE_SQLITE_PATH)")

	root.AddCommand(
		newMigrateCmd(c),
		newSeedCmd(c),
		newCatalogCmd(c),
		newAwardCmd(c),
		newProgressCmd(c),
		newBadgeCmd(c),
		newMemberCmd(c),
		newStatsCmd(c),
		newLeaderboardCmd(c),
		newHistoryCmd(c),
		newAuditCmd(c),
	)
	return root
}

func (c *cli) loadConfig(stderr io.Writer) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.driver != "" {
		cfg.Storage.Driver = c.driver
	}
	if c.dbPath != "" {
		cfg.Storage.SQLitePath = c.dbPath
	}
	c.cfg = cfg
	c.log = bootstrap.NewLogger(cfg, stderr)
	return nil
}

func (c *cli) catalog() (*catalog.Catalog, error) {
	if c.cat == nil {
		cat, err := config.LoadCatalog(c.cfg.Engine.CatalogPath)
		if err != nil {
			return nil, err
		}
		c.cat = cat
	}
	return c.cat, nil
}

func (c *cli) openBackend(ctx context.Context) (*bootstrap.Backend, error) {
	if c.backend == nil {
		b, err := bootstrap.OpenBackend(ctx, c.cfg.Storage)
		if err != nil {
			return nil, err
		}
		c.backend = b
	}
	return c.backend, nil
}

// openEngine prepares the store and builds an engine without the event bus:
// commands here apply synchronously and exit.
func (c *cli) openEngine(ctx context.Context) (*engine.Engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	cat, err := c.catalog()
	if err != nil {
		return nil, err
	}
	b, err := c.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	if err := b.Prepare(ctx, c.cfg.Storage, cat, c.log); err != nil {
		return nil, err
	}
	opts, err := bootstrap.EngineOptions(c.cfg, cat, b, nil, nil, c.log)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(opts)
	if err != nil {
		return nil, err
	}
	c.engine = eng
	return eng, nil
}

func (c *cli) close() error {
	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	c.engine = nil
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
