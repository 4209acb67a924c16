// Package cli implements the eventsim command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/config"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/logging"
	"github.com/danielpatrickdp/eventsim/internal/service"
	"github.com/danielpatrickdp/eventsim/internal/store"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	dbPath     string
}

// exitError carries a process exit code. A nil err exits silently.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

// NewRootCmd builds the eventsim command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "eventsim",
		Short:         "Temporal state computation for simulated entities",
		Long:          "eventsim computes an entity's psychological state at any instant from an anchor snapshot and its timeline of life events.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (overrides config)")

	root.AddCommand(newServeCmd(g))
	root.AddCommand(newQueryCmd(g))
	root.AddCommand(newImportCmd(g))
	root.AddCommand(newReplayCmd(g))
	root.AddCommand(newInspectCmd(g))
	root.AddCommand(newCatalogCmd())
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	return run(NewRootCmd(), os.Args[1:], os.Stderr)
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

// #region runtime
// runtime is the wired application: config, logger, store and a hydrated service.
type runtime struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.Store
	eng   *engine.Engine
	svc   *service.Service
}

func loadConfig(g *globals, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.dbPath != "" {
		cfg.Database.Path = g.dbPath
	}
	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openRuntime opens the store and hydrates a registry from it.
func openRuntime(g *globals, stderr io.Writer) (*runtime, error) {
	cfg, logger, err := loadConfig(g, stderr)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}
	st, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tbl := catalog.Default()
	eng := engine.New(tbl, opts)
	reg := engine.NewRegistry(eng, logger)
	n, err := st.Load(reg, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("hydrate: %w", err)
	}
	logger.Debug("registry hydrated", "entities", n, "db", cfg.Database.Path)

	return &runtime{
		cfg:   cfg,
		log:   logger,
		store: st,
		eng:   eng,
		svc:   service.New(reg, tbl, st, logger),
	}, nil
}

func (rt *runtime) Close() error {
	return rt.store.Close()
}

// #endregion runtime
