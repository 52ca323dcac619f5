// cmd/sbvc/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sbvc/internal/config"
	"sbvc/internal/history"
	"sbvc/internal/logging"
	"sbvc/internal/scheduler"
	"sbvc/internal/store"
	"sbvc/internal/workspace"

	"github.com/spf13/cobra"
)

var (
	storeFlag   string
	configFlag  string
	backendFlag string
)

var rootCmd = &cobra.Command{
	Use:   "sbvc",
	Short: "sbvc keeps a branching version history of a single file",
	Long: `sbvc records snapshots of one tracked file as a tree of versions.
Each version stores only the line difference from the version it was
committed on top of, so you can jump between alternatives freely.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&storeFlag, "store", "s", "", "store path (default: the single *.sbvc in the current directory)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "sbvc.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "store backend (file, badger)")
}

// session bundles what every command needs: the loaded config, a logger
// and the engine behind a scheduler.
type session struct {
	cfg    *config.Config
	logger *logging.Logger
	sched  *scheduler.Scheduler
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, err
	}
	if backendFlag != "" {
		cfg.Store.Backend = backendFlag
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	logger, err := logging.NewDevelopment(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, logger, nil
}

func engineOptions(cfg *config.Config, logger *logging.Logger) history.Options {
	return history.Options{
		Store:        store.Options{Backend: cfg.Store.Backend},
		CacheSize:    cfg.Store.CacheSize,
		ContextLines: cfg.Store.ContextLines,
		Logger:       logger.Logger,
	}
}

func resolveStore() (string, error) {
	if storeFlag != "" {
		return storeFlag, nil
	}
	return workspace.FindStore(".")
}

func openSession() (*session, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	path, err := resolveStore()
	if err != nil {
		return nil, err
	}

	engine, err := history.Open(path, engineOptions(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		sched:  scheduler.New(engine, logger.Logger),
	}, nil
}

func (s *session) engine() *history.Engine {
	return s.sched.Engine()
}

// run waits for a submitted operation and returns the snapshot it produced.
func (s *session) run(h *scheduler.Handle) (history.Snapshot, error) {
	res, err := h.Wait(context.Background())
	if err != nil {
		return history.Snapshot{}, err
	}
	if res.Err != nil {
		return history.Snapshot{}, res.Err
	}
	snap, _ := res.Snapshot()
	return snap, nil
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.sched.Close(ctx)
	s.logger.Sync()
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		stop()
		os.Exit(1)
	}
}
