package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/logging"
	"reelsmith/internal/store"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reelsmith daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			runID := time.Now().UTC().Format("20060102T150405Z")
			logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reelsmith-%s.log", runID))
			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stdout", logPath},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			d, err := daemon.New(cfg, st, logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reelsmith daemon listening on %s\n", d.Addr())

			<-signalCtx.Done()
			logger.Info("daemon shutting down")
			return nil
		},
	}
}
