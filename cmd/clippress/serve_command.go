package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clippress/internal/daemon"
	"clippress/internal/deps"
	"clippress/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			for _, name := range deps.MissingRequired(deps.Check(deps.ForConfig(cfg))) {
				logger.Warn("required binary unavailable", logging.String("dependency", name))
			}

			a, err := buildAppWithLogger(cfg, logger)
			if err != nil {
				return err
			}
			defer a.shutdown(false)

			d, err := daemon.New(cfg, a.store, a.dispatcher, a.publish, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}

			logger.Info("serving",
				logging.String("store", a.store.Path()),
				logging.String("dispatcher", a.cfg.Dispatcher.Mode),
			)

			<-signalCtx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}
