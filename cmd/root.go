package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetdispatch/app"
	"github.com/kilianp07/fleetdispatch/config"
	"github.com/kilianp07/fleetdispatch/infra/logger"
)

// cli carries the state shared by the commands of one invocation.
type cli struct {
	cfgPath  string
	cfg      *config.Config
	closeLog func() error
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "fleetdispatch",
		Short:         "Fleet dispatch board service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			closeLog, err := logger.Configure(logger.Options{
				Level:      cfg.Log.Level,
				Format:     cfg.Log.Format,
				File:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
			})
			if err != nil {
				return fmt.Errorf("configure logger: %w", err)
			}
			c.cfg, c.closeLog = cfg, closeLog
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.closeLog != nil {
				return c.closeLog()
			}
			return nil
		},
		RunE: c.run,
	}
	root.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", "", "configuration file (yaml or json)")

	root.AddCommand(
		&cobra.Command{Use: "run", Short: "Run the dispatch board service", Args: cobra.NoArgs, RunE: c.run},
		c.boardCmd(),
		c.statsCmd(),
		c.assignCmd(),
		c.unassignCmd(),
		c.statusCmd(),
		c.columnsCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute() error { return NewRootCmd().Execute() }

func (c *cli) run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(c.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

// open builds a service for a one-shot command and loads the working set.
// Relays are not started, so other processes see the change on their next
// periodic pass.
func (c *cli) open(ctx context.Context) (*app.Service, error) {
	cfg := *c.cfg
	cfg.Bus.Relays = nil
	svc, err := app.New(&cfg)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Refresh(ctx); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}
