package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetdispatch/app/plugins"
	"github.com/kilianp07/fleetdispatch/core/layout"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/infra/logger"
)

// withLayout opens only the layout backend; column commands never touch
// the dispatch store.
func (c *cli) withLayout(cmd *cobra.Command, fn func(ctx context.Context, s *layout.Store) (layout.Layout, error)) error {
	backend, closer, err := plugins.OpenLayout(c.cfg.Layout)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}
	l, err := fn(cmd.Context(), layout.NewStore(backend, logger.New("layout")))
	if err != nil {
		return err
	}
	printLayout(cmd, l)
	return nil
}

func printLayout(cmd *cobra.Command, l layout.Layout) {
	out := cmd.OutOrStdout()
	for i, st := range l.Order {
		mark := "shown"
		for _, h := range l.Hidden {
			if h == st {
				mark = "hidden"
			}
		}
		fmt.Fprintf(out, "%d\t%s\t%s\n", i, st, mark)
	}
}

func parseStatus(v string) (status.Status, error) {
	return status.Parse(strings.TrimSpace(v))
}

func (c *cli) columnsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Inspect and change the board column layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLayout(cmd, func(ctx context.Context, s *layout.Store) (layout.Layout, error) {
				return s.Load(ctx), nil
			})
		},
	}
	single := func(use, short string, op func(*layout.Store, context.Context, status.Status) (layout.Layout, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " STATUS",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := parseStatus(args[0])
				if err != nil {
					return err
				}
				return c.withLayout(cmd, func(ctx context.Context, s *layout.Store) (layout.Layout, error) {
					return op(s, ctx, st)
				})
			},
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the column order and visibility",
			Args:  cobra.NoArgs,
			RunE:  cmd.RunE,
		},
		single("hide", "Hide a column", (*layout.Store).Hide),
		single("show-column", "Show a hidden column", (*layout.Store).Show),
		&cobra.Command{
			Use:   "move STATUS INDEX",
			Short: "Move a column to a position",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := parseStatus(args[0])
				if err != nil {
					return err
				}
				idx, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("index: %w", err)
				}
				return c.withLayout(cmd, func(ctx context.Context, s *layout.Store) (layout.Layout, error) {
					return s.Move(ctx, st, idx)
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the default layout",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withLayout(cmd, func(ctx context.Context, s *layout.Store) (layout.Layout, error) {
					return s.Reset(ctx)
				})
			},
		},
	)
	return cmd
}
