package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/core/workingset"
	"github.com/kilianp07/fleetdispatch/pkg/export"
)

type filterFlags struct {
	statuses []string
	filter   workingset.Filter
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.statuses, "status", nil, "only these statuses")
	cmd.Flags().StringVar(&f.filter.DriverID, "driver", "", "only entries of this driver")
	cmd.Flags().StringVar(&f.filter.VehicleID, "vehicle", "", "only entries of this vehicle")
	cmd.Flags().StringVar(&f.filter.DateFrom, "from", "", "first booking date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.filter.DateTo, "to", "", "last booking date (YYYY-MM-DD)")
}

func (f *filterFlags) build() (workingset.Filter, error) {
	out := f.filter
	out.Statuses = nil
	for _, v := range f.statuses {
		st, err := status.Parse(v)
		if err != nil {
			return out, err
		}
		out.Statuses = append(out.Statuses, st)
	}
	return out, nil
}

func (c *cli) boardCmd() *cobra.Command {
	var (
		ff      filterFlags
		format  string
		visible bool
	)
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the dispatch working set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.build()
			if err != nil {
				return err
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			entries := f.Apply(svc.Store.Snapshot())
			if visible {
				cols := svc.Layout.Load(cmd.Context()).Visible()
				entries = slices.DeleteFunc(entries, func(e model.DispatchEntry) bool {
					return !slices.Contains(cols, e.Status)
				})
			}
			return export.Write(cmd.OutOrStdout(), format, entries)
		},
	}
	ff.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "o", "table", "output format: table, json or csv")
	cmd.Flags().BoolVar(&visible, "visible", false, "drop entries in hidden columns")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the board header counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.build()
			if err != nil {
				return err
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			st := workingset.ComputeStats(f.Apply(svc.Store.Snapshot()), time.Now(), c.cfg.Reconcile.Location())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return fmt.Errorf("encode stats: %w", err)
			}
			return nil
		},
	}
	ff.bind(cmd)
	return cmd
}
