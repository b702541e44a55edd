package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/pkg/export"
)

func (c *cli) printEntry(cmd *cobra.Command, e model.DispatchEntry) error {
	return export.WriteTable(cmd.OutOrStdout(), []model.DispatchEntry{e})
}

// refs turns the positional reference into the dispatch/booking pair the
// coordinator expects.
func refs(ref string, byBooking bool) (dispatchRef, bookingID string) {
	if byBooking {
		return "", ref
	}
	return ref, ""
}

func (c *cli) assignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign BOOKING DRIVER VEHICLE",
		Short: "Assign a driver and a vehicle to a booking",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			e, err := svc.Coordinator.Assign(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return c.printEntry(cmd, e)
		},
	}
}

func (c *cli) unassignCmd() *cobra.Command {
	var byBooking bool
	cmd := &cobra.Command{
		Use:   "unassign REF",
		Short: "Release the driver and vehicle of a dispatch entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			dispatchRef, bookingID := refs(args[0], byBooking)
			e, err := svc.Coordinator.Unassign(cmd.Context(), dispatchRef, bookingID)
			if err != nil {
				return err
			}
			return c.printEntry(cmd, e)
		},
	}
	cmd.Flags().BoolVarP(&byBooking, "booking", "b", false, "REF is a booking id")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var byBooking bool
	cmd := &cobra.Command{
		Use:   "status REF STATUS",
		Short: "Move a dispatch entry to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := status.Parse(args[1])
			if err != nil {
				return err
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			dispatchRef, bookingID := refs(args[0], byBooking)
			e, err := svc.Coordinator.SetStatus(cmd.Context(), dispatchRef, bookingID, to)
			if err != nil {
				return err
			}
			return c.printEntry(cmd, e)
		},
	}
	cmd.Flags().BoolVarP(&byBooking, "booking", "b", false, "REF is a booking id")
	return cmd
}
