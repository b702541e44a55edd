// Package export renders a dispatch working set for operators and other
// tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// Header is the column set of WriteCSV and WriteTable.
var Header = []string{"dispatch_id", "booking_id", "status", "date", "time", "customer", "driver", "vehicle", "start_time", "updated_at"}

func row(e model.DispatchEntry) []string {
	driver, vehicle := e.DriverID, e.VehicleID
	if e.Driver != nil {
		driver = e.Driver.Name()
	}
	if e.Vehicle != nil {
		vehicle = e.Vehicle.Label()
	}
	start := ""
	if e.StartTime != nil {
		start = e.StartTime.UTC().Format(time.RFC3339)
	}
	updated := ""
	if t := e.LastTouched(); !t.IsZero() {
		updated = t.UTC().Format(time.RFC3339)
	}
	return []string{
		e.Key.String(),
		e.BookingID(),
		e.Status.String(),
		e.Booking.Date,
		e.Booking.Time,
		e.Booking.CustomerName,
		driver,
		vehicle,
		start,
		updated,
	}
}

// WriteJSON writes the entries to w as one indented JSON array.
func WriteJSON(w io.Writer, entries []model.DispatchEntry) error {
	if entries == nil {
		entries = []model.DispatchEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// WriteCSV writes the entries to w in CSV format with a header line.
func WriteCSV(w io.Writer, entries []model.DispatchEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(row(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes an aligned plain text table.
func WriteTable(w io.Writer, entries []model.DispatchEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	write := func(cols []string) {
		for i, c := range cols {
			if c == "" {
				c = "-"
			}
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, c)
		}
		fmt.Fprintln(tw)
	}
	write(Header)
	for _, e := range entries {
		write(row(e))
	}
	return tw.Flush()
}

// Write dispatches on format: "json", "csv" or "table".
func Write(w io.Writer, format string, entries []model.DispatchEntry) error {
	switch format {
	case "json":
		return WriteJSON(w, entries)
	case "csv":
		return WriteCSV(w, entries)
	case "", "table":
		return WriteTable(w, entries)
	}
	return fmt.Errorf("unknown format %q", format)
}
