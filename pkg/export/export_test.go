package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
)

func sample() []model.DispatchEntry {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return []model.DispatchEntry{
		{
			Key:       model.PersistedKey("e1", "B1"),
			Status:    status.EnRoute,
			DriverID:  "drv1",
			VehicleID: "veh1",
			StartTime: &start,
			CreatedAt: start,
			Booking:   model.Booking{ID: "B1", Date: "2024-05-01", Time: "09:00", CustomerName: "Sato, Yuki"},
			Driver:    &model.Driver{ID: "drv1", FirstName: "Ken", LastName: "Ito"},
		},
		{
			Key:     model.SyntheticKey("B2"),
			Status:  status.Pending,
			Booking: model.Booking{ID: "B2", Date: "2024-05-02", Time: "10:30"},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, Header, recs[0])
	assert.Equal(t, "e1", recs[1][0])
	assert.Equal(t, "en_route", recs[1][2])
	assert.Equal(t, "Sato, Yuki", recs[1][5])
	assert.Equal(t, "2024-05-01T09:00:00Z", recs[1][8])
	assert.Equal(t, "pending-B2", recs[2][0])
	assert.Equal(t, "", recs[2][6])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))
	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, true, out[1]["synthetic"])

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "table", sample()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "dispatch_id"))
	assert.Contains(t, lines[2], "pending-B2")

	assert.Error(t, Write(&buf, "xml", nil))
}
