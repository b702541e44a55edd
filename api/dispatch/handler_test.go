package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/assign"
	"github.com/kilianp07/fleetdispatch/core/journal"
	"github.com/kilianp07/fleetdispatch/core/layout"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/reconcile"
	"github.com/kilianp07/fleetdispatch/core/sharedstate"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/core/workingset"
)

var now = time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC)

type memJournal struct{ recs []journal.Record }

func (m *memJournal) Append(_ context.Context, r journal.Record) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memJournal) Query(_ context.Context, q journal.Query) ([]journal.Record, error) {
	var res []journal.Record
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memJournal) Close() error { return nil }

type fixture struct {
	repo    *persistence.MemoryRepository
	store   *workingset.Store
	bus     *sharedstate.Bus
	journal *memJournal
	srv     *httptest.Server
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	repo := persistence.NewMemoryRepository()
	repo.Now = func() time.Time { return now }
	repo.PutBooking(model.Booking{ID: "B1", Date: "2024-05-01", Time: "09:00", Status: model.BookingPending, CreatedAt: now})
	repo.PutBooking(model.Booking{ID: "B2", Date: "2024-05-02", Time: "10:30", Status: model.BookingConfirmed, CreatedAt: now})
	repo.PutDriver(model.Driver{ID: "drv1", FirstName: "Ken", Available: true})
	repo.PutDriver(model.Driver{ID: "drv2", FirstName: "Aya", Available: false})
	repo.PutVehicle(model.Vehicle{ID: "veh1", Name: "Alphard", Available: true})

	jr := &memJournal{}
	rec := journal.NewRecorder(jr, nil)
	sink := metrics.NewMultiSink(metrics.NopSink{}, rec)

	store := workingset.NewStore()
	bus := sharedstate.New(nil, sharedstate.WithOrigin("test"))
	guard := workingset.NewGuard(store, bus, sink, nil)
	r := reconcile.New(repo, reconcile.Options{}, sink, nil)
	r.SetClock(func() time.Time { return now })
	coord := assign.New(repo, store, guard, assign.Options{}, sink, nil)
	coord.SetClock(func() time.Time { return now })
	_, err := r.Refresh(context.Background(), store)
	require.NoError(t, err)

	h := NewRouter(Deps{
		Store:     store,
		Mutator:   coord,
		Refresher: RefreshFunc(func(ctx context.Context) (reconcile.Result, error) { return r.Refresh(ctx, store) }),
		Bus:       bus,
		Layout:    layout.NewStore(layout.NewMemoryBackend(), nil),
		Journal:   jr,
		Resources: repo,
		Token:     token,
		KeepAlive: time.Hour,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Cleanup(bus.Close)
	return &fixture{repo: repo, store: store, bus: bus, journal: jr, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAuth(t *testing.T) {
	f := newFixture(t, "tok")
	resp, err := http.Get(f.srv.URL + "/api/dispatch/entries")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out entriesResponse
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/dispatch/entries", "", &out))
	assert.Equal(t, 2, out.Total)
}

func TestEntriesFilter(t *testing.T) {
	f := newFixture(t, "")
	var out entriesResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/dispatch/entries?date_from=2024-05-02", "", &out))
	require.Len(t, out.Entries, 1)
	assert.Equal(t, "B2", out.Entries[0].BookingID())
	assert.True(t, out.Entries[0].Key.Synthetic())

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/dispatch/entries?status=teleported", "", &e))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/dispatch/entries?date_to=May", "", &e))
}

func TestAssignThroughAPI(t *testing.T) {
	f := newFixture(t, "")
	ch, cancel := f.bus.Subscribe()
	defer cancel()

	var out entryResponse
	code := f.do(t, http.MethodPost, "/api/dispatch/assign", `{"booking_id":"B1","driver_id":"drv1","vehicle_id":"veh1"}`, &out)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, out.Entry.Key.Synthetic())
	assert.Equal(t, "drv1", out.Entry.DriverID)

	select {
	case n := <-ch:
		assert.Equal(t, sharedstate.TypeAssignmentUpdate, n.Type)
		assert.Equal(t, "B1", n.Detail.BookingID)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	var stats workingset.Stats
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/dispatch/stats", "", &stats))
	assert.Equal(t, 2, stats.Total)

	var recs []journal.Record
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/dispatch/journal?kind=mutation&booking_id=B1", "", &recs))
	require.NotEmpty(t, recs)
	assert.Equal(t, "assign", recs[0].Op)
}

func TestValidation(t *testing.T) {
	f := newFixture(t, "")
	var e errorBody
	code := f.do(t, http.MethodPost, "/api/dispatch/assign", `{"booking_id":"B1"}`, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, e.Fields, "driver_id")
	assert.Contains(t, e.Fields, "vehicle_id")

	e = errorBody{}
	code = f.do(t, http.MethodPost, "/api/dispatch/status", `{"status":"completed"}`, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, e.Fields, "dispatch_id")

	e = errorBody{}
	code = f.do(t, http.MethodPost, "/api/dispatch/status", `{"booking_id":"B1","status":"flying"}`, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, e.Fields["status"], "flying")

	code = f.do(t, http.MethodPost, "/api/dispatch/assign", `{"booking_id":`, &e)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, "")
	var e errorBody
	code := f.do(t, http.MethodPost, "/api/dispatch/unassign", `{"booking_id":"missing"}`, &e)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "precondition violation", e.Kind)

	f.repo.FailOn(persistence.OpInsertEntry, errors.New("db down"))
	e = errorBody{}
	code = f.do(t, http.MethodPost, "/api/dispatch/assign", `{"booking_id":"B1","driver_id":"drv1","vehicle_id":"veh1"}`, &e)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "assignment failure", e.Kind)

	got, ok := f.store.Get("B1")
	require.True(t, ok)
	assert.True(t, got.Key.Synthetic(), "working set rolled back")
}

func TestStatusChange(t *testing.T) {
	f := newFixture(t, "")
	var out entryResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/dispatch/assign", `{"booking_id":"B1","driver_id":"drv1","vehicle_id":"veh1"}`, &out))
	id := out.Entry.Key.String()

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/dispatch/status", `{"dispatch_id":"`+id+`","status":"en_route"}`, &out))
	assert.Equal(t, status.EnRoute, out.Entry.Status)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/dispatch/status", `{"dispatch_id":"`+id+`","status":"completed"}`, &out))
	var e errorBody
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/dispatch/status", `{"dispatch_id":"`+id+`","status":"arrived"}`, &e))
}

func TestColumns(t *testing.T) {
	f := newFixture(t, "")
	var l layoutResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/dispatch/columns", "", &l))
	assert.Equal(t, status.All(), l.Order)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/dispatch/columns/hide", `{"status":"cancelled"}`, &l))
	assert.NotContains(t, l.Visible, status.Cancelled)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/dispatch/columns/move", `{"status":"completed","index":0}`, &l))
	assert.Equal(t, status.Completed, l.Order[0])

	var e errorBody
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodPost, "/api/dispatch/columns/move", `{"status":"completed"}`, &e))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/dispatch/columns", `{"hidden":["completed","assigned"]}`, &l))
	assert.ElementsMatch(t, []status.Status{status.Completed, status.Assigned}, l.Hidden)
	assert.Equal(t, status.Completed, l.Order[0], "order untouched")

	var b boardResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/dispatch/board", "", &b))
	assert.Len(t, b.Columns, len(status.All())-2)
	assert.Equal(t, status.Pending, b.Columns[0].Status)
	assert.Len(t, b.Columns[0].Entries, 2)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/dispatch/columns", "", &l))
	assert.Empty(t, l.Hidden)
}

func TestResources(t *testing.T) {
	f := newFixture(t, "")
	var drivers []model.Driver
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/dispatch/drivers?available=true", "", &drivers))
	require.Len(t, drivers, 1)
	assert.Equal(t, "drv1", drivers[0].ID)

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/dispatch/vehicles?available=maybe", "", &e))
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, "")
	f.repo.PutBooking(model.Booking{ID: "B3", Date: "2024-05-03", Time: "08:00", Status: model.BookingPending, CreatedAt: now})
	var out refreshResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/dispatch/refresh", "", &out))
	assert.True(t, out.Applied)
	assert.Equal(t, 3, out.Visible)
	assert.Equal(t, 3, f.store.Len())
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/dispatch/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.bus.Subscribers() > 0 }, time.Second, 10*time.Millisecond)
	f.bus.Publish(sharedstate.TypeStatusUpdate, sharedstate.Detail{BookingID: "B2"})

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	assert.Equal(t, sharedstate.EventName, event)
	var n sharedstate.Notification
	require.NoError(t, json.Unmarshal([]byte(data), &n))
	assert.Equal(t, sharedstate.TypeStatusUpdate, n.Type)
	assert.Equal(t, "test", n.Detail.Origin)
}
