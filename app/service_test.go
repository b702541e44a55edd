package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/config"
	"github.com/kilianp07/fleetdispatch/core/factory"
	"github.com/kilianp07/fleetdispatch/core/journal"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/sharedstate"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Node: "node-a"}
	cfg.Layout.Backend = "memory"
	cfg.Journal.Backend = "jsonl"
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.log")
	cfg.Reconcile.IntervalSeconds = 3600
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func newService(t *testing.T, cfg *config.Config) (*Service, *persistence.MemoryRepository) {
	t.Helper()
	svc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	repo, ok := svc.Repo.(*persistence.MemoryRepository)
	if !ok {
		t.Fatalf("expected memory repository, got %T", svc.Repo)
	}
	return svc, repo
}

func TestServiceAssignRoundTrip(t *testing.T) {
	svc, repo := newService(t, testConfig(t))
	ctx := context.Background()
	repo.PutBooking(model.Booking{ID: "B1", Date: "2024-05-01", Time: "09:00", Status: model.BookingPending, CreatedAt: time.Now()})
	repo.PutDriver(model.Driver{ID: "drv1", Available: true})
	repo.PutVehicle(model.Vehicle{ID: "veh1", Available: true})

	res, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, res.Synthesized)

	e, err := svc.Coordinator.Assign(ctx, "B1", "drv1", "veh1")
	require.NoError(t, err)
	assert.False(t, e.Key.Synthetic())

	recs, err := svc.Journal.Query(ctx, journal.Query{Kind: journal.KindMutation})
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "B1", recs[len(recs)-1].BookingID)
}

func TestServiceRefreshesOnNotification(t *testing.T) {
	svc, repo := newService(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.Bus.Subscribers() > 0 }, 2*time.Second, 10*time.Millisecond)
	repo.PutBooking(model.Booking{ID: "B9", Date: "2024-05-01", Time: "09:00", Status: model.BookingConfirmed, CreatedAt: time.Now()})

	// a notification relayed from another process
	svc.Bus.Inject(sharedstate.Notification{Type: sharedstate.TypeAssignmentUpdate, Detail: sharedstate.Detail{Origin: "node-b", BookingID: "B9"}})
	require.Eventually(t, func() bool {
		_, ok := svc.Store.Get("B9")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceHandler(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Token = "secret"
	svc, repo := newService(t, cfg)
	repo.PutBooking(model.Booking{ID: "B1", Date: "2024-05-01", Time: "09:00", Status: model.BookingPending, CreatedAt: time.Now()})

	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/dispatch/refresh", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Visible int `json:"visible"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Visible)
}

func TestNewRejectsUnknownRelay(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bus.Relays = []factory.ModuleConfig{{Type: "carrier-pigeon"}}
	_, err := New(cfg)
	assert.ErrorContains(t, err, "carrier-pigeon")
}
