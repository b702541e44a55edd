package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	dispatchapi "github.com/kilianp07/fleetdispatch/api/dispatch"
	"github.com/kilianp07/fleetdispatch/app/plugins"
	"github.com/kilianp07/fleetdispatch/config"
	"github.com/kilianp07/fleetdispatch/core/assign"
	"github.com/kilianp07/fleetdispatch/core/journal"
	"github.com/kilianp07/fleetdispatch/core/layout"
	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	coremon "github.com/kilianp07/fleetdispatch/core/monitoring"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/reconcile"
	"github.com/kilianp07/fleetdispatch/core/sharedstate"
	"github.com/kilianp07/fleetdispatch/core/workingset"
	_ "github.com/kilianp07/fleetdispatch/infra/kafka"
	"github.com/kilianp07/fleetdispatch/infra/logger"
	"github.com/kilianp07/fleetdispatch/infra/metrics"
	"github.com/kilianp07/fleetdispatch/infra/monitoring"
	_ "github.com/kilianp07/fleetdispatch/infra/mqtt"
)

// Service owns the dispatch board of one process: the working set, the
// collaborators that mutate it and the surfaces exposing it.
type Service struct {
	Repo        persistence.Repository
	Store       *workingset.Store
	Bus         *sharedstate.Bus
	Reconciler  *reconcile.Reconciler
	Coordinator *assign.Coordinator
	Layout      *layout.Store
	Journal     journal.Store

	cfg     *config.Config
	log     logger.Logger
	sink    coremetrics.MetricsSink
	relays  []sharedstate.Relay
	closers []plugins.Closer
}

// New creates a Service from the configuration. Nothing runs until Run.
func New(cfg *config.Config) (svc *Service, err error) {
	s := &Service{cfg: cfg, log: logger.New("service")}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if cfg.Journal.Enabled() {
		js, err := journal.Open(cfg.Journal.Options())
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		s.Journal = js
		s.closers = append(s.closers, js.Close)
		sink = coremetrics.NewMultiSink(sink, journal.NewRecorder(js, logger.New("journal")))
	}
	s.sink = sink

	repo, closer, err := plugins.OpenRepository(cfg.Store, logger.New("store"))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s.Repo = repo
	s.addCloser(closer)

	backend, closer, err := plugins.OpenLayout(cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	s.addCloser(closer)
	s.Layout = layout.NewStore(backend, logger.New("layout"))

	s.Bus = sharedstate.New(logger.New("bus"), sharedstate.WithOrigin(cfg.Node), sharedstate.WithMetrics(sink))
	s.Store = workingset.NewStore()
	guard := workingset.NewGuard(s.Store, s.Bus, sink, logger.New("guard"))
	s.Reconciler = reconcile.New(repo, reconcile.Options{
		Retention:       cfg.Reconcile.Retention(),
		BookingStatuses: cfg.Reconcile.Statuses(),
	}, sink, logger.New("reconcile"))
	s.Coordinator = assign.New(repo, s.Store, guard, assign.Options{
		Location:            cfg.Reconcile.Location(),
		ReleaseAvailability: cfg.Reconcile.ReleaseAvailability,
	}, sink, logger.New("assign"))

	relays, err := sharedstate.NewRelays(cfg.Bus.Relays)
	if err != nil {
		return nil, fmt.Errorf("relays: %w", err)
	}
	s.relays = relays
	return s, nil
}

func (s *Service) addCloser(c plugins.Closer) {
	if c != nil {
		s.closers = append(s.closers, c)
	}
}

// Refresh runs one reconciliation pass into the working set.
func (s *Service) Refresh(ctx context.Context) (reconcile.Result, error) {
	return s.Reconciler.Refresh(ctx, s.Store)
}

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler {
	return dispatchapi.NewRouter(dispatchapi.Deps{
		Store:      s.Store,
		Mutator:    s.Coordinator,
		Refresher:  dispatchapi.RefreshFunc(s.Refresh),
		Bus:        s.Bus,
		Layout:     s.Layout,
		Journal:    s.Journal,
		Resources:  s.Repo,
		Location:   s.cfg.Reconcile.Location(),
		Log:        logger.New("api"),
		Token:      s.cfg.API.Token,
		CORSOrigin: s.cfg.API.CORSOrigin,
	})
}

// Run performs an initial pass, then keeps the working set fresh until ctx
// is cancelled. It also runs the relays, the Prometheus listener and the
// HTTP API when configured.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Errorf("initial refresh: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.refreshLoop(ctx) })
	for _, r := range s.relays {
		r := r
		g.Go(func() error {
			defer coremon.Recover()
			if err := r.Run(ctx, s.Bus); err != nil {
				return fmt.Errorf("relay: %w", err)
			}
			return nil
		})
	}
	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		g.Go(func() error {
			if err := metrics.StartPromServer(ctx, port); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
			return nil
		})
	}
	if s.cfg.API.Addr != "" {
		g.Go(func() error { return s.serveAPI(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// refreshLoop re-runs reconciliation on the configured interval and after
// every bus notification. Notifications arriving during a pass coalesce
// into one follow-up pass.
func (s *Service) refreshLoop(ctx context.Context) error {
	defer coremon.Recover()
	ch, cancel := s.Bus.Subscribe()
	defer cancel()

	var tick <-chan time.Time
	if d := s.cfg.Reconcile.Interval(); d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		tick = t.C
	}
	pending := make(chan struct{}, 1)
	trigger := func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			trigger()
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			s.log.Debugf("refresh after %s notification %d from %q", n.Type, n.Token, n.Detail.Origin)
			trigger()
		case <-pending:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.log.Warnf("refresh: %v", err)
			}
		}
	}
}

func (s *Service) serveAPI(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.API.ShutdownSeconds)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("api listening on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	for _, r := range s.relays {
		errs = append(errs, r.Close())
	}
	if s.Bus != nil {
		s.Bus.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
