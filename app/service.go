// Package app wires the assignment engine with its infrastructure adapters
// and runs them as one service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	apiaudit "github.com/fieldserv/matchd/api/audit"
	"github.com/fieldserv/matchd/api/providers"
	"github.com/fieldserv/matchd/api/requests"
	"github.com/fieldserv/matchd/config"
	"github.com/fieldserv/matchd/core/assign"
	coreaudit "github.com/fieldserv/matchd/core/audit"
	"github.com/fieldserv/matchd/core/directory"
	"github.com/fieldserv/matchd/core/events"
	coremetrics "github.com/fieldserv/matchd/core/metrics"
	"github.com/fieldserv/matchd/core/notify"
	corestore "github.com/fieldserv/matchd/core/store"
	infraaudit "github.com/fieldserv/matchd/infra/audit"
	"github.com/fieldserv/matchd/infra/logger"
	"github.com/fieldserv/matchd/infra/metrics"
	infranotify "github.com/fieldserv/matchd/infra/notify"
	infrastore "github.com/fieldserv/matchd/infra/store"
	"github.com/fieldserv/matchd/internal/eventbus"
)

// Service bundles the engine with its adapters.
type Service struct {
	Manager   *assign.Manager
	Directory directory.Directory
	Bus       *eventbus.Bus[events.Event]

	cfg     *config.Config
	log     logger.Logger
	sweeper *assign.Sweeper
	mqtt    *infranotify.MQTTDispatcher
	audit   coreaudit.Store

	closers []func() error
}

// New builds a Service from validated configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	var st corestore.RequestStore
	switch cfg.Store.Backend {
	case "redis":
		client, err := infrastore.NewRedisClient(ctx, cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		st = infrastore.NewRedisStore(client)
	default:
		st = corestore.NewMemoryStore()
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.MetricsSink
	switch len(sinks) {
	case 0:
		sink = coremetrics.NopSink{}
	case 1:
		sink = sinks[0]
	default:
		sink = metrics.NewMultiSink(sinks...)
	}

	var dispatcher notify.Dispatcher
	var mqttDisp *infranotify.MQTTDispatcher
	if cfg.MQTT.Broker != "" {
		var err error
		mqttDisp, err = infranotify.NewMQTTDispatcher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt dispatcher: %w", err)
		}
		dispatcher = mqttDisp
	} else {
		logg.Warnf("no MQTT broker configured, notifications are collected in-process only")
		dispatcher = notify.NewMock()
	}
	dispatcher = notify.WithRetry(dispatcher, 3, 2*time.Second, logger.New("notify-retry"))

	dir := directory.NewMemoryDirectory()
	bus := eventbus.New[events.Event]()
	mgr, err := assign.NewManager(
		assign.OptionsFrom(cfg.Timeouts, cfg.Automatic),
		cfg.Matching,
		st,
		dir,
		dispatcher,
		sink,
		bus,
		logger.New("assign"),
	)
	if err != nil {
		return nil, fmt.Errorf("assignment manager: %w", err)
	}

	svc := &Service{
		Manager:   mgr,
		Directory: dir,
		Bus:       bus,
		cfg:       cfg,
		log:       logg,
		mqtt:      mqttDisp,
	}

	switch cfg.Audit.Backend {
	case "jsonl":
		as, err := coreaudit.NewJSONLStore(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("jsonl audit store: %w", err)
		}
		svc.audit = as
	case "postgres":
		as, err := infraaudit.NewPostgresStore(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres audit store: %w", err)
		}
		svc.audit = as
	}
	if svc.audit != nil {
		mgr.SetAuditStore(svc.audit)
		svc.closers = append(svc.closers, svc.audit.Close)
	}

	svc.sweeper = assign.NewSweeper(mgr.Escalation(), time.Minute, logger.New("sweeper"))
	return svc, nil
}

// Run restarts open requests, starts the sweeper, the MQTT response inbox,
// the HTTP API and the metrics server, then blocks until the context is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Manager.Recover(ctx); err != nil {
		return fmt.Errorf("recover open requests: %w", err)
	}
	if err := s.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer s.sweeper.Stop()

	if s.mqtt != nil {
		if err := s.mqtt.SubscribeResponses(ctx, s.Manager); err != nil {
			return fmt.Errorf("subscribe provider responses: %w", err)
		}
	}

	mux := http.NewServeMux()
	requests.NewHandler(s.Manager).Register(mux)
	providers.NewHandler(s.Directory).Register(mux)
	if s.audit != nil {
		mux.Handle("/audit", apiaudit.NewHandler(s.audit, s.cfg.API.AuditToken))
	}
	srv := &http.Server{
		Addr:              s.cfg.API.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Infof("HTTP API listening on %s", s.cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	if s.cfg.Metrics.PrometheusEnabled {
		g.Go(func() error {
			s.log.Infof("prometheus metrics on :%s", s.cfg.Metrics.PrometheusPort)
			if err := metrics.StartPromServer(s.cfg.Metrics.PrometheusPort); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close stops the engine and releases adapter resources.
func (s *Service) Close() error {
	err := s.Manager.Close()
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	for _, c := range s.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
