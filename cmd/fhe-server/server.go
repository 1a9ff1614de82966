package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/config"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/engine"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/gateway"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/metrics"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/queue"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/worker"
	"github.com/Hermetic-Labs/hermetic-fhe/pkg/fhe"
)

func run(parent context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	srv, err := newServer(cfg, fhe.NewLuxBackend(), logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(parent)
	if err := srv.start(ctx, g); err != nil {
		return errors.Join(err, srv.shutdown())
	}

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal", zap.String("signal", sig.String()))
		case <-ctx.Done():
		}
		return srv.shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// server owns every long-running component of the process.
type server struct {
	cfg    config.Config
	logger *zap.Logger

	queue    queue.Queue
	pool     *worker.Pool
	conn     *nats.Conn
	listener *gateway.Listener
	api      *http.Server
	metrics  *http.Server
}

func newServer(cfg config.Config, backend fhe.Backend, logger *zap.Logger) (*server, error) {
	s := &server{cfg: cfg, logger: logger}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	reg := registry.New(registry.WithShards(cfg.Registry.Shards))
	m.WatchRegistry(reg)
	limiter := worker.NewLimiter(cfg.Worker.ComputeSlots, m)

	if cfg.Queue.Enabled {
		q, err := newQueue(cfg.Queue)
		if err != nil {
			return nil, err
		}
		s.queue = q
	}

	svc, err := engine.New(engine.Config{
		Backend:  backend,
		Registry: reg,
		Runner:   limiter,
		Queue:    s.queue,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create service: %w", err), s.closeQueue())
	}

	httpCfg := gateway.HTTPConfig{MaxBodyBytes: cfg.HTTP.MaxBodyBytes}
	if s.queue != nil {
		s.pool = worker.NewPool(worker.Config{
			NumWorkers:      cfg.Worker.JobRunners,
			ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		}, s.queue, svc, m, logger)
		httpCfg.Health = s.pool.HealthCheck
	}
	api := gateway.NewAPI(svc, s.pool, limiter, logger)

	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{Registry: promRegistry})
	if cfg.Metrics.Addr == "" {
		httpCfg.Metrics = metricsHandler
	} else {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metricsHandler)
		s.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	s.api = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      gateway.NewHTTPHandler(api, httpCfg),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	if cfg.NATS.Enabled {
		conn, err := nats.Connect(cfg.NATS.URL,
			nats.Name("fhe-server"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrlRedacted()))
			}),
		)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect nats: %w", err), s.closeQueue())
		}
		s.conn = conn
		s.listener = gateway.NewListener(gateway.Config{
			Subject:     cfg.NATS.Subject,
			QueueGroup:  cfg.NATS.QueueGroup,
			Concurrency: limiter.Slots(),
		}, conn, api, logger)
	}

	return s, nil
}

func newQueue(cfg config.QueueConfig) (queue.Queue, error) {
	switch cfg.Backend {
	case config.QueueRedis:
		q, err := queue.NewRedisQueue(queue.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		}, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("create queue: %w", err)
		}
		return q, nil
	default:
		return queue.NewMemoryQueue(cfg.Capacity), nil
	}
}

// start launches the job runners, the NATS listener and the HTTP listeners.
func (s *server) start(ctx context.Context, g *errgroup.Group) error {
	if s.pool != nil {
		if err := s.pool.Start(ctx); err != nil {
			return fmt.Errorf("start workers: %w", err)
		}
	}
	if s.listener != nil {
		if err := s.listener.Start(ctx); err != nil {
			return fmt.Errorf("start nats listener: %w", err)
		}
	}

	for _, hs := range []*http.Server{s.api, s.metrics} {
		if hs == nil {
			continue
		}
		g.Go(func() error {
			s.logger.Info("http server starting", zap.String("addr", hs.Addr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", hs.Addr, err)
			}
			return nil
		})
	}
	return nil
}

// shutdown stops accepting requests, then drains running work.
func (s *server) shutdown() error {
	timeout := s.cfg.Worker.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, hs := range []*http.Server{s.api, s.metrics} {
		if hs == nil {
			continue
		}
		if err := hs.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.String("addr", hs.Addr), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if s.listener != nil {
		if err := s.listener.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
	if s.pool != nil {
		if err := s.pool.Stop(); err != nil {
			s.logger.Error("worker pool shutdown error", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := s.closeQueue(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *server) closeQueue() error {
	if s.queue == nil {
		return nil
	}
	q := s.queue
	s.queue = nil
	if err := q.Close(); err != nil {
		return fmt.Errorf("close queue: %w", err)
	}
	return nil
}
