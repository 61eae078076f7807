package manifold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	httpAdapter "github.com/aretw0/manifold/pkg/adapters/http"
	mcpAdapter "github.com/aretw0/manifold/pkg/adapters/mcp"
	redisAdapter "github.com/aretw0/manifold/pkg/adapters/redis"
	"github.com/aretw0/manifold/pkg/config"
	"github.com/aretw0/manifold/pkg/domain"
	"github.com/aretw0/manifold/pkg/observability"
	"github.com/aretw0/manifold/pkg/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const teardownTimeout = 5 * time.Second

// Run builds the pipeline described by cfg, serves its control endpoint and
// publishes its events when configured, and blocks until the tree is gone.
// It returns the exit code for the program. A non-nil error means the
// pipeline could not be set up; nothing is left running in that case.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (int, error) {
	p := newPipeline(cfg, opts...)
	logger := p.logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)
	streams := httpAdapter.NewStreamManager(logger)

	hooks := []domain.LifecycleHooks{
		metrics.Hooks(),
		observability.LoggingHooks(logger),
		streams.Hooks(),
	}

	var publisher *redisAdapter.Publisher
	if r := cfg.Events.Redis; r != nil {
		publisher = redisAdapter.New(r.Addr, r.Password, r.DB,
			redisAdapter.WithStream(r.Stream),
			redisAdapter.WithMaxLen(r.MaxLen),
			redisAdapter.WithLogger(logger),
		)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := publisher.Ping(pingCtx); err != nil {
			logger.Warn("event stream unreachable, publishing anyway", "error", err)
		}
		cancel()
		hooks = append(hooks, publisher.Hooks())
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			if err := publisher.Close(closeCtx); err != nil {
				logger.Warn("event publisher close failed", "error", err)
			}
		}()
	}

	p.hooks = append(p.hooks, hooks...)
	p.supOpts = append(p.supOpts, supervisor.WithByteCounter(metrics.CountBytes))
	p.initSupervisor()
	sup := p.Supervisor()
	metrics.TrackLive(sup.Live)

	if cfg.Metrics.Addr != "" {
		handler := httpAdapter.NewHandler(sup,
			httpAdapter.WithMetrics(registry),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithVersion(Version),
			httpAdapter.WithLogger(logger),
		)
		stop, err := serve(cfg.Metrics.Addr, handler, logger)
		if err != nil {
			return 1, err
		}
		defer stop()
	}

	if cfg.MCP.Addr != "" {
		srv := mcpAdapter.NewServer(sup, Version, mcpAdapter.WithLogger(logger))
		stop, err := serve(cfg.MCP.Addr, srv.Handler(), logger.With("endpoint", "mcp"))
		if err != nil {
			return 1, err
		}
		defer stop()
	}

	if err := p.Start(); err != nil {
		p.Wait(context.Background())
		return 1, fmt.Errorf("failed to start pipeline: %w", err)
	}
	return p.Wait(ctx), nil
}

// serve listens on addr right away so a busy port is a setup error.
func serve(addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("control endpoint listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control endpoint failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
