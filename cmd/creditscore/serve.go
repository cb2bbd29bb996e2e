package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"credit-scorer/internal/api"
	"credit-scorer/internal/cfg"
	"credit-scorer/internal/metrics"
	"credit-scorer/internal/scoring"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cli.Command{
	Name:   "serve",
	Usage:  "Load the model and feature table and serve the scoring API",
	Action: serve,
}

func serve(ctx context.Context, _ *cli.Command) error {
	c, err := cfg.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	setupLogging(c.LogLevel, c.LogFormat)

	snapshot, err := scoring.Load(c)
	if err != nil {
		return fmt.Errorf("snapshot load failed: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWithRegistry(reg)

	svc, err := scoring.NewService(snapshot, metrics.NewWrapper(m))
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}
	m.TableRows.Set(float64(snapshot.Table.Len()))
	if info := svc.Info(); info.Model != nil {
		m.ModelTrees.Set(float64(info.Model.NumTrees))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(svc, m, api.Config{
		Port:         c.ListenPort,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		return shutdown("API", c.ShutdownTimeout, server.Shutdown)
	})

	if c.MetricsPort > 0 {
		metricsServer := newMetricsServer(c.MetricsPort, reg)
		g.Go(func() error {
			log.Info().Int("port", c.MetricsPort).Msg("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return shutdown("metrics", c.ShutdownTimeout, metricsServer.Shutdown)
		})
	} else {
		log.Info().Msg("Metrics server disabled")
	}

	err = g.Wait()
	log.Info().Msg("Shutdown complete")
	return err
}

func newMetricsServer(port int, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func shutdown(name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info().Str("server", name).Msg("Shutting down")
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", name, err)
	}
	return nil
}
