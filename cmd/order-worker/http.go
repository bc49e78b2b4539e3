package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/OrderBox/config"
	"github.com/BearBump/OrderBox/internal/metrics"
	"github.com/BearBump/OrderBox/internal/services/syncer"
	"github.com/go-chi/chi/v5"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	syncer  *syncer.Syncer
	cfg     *config.Config
	metrics *metrics.Metrics
	ready   func(ctx context.Context) error
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWorkerRouter(opts), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

func newWorkerRouter(opts workerHTTPOpts) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.syncer == nil {
			_, _ = w.Write([]byte(`{"error":"syncer not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.syncer.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// operational settings only, credentials stay out
		out := map[string]any{
			"enrichTopic":            enrichTopic(opts.cfg),
			"enrichDLQTopic":         opts.cfg.Kafka.EnrichDLQTopicName,
			"consumerGroup":          consumerGroup(opts.cfg),
			"maxRetries":             opts.cfg.Kafka.MaxRetries,
			"baseBackoffMillis":      opts.cfg.Kafka.BaseBackoffMillis,
			"syncIntervalSeconds":    opts.cfg.OrderBox.SyncIntervalSeconds,
			"syncLookbackSeconds":    opts.cfg.OrderBox.SyncLookbackSeconds,
			"syncConcurrency":        opts.cfg.OrderBox.SyncConcurrency,
			"shopifyRateLimitPerMin": opts.cfg.Shopify.RateLimitPerMinute,
			"shopifyAPIVersion":      opts.cfg.Shopify.APIVersion,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.syncer == nil {
			_, _ = w.Write([]byte(`{"error":"syncer not wired"}`))
			return
		}
		opts.syncer.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	if opts.metrics != nil {
		r.Handle("/metrics", opts.metrics.Handler())
	}
	return r
}
