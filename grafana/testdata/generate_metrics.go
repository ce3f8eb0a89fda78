// Package testdata provides utilities for generating sample metrics data
// to test Grafana dashboards without using real production data.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for testing dashboards. Names mirror what the daemon exports.
var (
	// Update run metrics
	runsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blacksmith_update_runs_started_total",
			Help: "Number of regeneration runs started",
		},
	)
	runsSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blacksmith_update_runs_superseded_total",
			Help: "Number of in-flight runs cancelled by a newer request",
		},
	)
	runInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blacksmith_update_run_in_flight",
			Help: "Whether a regeneration run is currently executing",
		},
	)
	generationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blacksmith_update_generation_failures_total",
			Help: "Generation failures by target",
		},
		[]string{"target"},
	)
	targetsRegenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blacksmith_update_targets_regenerated_total",
			Help: "Targets whose generated file set was written and staged",
		},
	)

	// Review metrics
	approvals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blacksmith_review_approvals_total",
			Help: "Approve calls that created a checkpoint",
		},
	)
	rejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blacksmith_review_rejections_total",
			Help: "Reject calls that reverted staged changes",
		},
	)

	// HTTP server metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blacksmith_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blacksmith_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		runsStarted,
		runsSuperseded,
		runInFlight,
		generationFailures,
		targetsRegenerated,
		approvals,
		rejections,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	// Generate initial sample data
	generateSampleData()

	// Start background goroutine to continuously generate data
	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	// Serve metrics
	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'blacksmith-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

var (
	targets = []string{"typescript", "python", "java", "go", "rust"}
	routes  = []string{"/api/v1/update", "/api/v1/progress", "/api/v1/targets", "/api/v1/targets/:id/status", "/api/v1/targets/:id/approve"}
)

func generateSampleData() {
	for i := 0; i < 20; i++ {
		runsStarted.Inc()
		if rand.Float64() > 0.7 {
			runsSuperseded.Inc()
		}
	}
	for i := 0; i < 80; i++ {
		targetsRegenerated.Inc()
	}
	for i := 0; i < 8; i++ {
		generationFailures.WithLabelValues(randomChoice(targets)).Inc()
	}

	for i := 0; i < 40; i++ {
		approvals.Inc()
	}
	for i := 0; i < 12; i++ {
		rejections.Inc()
	}

	methods := []string{"GET", "POST"}
	statuses := []string{"200", "202", "400", "404", "500"}
	for i := 0; i < 200; i++ {
		route := randomChoice(routes)
		method := randomChoice(methods)
		httpRequestsTotal.WithLabelValues(method, route, randomChoice(statuses)).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(rand.Float64() * 0.5)
	}
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Simulate an occasional regeneration run
			if rand.Float64() > 0.7 {
				runsStarted.Inc()
				runInFlight.Set(1)
				for range targets {
					if rand.Float64() > 0.1 {
						targetsRegenerated.Inc()
					} else {
						generationFailures.WithLabelValues(randomChoice(targets)).Inc()
					}
				}
				runInFlight.Set(0)
			}

			// Simulate review activity
			if rand.Float64() > 0.5 {
				approvals.Inc()
			}
			if rand.Float64() > 0.85 {
				rejections.Inc()
			}

			// Simulate API traffic
			for i := 0; i < rand.Intn(10); i++ {
				route := randomChoice(routes)
				method := "GET"
				if rand.Float64() > 0.7 {
					method = "POST"
				}
				httpRequestsTotal.WithLabelValues(method, route, "200").Inc()
				httpRequestDuration.WithLabelValues(method, route).Observe(rand.Float64() * 0.3)
			}
		}
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
