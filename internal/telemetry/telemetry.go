// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes Prometheus counters/histograms for the shard
// and merge layers, plus a tiny HTTP server for /metrics and /healthz.
package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telescope/internal/control"
)

// Metrics implements shard.Metrics and merge.Metrics over a dedicated
// Prometheus registry, and also receives backpressure-block samples from
// control.Engine.
type Metrics struct {
	registry *prometheus.Registry

	lossTotal               *prometheus.CounterVec
	malformedTotal          *prometheus.CounterVec
	unknownIntervalTotal    *prometheus.CounterVec
	barrierSkippedTotal     *prometheus.CounterVec
	staleOverwrittenTotal   *prometheus.CounterVec
	backpressureBlockedSecs *prometheus.HistogramVec
	skippedIntervalTotal    prometheus.Counter
}

// New builds a Metrics instance registered on a private registry, so that
// running multiple engines in one process (tests, telescope-sim) never
// collides on global Prometheus state.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		lossTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telescope_ingress_loss_total",
			Help: "Sequence gaps detected on a shard's ingress queue, by producer.",
		}, []string{"shard", "producer"}),
		malformedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telescope_malformed_batch_dropped_total",
			Help: "Update entries dropped for carrying a malformed tag list.",
		}, []string{"shard"}),
		unknownIntervalTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telescope_unknown_interval_total",
			Help: "End-of-interval markers naming an interval beyond what a shard has open.",
		}, []string{"shard"}),
		barrierSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telescope_barrier_skipped_intervals_total",
			Help: "Intervals abandoned on a shard because a producer never reported end-of-interval.",
		}, []string{"shard"}),
		staleOverwrittenTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telescope_stale_result_overwritten_total",
			Help: "Sealed results overwritten before the merge collector read them.",
		}, []string{"shard"}),
		backpressureBlockedSecs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telescope_backpressure_block_seconds",
			Help:    "Time a batcher spent blocked sending to a full shard ingress queue.",
			Buckets: prometheus.DefBuckets,
		}, []string{"shard"}),
		skippedIntervalTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "telescope_merge_skipped_intervals_total",
			Help: "Intervals the merge collector dropped because some shard never sealed them.",
		}),
	}
}

// AddLoss implements shard.Metrics.
func (m *Metrics) AddLoss(shard, producer int, n uint64) {
	m.lossTotal.WithLabelValues(strconv.Itoa(shard), strconv.Itoa(producer)).Add(float64(n))
}

// IncMalformed implements shard.Metrics.
func (m *Metrics) IncMalformed(shard int) {
	m.malformedTotal.WithLabelValues(strconv.Itoa(shard)).Inc()
}

// IncUnknownInterval implements shard.Metrics.
func (m *Metrics) IncUnknownInterval(shard int) {
	m.unknownIntervalTotal.WithLabelValues(strconv.Itoa(shard)).Inc()
}

// IncBarrierSkipped implements shard.Metrics.
func (m *Metrics) IncBarrierSkipped(shard int) {
	m.barrierSkippedTotal.WithLabelValues(strconv.Itoa(shard)).Inc()
}

// IncStaleOverwritten implements shard.Metrics.
func (m *Metrics) IncStaleOverwritten(shard int) {
	m.staleOverwrittenTotal.WithLabelValues(strconv.Itoa(shard)).Inc()
}

// IncSkippedInterval implements merge.Metrics.
func (m *Metrics) IncSkippedInterval() {
	m.skippedIntervalTotal.Inc()
}

// OnBackpressure is suitable for control.Config.OnBackpressure.
func (m *Metrics) OnBackpressure(shardID int, blocked time.Duration) {
	m.backpressureBlockedSecs.WithLabelValues(strconv.Itoa(shardID)).Observe(blocked.Seconds())
}

// Server exposes /metrics and /healthz for one running engine.
type Server struct {
	addr   string
	engine *control.Engine
	http   *http.Server
}

// NewServer builds a Server. engine is polled for /healthz; metrics is
// registered for /metrics.
func NewServer(addr string, engine *control.Engine, metrics *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		statuses := engine.Status()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statuses)
	})
	return &Server{
		addr:   addr,
		engine: engine,
		http:   &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Start runs the HTTP server in a background goroutine until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		_ = s.http.ListenAndServe()
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()
}
