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

// aggregatord is the long-running network-telescope traffic-report
// aggregator: it wires the shard/merge/control fabric to a result sink and
// accepts tagged packets over a small HTTP ingest seam.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telescope/internal/config"
	"telescope/internal/control"
	"telescope/internal/sink"
	"telescope/internal/telemetry"
)

func main() {
	configPath, rest := extractConfigFlag(os.Args[1:])

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load(rest, configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unreadable configuration")
	}
	if len(cfg.InputSources) == 0 {
		log.Fatal().Msg("no input sources configured")
	}

	resultSink, err := sink.Build(cfg.ResultSinkKind, sink.BuildConfig{
		FilePath:     cfg.ResultSinkPath,
		RedisAddr:    cfg.RedisAddr,
		RedisListKey: cfg.OutputRowLabel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not build result sink")
	}

	metrics := telemetry.New()
	pol := cfg.ToPolicy()

	engine, err := control.New(control.Config{
		ShardCount:         cfg.ShardCount,
		CaptureWorkerCount: cfg.PktThreads,
		IngressHWM:         cfg.IngressHWM,
		Policy:             pol,
		Sink:               resultSink,
		SourceLabel:        cfg.OutputRowLabel,
		QueryTaggerLabels:  cfg.QueryTaggerLabels,
		Tagger:             passthroughTagger{},
		Logger:             log,
		ShardMetrics:       metrics,
		MergeMetrics:       metrics,
		OnBackpressure:     metrics.OnBackpressure,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not construct engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, err := engine.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("could not start shard workers")
	}

	var telemetrySrv *telemetry.Server
	if cfg.MetricsAddr != "" {
		telemetrySrv = telemetry.NewServer(cfg.MetricsAddr, engine, metrics)
		telemetrySrv.Start(runCtx)
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving /metrics and /healthz")
	}

	ingest := newIngestServer(engine, pol, passthroughTagger{}, cfg.PktThreads, log)
	ingestMux := http.NewServeMux()
	ingestMux.HandleFunc("/ingest", ingest.handle)
	ingestHTTP := &http.Server{Addr: cfg.IngestAddr, Handler: ingestMux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.IngestAddr).Msg("serving /ingest")
		if err := ingestHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ingest listener failed")
		}
	}()

	stopInterval := startIntervalTicker(runCtx, engine, cfg.PktThreads, time.Duration(cfg.IntervalSeconds)*time.Second)
	defer stopInterval()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ingestHTTP.Shutdown(shutdownCtx)

	if err := engine.Stop(); err != nil {
		log.Error().Err(err).Msg("engine stop did not complete cleanly")
	}
	if closer, ok := resultSink.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	log.Info().Msg("stopped")
}

// startIntervalTicker calls EndOfInterval on every capture worker's batcher
// at a fixed cadence, since this binary owns no real packet-capture clock
// of its own.
func startIntervalTicker(ctx context.Context, engine *control.Engine, workerCount int, period time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case t := <-ticker.C:
				ts := t.Unix()
				for w := 0; w < workerCount; w++ {
					engine.Batcher(w).EndOfInterval(ts)
				}
			}
		}
	}()
	return func() { <-done }
}

// extractConfigFlag pulls "-config <path>" or "-config=<path>" out of args
// so config.Load can own the rest of argv as its own flag set.
func extractConfigFlag(args []string) (path string, rest []string) {
	rest = make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				path = args[i+1]
				i++
			}
		case strings.HasPrefix(a, "-config="):
			path = strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			path = strings.TrimPrefix(a, "--config=")
		default:
			rest = append(rest, a)
		}
	}
	return path, rest
}
