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

// Package control wires together the shard workers, capture-worker
// batchers, and merge collector into one running engine, and owns the
// start/stop lifecycle across all of them.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telescope/internal/batch"
	"telescope/internal/ingress"
	"telescope/internal/merge"
	"telescope/internal/policy"
	"telescope/internal/shard"
	"telescope/internal/shardkey"
	"telescope/internal/tagger"
)

// Config assembles one Engine.
type Config struct {
	ShardCount         int
	CaptureWorkerCount int
	IngressHWM         int
	Router             shardkey.Router // default: shardkey.NewPrefixMod(ShardCount)
	Policy             *policy.Policy
	Sink               merge.ResultSink
	SourceLabel        string
	QueryTaggerLabels  bool
	Tagger             tagger.Provider
	Logger             zerolog.Logger
	ShardMetrics       shard.Metrics
	MergeMetrics       merge.Metrics
	OnBackpressure     func(shardID int, blocked time.Duration)
	StopTimeout        time.Duration // default 5s
	ReadyTimeout       time.Duration // default 2s
}

// ShardStatus is a point-in-time snapshot of one shard worker, surfaced for
// health reporting.
type ShardStatus struct {
	ID         int
	LastSealed int64
	HaltPhase  string
	Stopped    bool
}

// Engine owns every shard worker, every capture-worker batcher, and the
// merge collector for one running telescope aggregation process.
type Engine struct {
	cfg       Config
	queues    []*ingress.Queue
	shards    []*shard.Worker
	batchers  []*batch.Actor
	collector *merge.Collector

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New validates cfg and constructs the shard workers, queues, batchers, and
// merge collector. It does not start any goroutine; call Start for that.
func New(cfg Config) (*Engine, error) {
	if cfg.ShardCount < 1 || cfg.ShardCount > 32 {
		return nil, fmt.Errorf("control: shard count must be in [1,32], got %d", cfg.ShardCount)
	}
	if cfg.CaptureWorkerCount < 1 {
		return nil, fmt.Errorf("control: capture worker count must be >= 1, got %d", cfg.CaptureWorkerCount)
	}
	if cfg.Policy == nil {
		return nil, errors.New("control: policy must not be nil")
	}
	if cfg.Sink == nil {
		return nil, errors.New("control: result sink must not be nil")
	}
	if cfg.Router == nil {
		cfg.Router = shardkey.NewPrefixMod(cfg.ShardCount)
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}

	queues := make([]*ingress.Queue, cfg.ShardCount)
	shards := make([]*shard.Worker, cfg.ShardCount)
	for i := range queues {
		queues[i] = ingress.NewQueue(cfg.IngressHWM)
		if cfg.OnBackpressure != nil {
			shardID := i
			queues[i].SetBlockObserver(func(blocked time.Duration) {
				cfg.OnBackpressure(shardID, blocked)
			})
		}
		shards[i] = shard.New(i, queues[i], shard.Config{
			NumWorkers:    cfg.CaptureWorkerCount,
			Logger:        cfg.Logger,
			Metrics:       cfg.ShardMetrics,
			SrcIPCounting: cfg.Policy.SrcIPCounting,
			DstIPCounting: cfg.Policy.DstIPCounting,
		})
	}

	// Each capture worker's Batcher is only safe for use by the single
	// goroutine that owns it, so every Batcher is wrapped in an Actor:
	// producers (HTTP handlers, interval tickers, generator loops) enqueue
	// work through the Actor instead of touching the Batcher directly, and
	// Start launches the one goroutine per worker that actually applies it.
	batchers := make([]*batch.Actor, cfg.CaptureWorkerCount)
	for i := range batchers {
		batchers[i] = batch.NewActor(batch.New(i, cfg.Router, queues, batch.DefaultConfig()))
	}

	collector := merge.New(shards, cfg.Sink, merge.Config{
		SourceLabel:       cfg.SourceLabel,
		QueryTaggerLabels: cfg.QueryTaggerLabels,
		Tagger:            cfg.Tagger,
		Logger:            cfg.Logger,
		Metrics:           cfg.MergeMetrics,
	})

	return &Engine{
		cfg:       cfg,
		queues:    queues,
		shards:    shards,
		batchers:  batchers,
		collector: collector,
	}, nil
}

// Batcher returns the actor a capture worker should push packets through.
// workerID must be in [0, CaptureWorkerCount). Its Observe, EndOfInterval,
// and Halt methods are safe to call from any goroutine; the underlying
// Batcher is only ever touched by the owning goroutine Start launches.
func (e *Engine) Batcher(workerID int) *batch.Actor { return e.batchers[workerID] }

// Router returns the shard-routing function shared by every batcher.
func (e *Engine) Router() shardkey.Router { return e.cfg.Router }

// Start launches every shard worker and the merge collector, then blocks
// until every shard worker has entered its run loop (or ReadyTimeout
// elapses). The returned context is a child of ctx; cancelling it (or
// calling Stop) winds the engine down.
func (e *Engine) Start(ctx context.Context) (context.Context, error) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	ready := make(chan struct{}, len(e.shards))
	for _, w := range e.shards {
		w := w
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			w.Run(runCtx, ready)
		}()
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.collector.Run(runCtx)
	}()
	for _, b := range e.batchers {
		b := b
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			b.Run(runCtx)
		}()
	}

	deadline := time.After(e.cfg.ReadyTimeout)
	for n := 0; n < len(e.shards); n++ {
		select {
		case <-ready:
		case <-deadline:
			cancel()
			return runCtx, fmt.Errorf("control: only %d/%d shard workers became ready within %s", n, len(e.shards), e.cfg.ReadyTimeout)
		}
	}
	return runCtx, nil
}

// Stop halts every capture-worker batcher (which flushes and signals every
// shard), waits up to StopTimeout for all shard workers and the merge
// collector to finish, then tears down the ingress queues.
func (e *Engine) Stop() error {
	for _, b := range e.batchers {
		b.Halt()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-time.After(e.cfg.StopTimeout):
		if e.cancel != nil {
			e.cancel()
		}
		<-done
		stopErr = fmt.Errorf("control: stop timed out after %s, forced cancellation", e.cfg.StopTimeout)
	}

	for _, q := range e.queues {
		q.Close()
	}
	return stopErr
}

// Status snapshots every shard worker's lifecycle state, for health
// reporting.
func (e *Engine) Status() []ShardStatus {
	statuses := make([]ShardStatus, len(e.shards))
	for i, w := range e.shards {
		statuses[i] = ShardStatus{
			ID:         w.ID(),
			LastSealed: w.LastSealed(),
			HaltPhase:  w.HaltPhase(),
			Stopped:    w.Stopped(),
		}
	}
	return statuses
}
