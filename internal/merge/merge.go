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

// Package merge implements the collector that, once every shard has sealed
// a given interval, sums their per-metric tallies (shards are disjoint on
// IP, so unique-IP counts are additive) and emits one result row per
// metric cell.
package merge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telescope/internal/metric"
	"telescope/internal/shard"
	"telescope/internal/tagger"
	"telescope/internal/tally"
)

// ResultRow is one emitted (interval, metric cell) tally.
type ResultRow struct {
	BinTimestamp uint64
	SourceLabel  string
	MetricName   string
	MetricValue  string
	SrcIPCount   uint64
	DestIPCount  uint64
	PktCount     uint64
	ByteCount    uint64
}

// ResultSink is the outbound collaborator the collector hands finished
// rows to; encoding and transport are its concern, not the collector's.
type ResultSink interface {
	Emit(rows []ResultRow) error
}

// Metrics receives collector-level counter bumps.
type Metrics interface {
	IncSkippedInterval()
}

// NopMetrics discards every count.
type NopMetrics struct{}

func (NopMetrics) IncSkippedInterval() {}

// Config configures a Collector.
type Config struct {
	SourceLabel       string
	QueryTaggerLabels bool
	Tagger            tagger.Provider // only required if QueryTaggerLabels
	PollBackoff       time.Duration   // default 100µs
	Logger            zerolog.Logger
	Metrics           Metrics
}

// Collector polls every shard worker for the next interval to seal,
// accumulates their sealed maps, and emits one row per metric cell.
type Collector struct {
	shards      []*shard.Worker
	sink        ResultSink
	sourceLabel string
	queryLabels bool
	tagger      tagger.Provider
	pollBackoff time.Duration
	log         zerolog.Logger
	metrics     Metrics
}

// New builds a Collector over the given shard workers.
func New(shards []*shard.Worker, sink ResultSink, cfg Config) *Collector {
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = 100 * time.Microsecond
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	return &Collector{
		shards:      shards,
		sink:        sink,
		sourceLabel: cfg.SourceLabel,
		queryLabels: cfg.QueryTaggerLabels,
		tagger:      cfg.Tagger,
		pollBackoff: cfg.PollBackoff,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Run collects intervals in increasing order until ctx is cancelled or
// every shard has permanently stopped with nothing left to collect.
func (c *Collector) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !c.collectNext(ctx) {
			return
		}
	}
}

// discoverTarget finds the lowest sealed-but-uncollected interval
// timestamp across every shard. It returns false once every shard has
// stopped and none has a pending result left to offer.
func (c *Collector) discoverTarget(ctx context.Context) (int64, bool) {
	for {
		select {
		case <-ctx.Done():
			return 0, false
		default:
		}
		best := int64(-1)
		anyAvailable := false
		anyPending := false
		for _, w := range c.shards {
			_, ts, ok := w.TakeResult()
			if ok {
				anyAvailable = true
				if best == -1 || ts < best {
					best = ts
				}
				continue
			}
			if !w.Stopped() {
				anyPending = true
			}
		}
		if anyAvailable {
			return best, true
		}
		if !anyPending {
			return 0, false
		}
		time.Sleep(c.pollBackoff)
	}
}

// collectNext resolves exactly one target interval: gathered (emitted) or
// skipped (dropped because some shard could never seal it). Returns false
// only when there is nothing left to ever collect.
func (c *Collector) collectNext(ctx context.Context) bool {
	target, ok := c.discoverTarget(ctx)
	if !ok {
		return false
	}

	acc := tally.NewAccumulator()
	skipped := false
	resolved := make([]bool, len(c.shards))
	remaining := len(c.shards)

	for remaining > 0 {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		for i, w := range c.shards {
			if resolved[i] {
				continue
			}
			maps, ts, has := w.TakeResult()
			switch {
			case has && ts == target:
				acc.AddShard(maps)
				w.ReleaseResult()
				resolved[i] = true
				remaining--
			case has && ts < target:
				// leftover from a round we already finished; drop it.
				w.ReleaseResult()
			case has && ts > target:
				// this shard already raced past target: target's data on
				// this shard was overwritten before we could read it.
				skipped = true
				resolved[i] = true
				remaining--
			case w.Stopped():
				// shard halted without ever reaching target.
				skipped = true
				resolved[i] = true
				remaining--
			}
		}
		if remaining > 0 {
			time.Sleep(c.pollBackoff)
		}
	}

	if skipped {
		c.metrics.IncSkippedInterval()
		c.log.Warn().Int64("interval", target).Msg("interval dropped: at least one shard never sealed it")
		return true
	}

	rows := c.buildRows(target, acc)
	if err := c.sink.Emit(rows); err != nil {
		c.log.Error().Err(err).Int64("interval", target).Msg("result sink rejected interval")
	}
	return true
}

func (c *Collector) buildRows(target int64, acc *tally.Accumulator) []ResultRow {
	rows := make([]ResultRow, 0, len(acc.Tallies))
	for id, t := range acc.Tallies {
		rows = append(rows, ResultRow{
			BinTimestamp: uint64(target),
			SourceLabel:  c.sourceLabel,
			MetricName:   id.Class().String(),
			MetricValue:  c.formatValue(id),
			SrcIPCount:   t.UniqSrcIPs,
			DestIPCount:  t.UniqDstIPs,
			PktCount:     t.Packets,
			ByteCount:    t.Bytes,
		})
	}
	return rows
}

func (c *Collector) formatValue(id metric.ID) string {
	if !c.queryLabels || c.tagger == nil {
		return metric.FormatValue(id)
	}
	cls := id.Class()
	if !cls.IsRegionLike() {
		return metric.FormatValue(id)
	}
	label, err := c.tagger.LookupLabel(cls, id.Value())
	if err != nil || label == "" {
		return metric.FormatValue(id)
	}
	return label
}
