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

// Package batch implements the capture-worker-side update batcher: it
// converts a tagged packet into one or two update entries (source leg,
// destination leg) and enqueues them toward the correct shard, accumulating
// into fixed-size batches per (capture worker, shard) pair.
package batch

import (
	"telescope/internal/ingress"
	"telescope/internal/metric"
	"telescope/internal/shardkey"
	"telescope/internal/tagger"
)

// Config tunes the batcher's flush policy.
type Config struct {
	// BatchSize is the payload-entry count that triggers a flush. Default
	// 10,000.
	BatchSize int
	// MaxTagsPerEntry bounds a single entry's tag list; reaching it forces
	// an immediate flush of that shard's pending batch.
	MaxTagsPerEntry int
}

// DefaultConfig returns the batcher's default flush thresholds.
func DefaultConfig() Config {
	return Config{BatchSize: 10000, MaxTagsPerEntry: 64}
}

// Batcher is owned by exactly one capture worker and fans its packets out
// to every shard's ingress queue. It is not safe for concurrent use; callers
// outside that owning goroutine must go through an Actor instead of calling
// Batcher's methods directly.
type Batcher struct {
	workerID int
	router   shardkey.Router
	queues   []*ingress.Queue
	cfg      Config

	pending []pendingBatch
	seq     []uint64
}

type pendingBatch struct {
	entries []ingress.Entry
}

// New constructs a Batcher for one capture worker. queues must have
// len == router.N(), one ingress queue per shard.
func New(workerID int, router shardkey.Router, queues []*ingress.Queue, cfg Config) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10000
	}
	if cfg.MaxTagsPerEntry <= 0 {
		cfg.MaxTagsPerEntry = 64
	}
	n := router.N()
	return &Batcher{
		workerID: workerID,
		router:   router,
		queues:   queues,
		cfg:      cfg,
		pending:  make([]pendingBatch, n),
		seq:      make([]uint64, n),
	}
}

// Observe converts one tagged packet into its source leg and destination
// leg, unconditionally — even for src == dst traffic, matching upstream's
// own lack of a self-traffic special case — and appends both to the
// appropriate shards' pending batches, flushing as needed.
//
// tags is the tag_list already computed by policy.Compiler for this
// packet; the batcher does not consult the policy itself.
func (b *Batcher) Observe(r tagger.Record, tags []metric.Tag) {
	b.appendEntry(r.SrcIP, ingress.Entry{
		IP:          r.SrcIP,
		IsSrc:       true,
		SrcASN:      r.SrcASN,
		BytesOrZero: r.Bytes,
		Tags:        tags,
	})
	b.appendEntry(r.DstIP, ingress.Entry{
		IP:          r.DstIP,
		IsSrc:       false,
		SrcASN:      r.SrcASN,
		BytesOrZero: 0, // bytes/packets accrue only on the source leg
		Tags:        tags,
	})
}

func (b *Batcher) appendEntry(ip uint32, e ingress.Entry) {
	shard := b.router.Shard(ip)
	pb := &b.pending[shard]
	pb.entries = append(pb.entries, e)
	if len(pb.entries) >= b.cfg.BatchSize || len(e.Tags) >= b.cfg.MaxTagsPerEntry {
		b.flushShard(shard)
	}
}

func (b *Batcher) flushShard(shard int) {
	pb := &b.pending[shard]
	if len(pb.entries) == 0 {
		return
	}
	b.seq[shard]++
	b.queues[shard].Send(ingress.UpdateBatch{
		WorkerID: b.workerID,
		Seq:      b.seq[shard],
		Entries:  pb.entries,
	})
	pb.entries = nil
}

// FlushAll flushes every shard's pending batch without signalling
// end-of-interval. Exposed for tools/tests that need deterministic
// draining outside the EOI path.
func (b *Batcher) FlushAll() {
	for i := range b.pending {
		b.flushShard(i)
	}
}

// EndOfInterval flushes every shard's pending batch, then sends the
// end-of-interval marker to every shard, once each.
func (b *Batcher) EndOfInterval(intervalTS int64) {
	for i := range b.queues {
		b.flushShard(i)
		b.queues[i].Send(ingress.EOI{WorkerID: b.workerID, IntervalTS: intervalTS})
	}
}

// Halt flushes every shard's pending batch, then asks every shard to halt.
func (b *Batcher) Halt() {
	for i := range b.queues {
		b.flushShard(i)
		b.queues[i].Send(ingress.Halt{WorkerID: b.workerID})
	}
}
