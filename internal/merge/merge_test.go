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

package merge

import (
	"context"
	"sync"
	"testing"
	"time"

	"telescope/internal/ingress"
	"telescope/internal/metric"
	"telescope/internal/policy"
	"telescope/internal/shard"
)

type fakeSink struct {
	mu   sync.Mutex
	rows [][]ResultRow
}

func (f *fakeSink) Emit(rows []ResultRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows)
	return nil
}

func (f *fakeSink) all() []ResultRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ResultRow
	for _, batch := range f.rows {
		out = append(out, batch...)
	}
	return out
}

type fakeMetrics struct {
	mu      sync.Mutex
	skipped int
}

func (f *fakeMetrics) IncSkippedInterval() {
	f.mu.Lock()
	f.skipped++
	f.mu.Unlock()
}

func newTestShard(t *testing.T, id int) (*shard.Worker, *ingress.Queue) {
	t.Helper()
	q := ingress.NewQueue(64)
	w := shard.New(id, q, shard.Config{
		NumWorkers:    1,
		SrcIPCounting: policy.IPCounting{Method: policy.CountAll},
		DstIPCounting: policy.IPCounting{Method: policy.CountAll},
	})
	return w, q
}

func combinedBatch(ip uint32, isSrc bool, bytes uint32, seq uint64) ingress.UpdateBatch {
	return ingress.UpdateBatch{
		WorkerID: 0,
		Seq:      seq,
		Entries: []ingress.Entry{{
			IP:          ip,
			IsSrc:       isSrc,
			BytesOrZero: bytes,
			Tags:        []metric.Tag{{ID: metric.Combined}},
		}},
	}
}

func TestCollectorEmitsMergedInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w0, q0 := newTestShard(t, 0)
	w1, q1 := newTestShard(t, 1)
	go w0.Run(ctx, nil)
	go w1.Run(ctx, nil)

	q0.Send(combinedBatch(10, true, 100, 0))
	q0.Send(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	q1.Send(combinedBatch(20, false, 0, 0))
	q1.Send(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	time.Sleep(50 * time.Millisecond)

	q0.Send(ingress.Halt{WorkerID: 0})
	q1.Send(ingress.Halt{WorkerID: 0})
	time.Sleep(50 * time.Millisecond)

	sink := &fakeSink{}
	metrics := &fakeMetrics{}
	c := New([]*shard.Worker{w0, w1}, sink, Config{SourceLabel: "test", Metrics: metrics})
	c.Run(ctx)

	rows := sink.all()
	if len(rows) != 1 {
		t.Fatalf("emitted %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.PktCount != 1 || row.ByteCount != 100 {
		t.Errorf("row = %+v, want PktCount=1 ByteCount=100", row)
	}
	if row.SrcIPCount != 1 || row.DestIPCount != 1 {
		t.Errorf("row = %+v, want SrcIPCount=1 DestIPCount=1 (shards are additive)", row)
	}
	if metrics.skipped != 0 {
		t.Errorf("skipped = %d, want 0", metrics.skipped)
	}
}

func TestCollectorDropsIntervalWhenAShardNeverSeals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w0, q0 := newTestShard(t, 0)
	w1, q1 := newTestShard(t, 1)
	go w0.Run(ctx, nil)
	go w1.Run(ctx, nil)

	q0.Send(combinedBatch(10, true, 100, 0))
	q0.Send(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	time.Sleep(30 * time.Millisecond)
	q0.Send(ingress.Halt{WorkerID: 0})
	// w1 never reports interval 60 at all before halting.
	q1.Send(ingress.Halt{WorkerID: 0})
	time.Sleep(50 * time.Millisecond)

	sink := &fakeSink{}
	metrics := &fakeMetrics{}
	c := New([]*shard.Worker{w0, w1}, sink, Config{SourceLabel: "test", Metrics: metrics})
	c.Run(ctx)

	if len(sink.all()) != 0 {
		t.Errorf("emitted rows = %v, want none: interval must be dropped, not emitted", sink.all())
	}
	if metrics.skipped != 1 {
		t.Errorf("skipped = %d, want 1", metrics.skipped)
	}
}
