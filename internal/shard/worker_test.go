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

package shard

import (
	"testing"

	"telescope/internal/ingress"
	"telescope/internal/metric"
	"telescope/internal/policy"
)

func newTestWorker(numWorkers int) *Worker {
	q := ingress.NewQueue(64)
	return New(0, q, Config{
		NumWorkers:    numWorkers,
		SrcIPCounting: policy.IPCounting{Method: policy.CountAll},
		DstIPCounting: policy.IPCounting{Method: policy.CountAll},
	})
}

func combinedEntry(ip uint32, isSrc bool, bytes uint32) ingress.Entry {
	return ingress.Entry{
		IP:          ip,
		IsSrc:       isSrc,
		BytesOrZero: bytes,
		Tags:        []metric.Tag{{ID: metric.Combined}},
	}
}

func TestWorkerSealsOnceAllWorkersReportEOI(t *testing.T) {
	w := newTestWorker(2)
	w.handleUpdate(ingress.UpdateBatch{WorkerID: 0, Seq: 0, Entries: []ingress.Entry{
		combinedEntry(10, true, 100),
	}})
	w.handleUpdate(ingress.UpdateBatch{WorkerID: 1, Seq: 0, Entries: []ingress.Entry{
		combinedEntry(20, false, 0),
	}})

	w.handleEOI(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	if _, _, ok := w.TakeResult(); ok {
		t.Fatal("interval sealed before every worker reported EOI")
	}

	w.handleEOI(ingress.EOI{WorkerID: 1, IntervalTS: 60})
	maps, ts, ok := w.TakeResult()
	if !ok {
		t.Fatal("interval did not seal once every worker reported EOI")
	}
	if ts != 60 {
		t.Errorf("sealed ts = %d, want 60", ts)
	}
	tally := maps.Tallies[metric.Combined]
	if tally == nil {
		t.Fatal("expected a COMBINED tally entry")
	}
	if tally.Packets != 1 || tally.Bytes != 100 {
		t.Errorf("tally = %+v, want Packets=1 Bytes=100", tally)
	}
	if tally.UniqSrcIPs != 1 || tally.UniqDstIPs != 1 {
		t.Errorf("tally = %+v, want UniqSrcIPs=1 UniqDstIPs=1", tally)
	}
	w.ReleaseResult()
	if _, _, ok := w.TakeResult(); ok {
		t.Error("result should be gone after ReleaseResult")
	}
}

func TestWorkerNoDoubleCountingSameIPSameRole(t *testing.T) {
	w := newTestWorker(1)
	w.handleUpdate(ingress.UpdateBatch{WorkerID: 0, Seq: 0, Entries: []ingress.Entry{
		combinedEntry(10, true, 50),
		combinedEntry(10, true, 60),
	}})
	w.handleEOI(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	maps, _, ok := w.TakeResult()
	if !ok {
		t.Fatal("expected interval to seal")
	}
	tally := maps.Tallies[metric.Combined]
	if tally.Packets != 2 || tally.Bytes != 110 {
		t.Errorf("tally = %+v, want Packets=2 Bytes=110 (packets/bytes always accrue)", tally)
	}
	if tally.UniqSrcIPs != 1 {
		t.Errorf("UniqSrcIPs = %d, want 1 (same src IP seen twice must count once)", tally.UniqSrcIPs)
	}
}

func TestWorkerMalformedEntryDropped(t *testing.T) {
	w := newTestWorker(1)
	w.handleUpdate(ingress.UpdateBatch{WorkerID: 0, Seq: 0, Entries: []ingress.Entry{
		{IP: 10, IsSrc: true, BytesOrZero: 50, Tags: nil},
	}})
	w.handleEOI(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	maps, _, ok := w.TakeResult()
	if !ok {
		t.Fatal("expected interval to seal")
	}
	if len(maps.Tallies) != 0 {
		t.Errorf("malformed entry with no tags should be dropped, got tallies: %+v", maps.Tallies)
	}
}

func TestWorkerLateArrivalGoesToNextInterval(t *testing.T) {
	w := newTestWorker(2)
	w.handleEOI(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	// worker 0 has already reported EOI for interval 60; its further updates
	// belong to the next interval, not the one still awaiting worker 1.
	w.handleUpdate(ingress.UpdateBatch{WorkerID: 0, Seq: 0, Entries: []ingress.Entry{
		combinedEntry(10, true, 100),
	}})
	w.handleEOI(ingress.EOI{WorkerID: 1, IntervalTS: 60})

	maps, ts, ok := w.TakeResult()
	if !ok {
		t.Fatal("expected interval 60 to seal")
	}
	if ts != 60 {
		t.Fatalf("sealed ts = %d, want 60", ts)
	}
	if len(maps.Tallies) != 0 {
		t.Errorf("late arrival should not land in the sealed interval 60, got %+v", maps.Tallies)
	}
}

func TestWorkerBarrierStarvationPromotesNext(t *testing.T) {
	w := newTestWorker(2)
	w.handleEOI(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	// worker 1 never reports 60 at all and jumps straight to 120: curr (60)
	// must be abandoned and next (120) promoted once its own barrier closes.
	w.handleEOI(ingress.EOI{WorkerID: 0, IntervalTS: 120})
	w.handleEOI(ingress.EOI{WorkerID: 1, IntervalTS: 120})

	maps, ts, ok := w.TakeResult()
	if !ok {
		t.Fatal("expected interval 120 to seal after 60 was abandoned")
	}
	if ts != 120 {
		t.Errorf("sealed ts = %d, want 120 (60 must be skipped, not sealed)", ts)
	}
	_ = maps
}

func TestWorkerHaltWithNoOutstandingIntervalStopsImmediately(t *testing.T) {
	w := newTestWorker(1)
	w.handleHalt(0)
	if !w.Stopped() {
		t.Error("worker should stop immediately when halted with no outstanding interval")
	}
}

func TestWorkerHaltAbandonsOutstandingInterval(t *testing.T) {
	w := newTestWorker(2)
	w.handleEOI(ingress.EOI{WorkerID: 0, IntervalTS: 60})
	w.handleHalt(0)
	w.handleHalt(1)
	if !w.Stopped() {
		t.Error("worker should stop once every producer has halted")
	}
	if _, _, ok := w.TakeResult(); ok {
		t.Error("an interval abandoned on halt must never seal")
	}
}
