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

// Package shard implements the tally worker: one goroutine per shard,
// owning that shard's slice of the IPv4 address space for the life of the
// process. It applies update batches, tracks the end-of-interval barrier
// across capture workers, seals intervals in strictly increasing order, and
// hands sealed results to the merge collector under a mutex.
package shard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telescope/internal/ingress"
	"telescope/internal/metric"
	"telescope/internal/policy"
	"telescope/internal/tally"
)

type haltPhase int

const (
	phaseRunning haltPhase = iota
	phaseDraining
	phaseStopped
)

func (p haltPhase) String() string {
	switch p {
	case phaseRunning:
		return "running"
	case phaseDraining:
		return "draining"
	case phaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// barrierEntry tracks, for one open interval, which capture workers have
// delivered their end-of-interval message.
type barrierEntry struct {
	ts       int64
	reported map[int]struct{}
}

func newBarrierEntry(ts int64) *barrierEntry {
	return &barrierEntry{ts: ts, reported: make(map[int]struct{})}
}

// Config configures a Worker at construction. NumWorkers must equal the
// number of capture workers feeding this shard's queue.
type Config struct {
	NumWorkers    int
	Logger        zerolog.Logger
	Metrics       Metrics
	SrcIPCounting policy.IPCounting
	DstIPCounting policy.IPCounting
}

// Worker owns one shard's IP address partition. It is not safe for
// concurrent use except via the exported result-handoff methods, which are
// the only surface the merge collector touches from another goroutine.
type Worker struct {
	id            int
	queue         *ingress.Queue
	numWorkers    int
	log           zerolog.Logger
	metrics       Metrics
	srcIPCounting policy.IPCounting
	dstIPCounting policy.IPCounting

	currMaps, nextMaps *tally.IntervalMaps
	outstandingCurr    *barrierEntry
	outstandingNext    *barrierEntry
	lastSealed         int64

	loss            *ingress.LossTracker
	haltedProducers map[int]struct{}
	halt            haltPhase

	resultMu sync.Mutex
	result   *sealedResult
	freeMaps []*tally.IntervalMaps
}

type sealedResult struct {
	ts       int64
	maps     *tally.IntervalMaps
	consumed bool
}

// New constructs a Worker reading from queue. id identifies the shard.
func New(id int, queue *ingress.Queue, cfg Config) *Worker {
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	return &Worker{
		id:              id,
		queue:           queue,
		numWorkers:      cfg.NumWorkers,
		log:             cfg.Logger,
		metrics:         cfg.Metrics,
		srcIPCounting:   cfg.SrcIPCounting,
		dstIPCounting:   cfg.DstIPCounting,
		currMaps:        tally.NewIntervalMaps(),
		nextMaps:        tally.NewIntervalMaps(),
		lastSealed:      -1,
		loss:            ingress.NewLossTracker(),
		haltedProducers: make(map[int]struct{}),
	}
}

// ID returns the shard index this worker owns.
func (w *Worker) ID() int { return w.id }

// LastSealed returns the most recently sealed interval's start timestamp,
// or -1 if no interval has sealed yet. Guarded by resultMu: lastSealed is
// written by the worker goroutine and read from the status/health path.
func (w *Worker) LastSealed() int64 {
	w.resultMu.Lock()
	defer w.resultMu.Unlock()
	return w.lastSealed
}

// HaltPhase reports the worker's current lifecycle phase. Guarded by
// resultMu for the same cross-goroutine reason as LastSealed.
func (w *Worker) HaltPhase() string {
	w.resultMu.Lock()
	defer w.resultMu.Unlock()
	return w.halt.String()
}

// Run is the worker's main loop: it polls the ingress queue with a short
// timeout so a halt transition is never stuck behind a quiet queue, until
// the worker reaches the stopped phase or ctx is cancelled. If ready is
// non-nil, Run signals it once before entering the loop so a caller can
// wait for every shard to be admitting updates before releasing traffic.
func (w *Worker) Run(ctx context.Context, ready chan<- struct{}) {
	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}
	for {
		if w.halt == phaseStopped {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, ok := w.queue.Recv(10 * time.Millisecond)
		if !ok {
			continue
		}
		switch m := msg.(type) {
		case ingress.UpdateBatch:
			w.handleUpdate(m)
		case ingress.EOI:
			w.handleEOI(m)
		case ingress.Halt:
			w.handleHalt(m.WorkerID)
		}
	}
}

func (w *Worker) handleUpdate(b ingress.UpdateBatch) {
	if w.halt == phaseStopped {
		return
	}
	if lost := w.loss.Observe(b.WorkerID, b.Seq); lost > 0 {
		w.metrics.AddLoss(w.id, b.WorkerID, lost)
		w.log.Warn().Int("shard", w.id).Int("producer", b.WorkerID).Uint64("lost", lost).Msg("ingress sequence gap")
	}
	for _, e := range b.Entries {
		w.applyEntry(b.WorkerID, e)
	}
}

func (w *Worker) applyEntry(producer int, e ingress.Entry) {
	if len(e.Tags) == 0 || e.Tags[0].ID.Class() != metric.COMBINED {
		w.metrics.IncMalformed(w.id)
		w.log.Warn().Int("shard", w.id).Int("producer", producer).Msg("malformed tag list dropped")
		return
	}
	maps := w.mapsFor(producer)
	counting := w.dstIPCounting
	if e.IsSrc {
		counting = w.srcIPCounting
	}
	key, count := counting.Key(e.IP)
	for _, tag := range e.Tags {
		w.accrue(maps, e, key, count, tag.ID)
		for _, assoc := range tag.Associated {
			w.accrue(maps, e, key, count, assoc)
		}
	}
}

func (w *Worker) accrue(maps *tally.IntervalMaps, e ingress.Entry, key uint32, count bool, id metric.ID) {
	maps.AddPacket(id, e.IsSrc, e.BytesOrZero, e.SrcASN)
	if count {
		maps.MarkUnique(key, e.IsSrc, id)
	}
}

// mapsFor picks curr or next depending on whether producer has already
// delivered end-of-interval for the head outstanding interval.
func (w *Worker) mapsFor(producer int) *tally.IntervalMaps {
	if w.outstandingCurr == nil {
		return w.currMaps
	}
	if _, done := w.outstandingCurr.reported[producer]; done {
		return w.nextMaps
	}
	return w.currMaps
}

func (w *Worker) handleEOI(e ingress.EOI) {
	if w.halt == phaseStopped {
		return
	}
	if e.IntervalTS <= w.lastSealed {
		w.log.Debug().Int("shard", w.id).Int64("interval", e.IntervalTS).Msg("end-of-interval for an already sealed interval ignored")
		return
	}
	if w.outstandingCurr == nil {
		w.outstandingCurr = newBarrierEntry(e.IntervalTS)
	}
	switch {
	case e.IntervalTS == w.outstandingCurr.ts:
		w.outstandingCurr.reported[e.WorkerID] = struct{}{}
	case e.IntervalTS < w.outstandingCurr.ts:
		w.log.Debug().Int("shard", w.id).Int64("interval", e.IntervalTS).Msg("stale end-of-interval ignored")
	default:
		if w.outstandingNext == nil {
			w.outstandingNext = newBarrierEntry(e.IntervalTS)
		}
		if e.IntervalTS == w.outstandingNext.ts {
			w.outstandingNext.reported[e.WorkerID] = struct{}{}
		} else {
			w.metrics.IncUnknownInterval(w.id)
			w.log.Warn().Int("shard", w.id).Int64("interval", e.IntervalTS).Msg("end-of-interval names an interval beyond next, policy-dropped")
		}
	}
	w.maybeSeal()
	if w.halt == phaseDraining && w.outstandingCurr == nil && w.outstandingNext == nil {
		w.setHalt(phaseStopped)
	}
}

func (w *Worker) maybeSeal() {
	for {
		if w.outstandingCurr != nil && len(w.outstandingCurr.reported) >= w.numWorkers {
			w.sealCurr()
			continue
		}
		if w.outstandingNext != nil && len(w.outstandingNext.reported) >= w.numWorkers {
			w.dropCurrAndPromoteNext()
			continue
		}
		break
	}
}

func (w *Worker) sealCurr() {
	ts := w.outstandingCurr.ts
	w.publishResult(ts, w.currMaps)
	w.currMaps = w.nextMaps
	w.nextMaps = w.allocMaps()
	w.setLastSealed(ts)
	w.outstandingCurr = w.outstandingNext
	w.outstandingNext = nil
}

// dropCurrAndPromoteNext handles barrier starvation: the next interval
// completed its barrier while curr never did. curr is abandoned (never
// emitted) and next is promoted to curr so sealing can proceed normally.
func (w *Worker) dropCurrAndPromoteNext() {
	w.metrics.IncBarrierSkipped(w.id)
	w.log.Warn().Int("shard", w.id).Int64("interval", w.outstandingCurr.ts).Msg("interval abandoned: barrier never completed")
	spare := w.currMaps
	spare.Reset()
	w.currMaps = w.nextMaps
	w.nextMaps = spare
	w.outstandingCurr = w.outstandingNext
	w.outstandingNext = nil
}

func (w *Worker) handleHalt(producer int) {
	w.haltedProducers[producer] = struct{}{}
	if len(w.haltedProducers) < w.numWorkers {
		return
	}
	w.beginHalt()
}

// beginHalt runs once every capture worker has signalled halt, meaning no
// further message will ever arrive on this queue. Any interval still
// outstanding at that point can never complete its barrier, so draining is
// not feasible and the remaining intervals are abandoned.
func (w *Worker) beginHalt() {
	if w.outstandingCurr == nil && w.outstandingNext == nil {
		w.setHalt(phaseStopped)
		return
	}
	w.setHalt(phaseDraining)
	for _, b := range []*barrierEntry{w.outstandingCurr, w.outstandingNext} {
		if b != nil {
			w.metrics.IncBarrierSkipped(w.id)
			w.log.Warn().Int("shard", w.id).Int64("interval", b.ts).Msg("interval abandoned on halt")
		}
	}
	w.outstandingCurr = nil
	w.outstandingNext = nil
	w.setHalt(phaseStopped)
}

func (w *Worker) allocMaps() *tally.IntervalMaps {
	w.resultMu.Lock()
	defer w.resultMu.Unlock()
	if n := len(w.freeMaps); n > 0 {
		m := w.freeMaps[n-1]
		w.freeMaps = w.freeMaps[:n-1]
		return m
	}
	return tally.NewIntervalMaps()
}

func (w *Worker) publishResult(ts int64, maps *tally.IntervalMaps) {
	w.resultMu.Lock()
	defer w.resultMu.Unlock()
	if w.result != nil && !w.result.consumed {
		w.metrics.IncStaleOverwritten(w.id)
		w.log.Warn().Int("shard", w.id).Int64("interval", w.result.ts).Msg("stale result overwritten by next seal")
	}
	w.result = &sealedResult{ts: ts, maps: maps}
}

// TakeResult returns the sealed maps for the most recently sealed interval
// if they have not already been consumed. The caller must call
// ReleaseResult once it has finished reading maps.
func (w *Worker) TakeResult() (maps *tally.IntervalMaps, ts int64, ok bool) {
	w.resultMu.Lock()
	defer w.resultMu.Unlock()
	if w.result == nil || w.result.consumed {
		return nil, 0, false
	}
	return w.result.maps, w.result.ts, true
}

// ReleaseResult marks the current result consumed and returns its maps to
// the worker's free list so the next seal can reuse the allocation.
func (w *Worker) ReleaseResult() {
	w.resultMu.Lock()
	defer w.resultMu.Unlock()
	if w.result == nil || w.result.consumed {
		return
	}
	w.result.consumed = true
	w.result.maps.Reset()
	w.freeMaps = append(w.freeMaps, w.result.maps)
}

// Stopped reports whether the worker has fully halted. Guarded by resultMu
// for the same cross-goroutine reason as LastSealed.
func (w *Worker) Stopped() bool {
	w.resultMu.Lock()
	defer w.resultMu.Unlock()
	return w.halt == phaseStopped
}

// setHalt transitions the lifecycle phase under resultMu, so it is safe to
// observe from LastSealed/HaltPhase/Stopped while the worker goroutine is
// still running.
func (w *Worker) setHalt(phase haltPhase) {
	w.resultMu.Lock()
	w.halt = phase
	w.resultMu.Unlock()
}

// setLastSealed records the most recently sealed interval under resultMu,
// for the same reason as setHalt.
func (w *Worker) setLastSealed(ts int64) {
	w.resultMu.Lock()
	w.lastSealed = ts
	w.resultMu.Unlock()
}
