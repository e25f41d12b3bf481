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

// Package tally holds the per-shard, per-interval IP and metric maps a
// shard tally worker accumulates into, plus the accumulator the merge
// collector folds multiple shards' sealed maps into.
package tally

import "telescope/internal/metric"

// roleSeen bits record whether an (ip, metric) pair has already been
// counted as a source or destination sighting this interval.
const (
	roleSrc uint8 = 1 << 0
	roleDst uint8 = 1 << 1
)

// Tally is the per-metric aggregate for one interval: packets, bytes,
// unique source/destination IP counts, and the set of distinct source
// ASNs seen for geo-class metrics.
type Tally struct {
	Packets     uint64
	Bytes       uint64
	UniqSrcIPs  uint64
	UniqDstIPs  uint64
	UniqSrcASNs map[uint32]struct{}
}

func newTally() *Tally {
	return &Tally{UniqSrcASNs: make(map[uint32]struct{})}
}

// ipEntry tracks, per IP, which (metric, role) pairs have already been
// counted this interval, so a repeat sighting never increments a unique
// counter twice.
type ipEntry struct {
	seen map[metric.ID]uint8
}

// IntervalMaps is the pair of maps a shard worker owns for one open or
// sealed interval: the IP map and the metric tally map.
type IntervalMaps struct {
	IPs     map[uint32]*ipEntry
	Tallies map[metric.ID]*Tally
}

// NewIntervalMaps returns an empty pair of maps.
func NewIntervalMaps() *IntervalMaps {
	return &IntervalMaps{
		IPs:     make(map[uint32]*ipEntry),
		Tallies: make(map[metric.ID]*Tally),
	}
}

// Reset clears both maps in place so the backing allocation can be reused
// for the next interval instead of being discarded.
func (m *IntervalMaps) Reset() {
	clear(m.IPs)
	clear(m.Tallies)
}

func (m *IntervalMaps) ipEntryFor(ip uint32) *ipEntry {
	e, ok := m.IPs[ip]
	if !ok {
		e = &ipEntry{seen: make(map[metric.ID]uint8)}
		m.IPs[ip] = e
	}
	return e
}

func (m *IntervalMaps) tallyFor(id metric.ID) *Tally {
	t, ok := m.Tallies[id]
	if !ok {
		t = newTally()
		m.Tallies[id] = t
	}
	return t
}

// AddPacket applies the packet/byte and source-ASN-set contribution of one
// (ip, metric) observation, independent of whether it is counted toward
// the unique-IP tallies — the IP-counting method decides that separately
// via MarkUnique, since sampled-out addresses still contribute bytes and
// packets. bytes must already be zeroed by the caller on the destination
// leg. If srcASN is non-zero and id's class is geo-like, it is folded into
// the metric's unique-source-ASN set.
func (m *IntervalMaps) AddPacket(id metric.ID, isSrc bool, bytes uint32, srcASN uint32) {
	t := m.tallyFor(id)
	if isSrc {
		t.Packets++
		t.Bytes += uint64(bytes)
	}
	if srcASN != 0 && id.Class().IsGeo() {
		if _, ok := t.UniqSrcASNs[srcASN]; !ok {
			t.UniqSrcASNs[srcASN] = struct{}{}
		}
	}
}

// MarkUnique bumps the unique source/destination counter for (key, id) the
// first time this role sees that pair in the interval. key is whatever the
// active IP-counting method reduced the address to (the raw address for
// ALL/SAMPLE, the /k prefix for PREFIXAGG).
func (m *IntervalMaps) MarkUnique(key uint32, isSrc bool, id metric.ID) {
	bit := roleDst
	if isSrc {
		bit = roleSrc
	}
	e := m.ipEntryFor(key)
	if e.seen[id]&bit != 0 {
		return
	}
	e.seen[id] |= bit
	t := m.tallyFor(id)
	if isSrc {
		t.UniqSrcIPs++
	} else {
		t.UniqDstIPs++
	}
}

// Accumulator sums the sealed IntervalMaps of every shard for one interval.
// Per-shard IP partitioning makes packet/byte/unique-IP counts additive;
// source-ASN sets are unioned since an ASN may recur across shards.
type Accumulator struct {
	Tallies map[metric.ID]*Tally
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{Tallies: make(map[metric.ID]*Tally)}
}

func (a *Accumulator) tallyFor(id metric.ID) *Tally {
	t, ok := a.Tallies[id]
	if !ok {
		t = newTally()
		a.Tallies[id] = t
	}
	return t
}

// AddShard folds one shard's sealed maps into the accumulator.
func (a *Accumulator) AddShard(m *IntervalMaps) {
	for id, t := range m.Tallies {
		acc := a.tallyFor(id)
		acc.Packets += t.Packets
		acc.Bytes += t.Bytes
		acc.UniqSrcIPs += t.UniqSrcIPs
		acc.UniqDstIPs += t.UniqDstIPs
		for asn := range t.UniqSrcASNs {
			acc.UniqSrcASNs[asn] = struct{}{}
		}
	}
}

// SrcASNCount returns the number of distinct source ASNs accumulated for
// the given metric across every shard folded in so far.
func (a *Accumulator) SrcASNCount(id metric.ID) uint64 {
	t, ok := a.Tallies[id]
	if !ok {
		return 0
	}
	return uint64(len(t.UniqSrcASNs))
}
