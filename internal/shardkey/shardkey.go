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

// Package shardkey assigns a 32-bit IPv4 address to one of N shards. The
// assignment must be a pure function of the address alone so that the same
// address always lands on the same shard for both the source and
// destination leg, across every capture worker.
package shardkey

import (
	"strconv"

	"github.com/dgryski/go-rendezvous"
)

// Router maps an address to a shard index in [0, N).
type Router interface {
	Shard(ip uint32) int
	N() int
}

// PrefixMod is the reference router: shard = (ip >> 24) mod N. Acceptable
// because capture-side RSS has already broken any correlation between the
// suffix byte and flow direction.
type PrefixMod struct {
	n int
}

// NewPrefixMod builds a PrefixMod router over n shards (1 <= n <= 32).
func NewPrefixMod(n int) *PrefixMod { return &PrefixMod{n: n} }

func (p *PrefixMod) Shard(ip uint32) int { return int(ip>>24) % p.n }
func (p *PrefixMod) N() int              { return p.n }

// Rendezvous is an alternative router built on highest-random-weight
// (rendezvous) hashing. Unlike PrefixMod, adding or removing a shard only
// remaps the addresses that hashed to the changed shard, instead of
// reshuffling the whole address space — useful for operators who need to
// resize the shard count of a running telescope without losing the
// affinity of most addresses. It trades that flexibility for a marginally
// more expensive lookup.
type Rendezvous struct {
	n    int
	rdv  *rendezvous.Rendezvous
	byID map[string]int
}

// NewRendezvous builds a Rendezvous router over n shards.
func NewRendezvous(n int) *Rendezvous {
	nodes := make([]string, n)
	byID := make(map[string]int, n)
	for i := 0; i < n; i++ {
		name := strconv.Itoa(i)
		nodes[i] = name
		byID[name] = i
	}
	return &Rendezvous{
		n:    n,
		rdv:  rendezvous.New(nodes, hashNodeKey),
		byID: byID,
	}
}

func (r *Rendezvous) Shard(ip uint32) int {
	node := r.rdv.Lookup(ipKey(ip))
	return r.byID[node]
}

func (r *Rendezvous) N() int { return r.n }

// ipKey renders the address as an unpadded decimal string; rendezvous
// hashing only needs a stable string key, not a parseable one.
func ipKey(ip uint32) string {
	buf := make([]byte, 0, 10)
	buf = strconv.AppendUint(buf, uint64(ip), 10)
	return string(buf)
}

// hashNodeKey hashes one string (a lookup key or a node name) to 64 bits.
// go-rendezvous calls it for each separately and combines the two hashes
// itself to rank candidates.
func hashNodeKey(s string) uint64 {
	// FNV-1a 64; avoids pulling in a second hashing dependency purely for
	// this seam.
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
