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

package shardkey

import "testing"

func TestPrefixModDeterministic(t *testing.T) {
	r := NewPrefixMod(8)
	ip := uint32(0x0A010203)
	first := r.Shard(ip)
	for i := 0; i < 100; i++ {
		if got := r.Shard(ip); got != first {
			t.Fatalf("PrefixMod.Shard(%#x) = %d on call %d, want stable %d", ip, got, i, first)
		}
	}
	if first < 0 || first >= 8 {
		t.Errorf("PrefixMod.Shard() = %d, want in [0,8)", first)
	}
}

func TestPrefixModRange(t *testing.T) {
	r := NewPrefixMod(4)
	for ip := uint32(0); ip < 100000; ip += 997 {
		if s := r.Shard(ip); s < 0 || s >= 4 {
			t.Fatalf("Shard(%d) = %d, out of [0,4)", ip, s)
		}
	}
}

func TestRendezvousDeterministic(t *testing.T) {
	r := NewRendezvous(6)
	ip := uint32(0xC0A80101)
	first := r.Shard(ip)
	for i := 0; i < 100; i++ {
		if got := r.Shard(ip); got != first {
			t.Fatalf("Rendezvous.Shard(%#x) = %d on call %d, want stable %d", ip, got, i, first)
		}
	}
}

func TestRendezvousCoversAllShards(t *testing.T) {
	r := NewRendezvous(4)
	seen := make(map[int]bool)
	for ip := uint32(0); ip < 200000; ip += 31 {
		seen[r.Shard(ip)] = true
	}
	if len(seen) != 4 {
		t.Errorf("Rendezvous over 4 shards only landed on %d distinct shards across a spread of addresses", len(seen))
	}
}
