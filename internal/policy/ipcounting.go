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

package policy

// Key reduces an address to the key the shard's unique-IP map should use
// and reports whether this address counts toward the unique tally at all.
// ALL counts every address under its own key. SAMPLE keeps the full
// address as the key but deterministically excludes most addresses from
// the count, at the ratio implied by SubnetMask. PREFIXAGG always counts,
// but folds every address sharing a /SubnetMask prefix into one key.
func (c IPCounting) Key(ip uint32) (key uint32, count bool) {
	switch c.Method {
	case CountPrefixAgg:
		return prefixOf(ip, c.SubnetMask), true
	case CountSample:
		return ip, sampleSelected(ip, c.SubnetMask)
	default:
		return ip, true
	}
}

// prefixOf zeroes the low (32-k) bits of ip, leaving its /k network
// prefix. k outside [1,32] leaves ip unchanged.
func prefixOf(ip uint32, k uint8) uint32 {
	if k == 0 || k >= 32 {
		return ip
	}
	shift := 32 - uint(k)
	return (ip >> shift) << shift
}

// sampleSelected deterministically keeps roughly 1 in 2^(32-k) addresses,
// using an avalanching mix of the address so selection does not correlate
// with the address's own structure (unlike taking the low bits directly).
func sampleSelected(ip uint32, k uint8) bool {
	if k == 0 || k >= 32 {
		return true
	}
	mask := uint32(1)<<(32-uint(k)) - 1
	return mixIP(ip)&mask == 0
}

func mixIP(ip uint32) uint32 {
	x := ip
	x ^= x >> 16
	x *= 0x45d9f3b
	x ^= x >> 16
	x *= 0x45d9f3b
	x ^= x >> 16
	return x
}
