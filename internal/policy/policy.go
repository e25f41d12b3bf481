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

// Package policy holds the metric policy: which classes are enabled, port
// whitelists, geo mode, IP-counting method, and the ASN×geo whitelist. It is
// configured once at start and immutable thereafter — there are no setters,
// only a constructor that fills exported fields.
package policy

import "telescope/internal/metric"

// GeoMode selects whether region/polygon classes are reported.
type GeoMode uint8

const (
	GeoFull GeoMode = iota
	GeoLite
)

// IPCountingMethod selects how unique-IP counting is performed for one leg
// (source or destination).
type IPCountingMethod uint8

const (
	CountAll IPCountingMethod = iota
	CountSample
	CountPrefixAgg
)

// IPCounting bundles a counting method with its prefix width, independently
// configurable per source/destination leg.
type IPCounting struct {
	Method     IPCountingMethod
	SubnetMask uint8 // k in [1,32]; meaningful for Sample/PrefixAgg
}

// PortSet is a 65,536-bit allow-set over port numbers. The zero value means
// "report all" (unset allows every port).
type PortSet struct {
	words [1024]uint64 // 1024*64 = 65536 bits
	any   bool         // true once at least one bit has been explicitly set
}

// Allow marks the inclusive range [lo,hi] as allowed.
func (p *PortSet) Allow(lo, hi uint16) {
	for v := int(lo); v <= int(hi); v++ {
		p.words[v/64] |= 1 << uint(v%64)
		p.any = true
	}
}

// Contains reports whether port is allowed. An all-zero PortSet allows
// every port, matching "unset = report all".
func (p *PortSet) Contains(port uint16) bool {
	if !p.any {
		return true
	}
	return p.words[port/64]&(1<<uint(port%64)) != 0
}

// PortRange is one inclusive [Lo,Hi] range from a config file or flag,
// before it is folded into a PortSet.
type PortRange struct {
	Lo, Hi uint16
}

// BuildPortSet folds a list of ranges into one PortSet. An empty list
// leaves the zero-value "allow all" behavior in place.
func BuildPortSet(ranges []PortRange) PortSet {
	var s PortSet
	for _, r := range ranges {
		s.Allow(r.Lo, r.Hi)
	}
	return s
}

// ASNCoupletKey identifies a (region, asn) pair for whitelist lookups.
type ASNCoupletKey struct {
	Region uint32
	ASN    uint32
}

// Policy is the complete, immutable metric policy in effect for a run.
type Policy struct {
	// EnabledClasses maps a metric.Class to whether it is active. COMBINED
	// is forced true by New regardless of input.
	EnabledClasses map[metric.Class]bool

	TCPSrcPorts PortSet
	TCPDstPorts PortSet
	UDPSrcPorts PortSet
	UDPDstPorts PortSet

	GeoMode GeoMode

	SrcIPCounting IPCounting
	DstIPCounting IPCounting

	// ASNWhitelist, if non-nil, restricts hierarchical (region,asn) metrics
	// to couplets present in the set. A nil map means no whitelist: every
	// couplet is accrued.
	ASNWhitelist map[ASNCoupletKey]bool

	OutputRowLabel    string
	QueryTaggerLabels bool
}

// New builds a Policy with COMBINED always enabled.
func New(enabled map[metric.Class]bool) *Policy {
	if enabled == nil {
		enabled = make(map[metric.Class]bool)
	}
	enabled[metric.COMBINED] = true
	return &Policy{EnabledClasses: enabled}
}

// Enabled reports whether a class is active, honoring GeoMode's lite
// restriction on region/polygon classes.
func (p *Policy) Enabled(c metric.Class) bool {
	if !p.EnabledClasses[c] {
		return false
	}
	if p.GeoMode == GeoLite && c.IsRegionLike() {
		return false
	}
	return true
}

// CoupletAllowed reports whether a hierarchical (region, asn) pair may be
// accrued, per the ASNWhitelist knob.
func (p *Policy) CoupletAllowed(region, asn uint32) bool {
	if p.ASNWhitelist == nil {
		return true
	}
	return p.ASNWhitelist[ASNCoupletKey{Region: region, ASN: asn}]
}
