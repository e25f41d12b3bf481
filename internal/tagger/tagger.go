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

// Package tagger describes the inbound collaborator that classifies raw
// packets before they reach the aggregation fabric. The concrete
// geolocation/ASN lookup providers are out of scope for this module — only
// the record they deliver, and the interface the core calls, live here.
package tagger

import "telescope/internal/metric"

// ProviderMask bits report which tagging providers successfully resolved
// this packet so downstream code can distinguish "unknown" from "queried,
// no match".
type ProviderMask uint16

const (
	ProviderMaxmind ProviderMask = 1 << iota
	ProviderNetAcq
	ProviderIPInfo
	ProviderPfx2AS
	ProviderFilter
)

// PacketView is the minimal read-only packet shape the batcher needs; the
// capture/decoding front-end owns the real packet buffer.
type PacketView struct {
	SrcIP   uint32
	DstIP   uint32
	Bytes   uint32
	Proto   uint8
	SrcPort uint16
	DstPort uint16
}

// Record is the fixed-layout tag record delivered per packet: no pointers
// in the hot fields, so it stays cheap to copy across the batcher/queue
// boundary.
type Record struct {
	SrcIP   uint32
	DstIP   uint32
	SrcASN  uint32 // 0 = unknown
	Bytes   uint32
	Proto   uint8
	SrcPort uint16
	DstPort uint16

	Providers ProviderMask

	MaxmindContinent uint32 // packed via metric.PackCountry
	MaxmindCountry   uint32

	NetAcqContinent uint32
	NetAcqCountry   uint32
	NetAcqRegion    uint32 // opaque region id, text via LookupLabel
	NetAcqPolygon   uint32

	IPInfoContinent uint32
	IPInfoCountry   uint32
	IPInfoRegion    uint32

	Pfx2ASASN uint32

	ICMPType uint8
	ICMPCode uint8

	FilterMask uint32
}

// Provider is the inbound collaborator: it tags raw packets and, on
// request, resolves opaque region/polygon/ASN identifiers to display text.
type Provider interface {
	Tag(pkt PacketView) (Record, error)
	// LookupLabel resolves a region/polygon/ASN id to its textual name. Only
	// called by the merge collector when querytaggerlabels is enabled.
	LookupLabel(class metric.Class, value uint32) (string, error)
}
