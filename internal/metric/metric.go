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

// Package metric defines the closed enumeration of traffic-report metric
// classes and the packed 64-bit metric ID composite: high 32 bits select
// the class, low 32 bits carry the class-specific value.
package metric

import "fmt"

// Class identifies a dimension of aggregation.
type Class uint32

const (
	COMBINED Class = iota + 1
	IPProtocol
	TCPSrcPort
	TCPDstPort
	UDPSrcPort
	UDPDstPort
	ICMPTypeCode
	PrefixASN
	MaxmindContinent
	MaxmindCountry
	NetAcqContinent
	NetAcqCountry
	NetAcqRegion
	NetAcqPolygon
	IPInfoContinent
	IPInfoCountry
	IPInfoRegion
	IPInfoCountryPrefixASN
	IPInfoRegionPrefixASN
	FilterCriteria
)

// names backs Class.String; kept in enum order for fast indexing.
var names = [...]string{
	"",
	"COMBINED",
	"IP_PROTOCOL",
	"TCP_SRC_PORT",
	"TCP_DST_PORT",
	"UDP_SRC_PORT",
	"UDP_DST_PORT",
	"ICMP_TYPECODE",
	"PREFIX_ASN",
	"MAXMIND_CONTINENT",
	"MAXMIND_COUNTRY",
	"NETACQ_CONTINENT",
	"NETACQ_COUNTRY",
	"NETACQ_REGION",
	"NETACQ_POLYGON",
	"IPINFO_CONTINENT",
	"IPINFO_COUNTRY",
	"IPINFO_REGION",
	"IPINFO_COUNTRY_PREFIX_ASN",
	"IPINFO_REGION_PREFIX_ASN",
	"FILTER_CRITERIA",
}

func (c Class) String() string {
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("CLASS(%d)", uint32(c))
}

// IsGeo reports whether the class resolves to a per-packet source ASN and
// therefore participates in uniq_src_asns accounting.
func (c Class) IsGeo() bool {
	switch c {
	case MaxmindContinent, MaxmindCountry, NetAcqContinent, NetAcqCountry,
		NetAcqRegion, NetAcqPolygon, IPInfoContinent, IPInfoCountry, IPInfoRegion,
		IPInfoCountryPrefixASN, IPInfoRegionPrefixASN:
		return true
	}
	return false
}

// IsRegionLike reports whether the class is disabled in geo_mode=lite.
func (c Class) IsRegionLike() bool {
	switch c {
	case NetAcqRegion, NetAcqPolygon, IPInfoRegion, IPInfoRegionPrefixASN:
		return true
	}
	return false
}

// IsHierarchical reports whether the class couples a value with an
// associated ASN, i.e. carries associated metric IDs.
func (c Class) IsHierarchical() bool {
	switch c {
	case IPInfoCountryPrefixASN, IPInfoRegionPrefixASN:
		return true
	}
	return false
}

// MaxAssociated bounds the number of coupled cells a single hierarchical
// observation may accrue to without re-tagging.
const MaxAssociated = 8

// ID is the packed 64-bit metric identity: high 32 bits class, low 32 bits
// the class-specific value.
type ID uint64

// Tag is one entry of a packet's tag_list: a metric ID plus, for
// hierarchical classes, the coupled metric IDs that accrue alongside it
// (e.g. the (region,asn) cell accrues together with the plain region
// cell).
type Tag struct {
	ID         ID
	Associated []ID // len <= MaxAssociated
}

// Pack builds a metric ID from a class and a class-specific value.
func Pack(c Class, value uint32) ID {
	return ID(uint64(c)<<32 | uint64(value))
}

// Class extracts the class half of the packed ID.
func (id ID) Class() Class { return Class(uint64(id) >> 32) }

// Value extracts the class-specific value half of the packed ID.
func (id ID) Value() uint32 { return uint32(id) }

// PackCountry packs two ASCII bytes (ISO 3166 alpha-2) into the low 16 bits
// of the value, matching the result row's wire convention for country and
// continent codes.
func PackCountry(a, b byte) uint32 {
	return uint32(a)<<8 | uint32(b)
}

// UnpackCountry reverses PackCountry.
func UnpackCountry(v uint32) (a, b byte) {
	return byte(v >> 8), byte(v)
}

// PackICMP folds an ICMP type/code pair into a single flat 16-bit value so
// the ID space remains flat.
func PackICMP(typ, code uint8) uint32 {
	return uint32(typ)<<8 | uint32(code)
}

// Combined is the single always-enabled COMBINED/all cell.
var Combined = Pack(COMBINED, 0)

// FormatValue renders the low 32 bits of an ID as human-readable
// metric value text: decimal for ports/ASN/protocol, two ASCII characters
// for ISO country/continent codes, and an opaque placeholder for
// region/polygon classes absent a label lookup.
func FormatValue(id ID) string {
	c := id.Class()
	v := id.Value()
	switch c {
	case COMBINED:
		return "all"
	case MaxmindContinent, MaxmindCountry, NetAcqContinent, NetAcqCountry,
		IPInfoContinent, IPInfoCountry:
		a, b := UnpackCountry(v)
		if a == 0 && b == 0 {
			return ""
		}
		return string([]byte{a, b})
	case ICMPTypeCode:
		return fmt.Sprintf("%d/%d", v>>8, v&0xff)
	default:
		return fmt.Sprintf("%d", v)
	}
}
