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

import (
	"telescope/internal/metric"
	"telescope/internal/tagger"
)

// Compiler turns a tag record into the tag_list the batcher attaches to an
// update entry. The policy is applied here, in the batcher, rather than in
// the shard tally worker, which only ever sees already-filtered tags.
type Compiler struct {
	Policy *Policy
}

// NewCompiler returns a Compiler bound to the given immutable policy.
func NewCompiler(p *Policy) *Compiler { return &Compiler{Policy: p} }

// Compile projects a tag record into the ordered tag_list for this packet.
// The first element is always COMBINED, which the tally worker relies on
// when sanity-checking an incoming tag list.
func (c *Compiler) Compile(r tagger.Record) []metric.Tag {
	p := c.Policy
	tags := make([]metric.Tag, 0, 8)
	tags = append(tags, metric.Tag{ID: metric.Combined})

	if p.Enabled(metric.IPProtocol) {
		tags = append(tags, metric.Tag{ID: metric.Pack(metric.IPProtocol, uint32(r.Proto))})
	}

	switch r.Proto {
	case 6: // TCP
		if p.Enabled(metric.TCPSrcPort) && p.TCPSrcPorts.Contains(r.SrcPort) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.TCPSrcPort, uint32(r.SrcPort))})
		}
		if p.Enabled(metric.TCPDstPort) && p.TCPDstPorts.Contains(r.DstPort) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.TCPDstPort, uint32(r.DstPort))})
		}
	case 17: // UDP
		if p.Enabled(metric.UDPSrcPort) && p.UDPSrcPorts.Contains(r.SrcPort) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.UDPSrcPort, uint32(r.SrcPort))})
		}
		if p.Enabled(metric.UDPDstPort) && p.UDPDstPorts.Contains(r.DstPort) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.UDPDstPort, uint32(r.DstPort))})
		}
	case 1, 58: // ICMP / ICMPv6
		if p.Enabled(metric.ICMPTypeCode) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.ICMPTypeCode, metric.PackICMP(r.ICMPType, r.ICMPCode))})
		}
	}

	if p.Enabled(metric.PrefixASN) && r.Pfx2ASASN != 0 {
		tags = append(tags, metric.Tag{ID: metric.Pack(metric.PrefixASN, r.Pfx2ASASN)})
	}

	if r.Providers&tagger.ProviderMaxmind != 0 {
		if p.Enabled(metric.MaxmindContinent) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.MaxmindContinent, r.MaxmindContinent)})
		}
		if p.Enabled(metric.MaxmindCountry) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.MaxmindCountry, r.MaxmindCountry)})
		}
	}

	if r.Providers&tagger.ProviderNetAcq != 0 {
		if p.Enabled(metric.NetAcqContinent) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.NetAcqContinent, r.NetAcqContinent)})
		}
		if p.Enabled(metric.NetAcqCountry) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.NetAcqCountry, r.NetAcqCountry)})
		}
		if p.Enabled(metric.NetAcqRegion) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.NetAcqRegion, r.NetAcqRegion)})
		}
		if p.Enabled(metric.NetAcqPolygon) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.NetAcqPolygon, r.NetAcqPolygon)})
		}
	}

	if r.Providers&tagger.ProviderIPInfo != 0 {
		if p.Enabled(metric.IPInfoContinent) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.IPInfoContinent, r.IPInfoContinent)})
		}
		if p.Enabled(metric.IPInfoCountry) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.IPInfoCountry, r.IPInfoCountry)})
			if p.Enabled(metric.IPInfoCountryPrefixASN) && r.SrcASN != 0 && p.CoupletAllowed(r.IPInfoCountry, r.SrcASN) {
				tags = append(tags, metric.Tag{
					ID:         metric.Pack(metric.IPInfoCountryPrefixASN, r.IPInfoCountry),
					Associated: []metric.ID{metric.Pack(metric.IPInfoCountryPrefixASN, r.SrcASN)},
				})
			}
		}
		if p.Enabled(metric.IPInfoRegion) {
			tags = append(tags, metric.Tag{ID: metric.Pack(metric.IPInfoRegion, r.IPInfoRegion)})
			if p.Enabled(metric.IPInfoRegionPrefixASN) && r.SrcASN != 0 && p.CoupletAllowed(r.IPInfoRegion, r.SrcASN) {
				tags = append(tags, metric.Tag{
					ID:         metric.Pack(metric.IPInfoRegionPrefixASN, r.IPInfoRegion),
					Associated: []metric.ID{metric.Pack(metric.IPInfoRegionPrefixASN, r.SrcASN)},
				})
			}
		}
	}

	if r.Providers&tagger.ProviderFilter != 0 && p.Enabled(metric.FilterCriteria) {
		for bit := uint32(0); bit < 32; bit++ {
			if r.FilterMask&(1<<bit) != 0 {
				tags = append(tags, metric.Tag{ID: metric.Pack(metric.FilterCriteria, bit)})
			}
		}
	}

	return tags
}
