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

package metric

import "testing"

func TestPackUnpack(t *testing.T) {
	cases := []struct {
		class Class
		value uint32
	}{
		{TCPDstPort, 443},
		{UDPSrcPort, 53},
		{COMBINED, 0},
		{IPInfoCountryPrefixASN, 65000},
	}
	for _, c := range cases {
		id := Pack(c.class, c.value)
		if got := id.Class(); got != c.class {
			t.Errorf("Pack(%v,%d).Class() = %v, want %v", c.class, c.value, got, c.class)
		}
		if got := id.Value(); got != c.value {
			t.Errorf("Pack(%v,%d).Value() = %d, want %d", c.class, c.value, got, c.value)
		}
	}
}

func TestPackCountryRoundTrip(t *testing.T) {
	v := PackCountry('U', 'S')
	a, b := UnpackCountry(v)
	if a != 'U' || b != 'S' {
		t.Errorf("UnpackCountry(PackCountry('U','S')) = (%c,%c), want (U,S)", a, b)
	}
}

func TestPackICMP(t *testing.T) {
	v := PackICMP(8, 0)
	if v != 8<<8 {
		t.Errorf("PackICMP(8,0) = %d, want %d", v, 8<<8)
	}
}

func TestClassIsGeo(t *testing.T) {
	if !MaxmindCountry.IsGeo() {
		t.Error("MaxmindCountry.IsGeo() = false, want true")
	}
	if COMBINED.IsGeo() {
		t.Error("COMBINED.IsGeo() = true, want false")
	}
}

func TestClassIsRegionLike(t *testing.T) {
	if !NetAcqRegion.IsRegionLike() {
		t.Error("NetAcqRegion.IsRegionLike() = false, want true")
	}
	if !NetAcqPolygon.IsRegionLike() {
		t.Error("NetAcqPolygon.IsRegionLike() = false, want true")
	}
	if MaxmindCountry.IsRegionLike() {
		t.Error("MaxmindCountry.IsRegionLike() = true, want false")
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		id   ID
		want string
	}{
		{Combined, "all"},
		{Pack(MaxmindCountry, PackCountry('D', 'E')), "DE"},
		{Pack(TCPDstPort, 22), "22"},
		{Pack(ICMPTypeCode, PackICMP(8, 0)), "8/0"},
	}
	for _, c := range cases {
		if got := FormatValue(c.id); got != c.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", c.id, got, c.want)
		}
	}
}
