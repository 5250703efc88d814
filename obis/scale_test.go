// Copyright (C) 2017 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package obis

import "testing"

func TestScaleValue(t *testing.T) {
	tests := []struct {
		raw    int64
		scaler int8
		want   string
	}{
		{14521, -1, "1452.1"},
		{-138, -1, "-13.8"},
		{0, -1, "0.0"},
		{100, -2, "1"},
		{1, 2, "100"},
		{100, 2, "10000"},
		{0, 0, "0"},
		{50, -3, "0.05"},
	}
	for _, tt := range tests {
		got := ScaleValue(tt.raw, tt.scaler)
		if got != tt.want {
			t.Errorf("ScaleValue(%d, %d) = %q, want %q", tt.raw, tt.scaler, got, tt.want)
		}
	}
}

func TestScaleRoundTrip(t *testing.T) {
	cases := []struct {
		raw    int64
		scaler int8
	}{
		{14521, -1}, {-138, -1}, {0, -1}, {100, -2}, {1, 2}, {100, 2},
		{9007199254740992, 0}, {-9007199254740992, -3}, {7, -9}, {3, 9},
	}
	for _, c := range cases {
		s := ScaleValue(c.raw, c.scaler)
		got, err := ScaleReverse(s, c.scaler)
		if err != nil {
			t.Fatalf("ScaleReverse(%q, %d) error: %v", s, c.scaler, err)
		}
		if got != c.raw {
			t.Errorf("round trip raw=%d scaler=%d: ScaleValue -> %q -> ScaleReverse -> %d", c.raw, c.scaler, s, got)
		}
	}
}

func TestCodePrefixAndIndex(t *testing.T) {
	a := NewCode(1, 0, 1, 8, 0, 255)
	b := NewCode(1, 0, 1, 8, 1, 1)
	if !a.Prefix(b, 4) {
		t.Fatalf("expected a to share a 4-byte prefix with b")
	}
	if a.Prefix(b, 5) {
		t.Fatalf("expected a and b to diverge by byte E")
	}
	if a.Index() != 0 {
		t.Errorf("Index() with F=0xFF should fall back to E, got %d", a.Index())
	}
	if b.Index() != 1 {
		t.Errorf("Index() with F=1 should return F, got %d", b.Index())
	}
}
