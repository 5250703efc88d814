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

// Package obis implements the Object Identification System registry: the
// six-byte (A,B,C,D,E,F) identifier used throughout the metering stack,
// the curated dictionary of well-known codes, profile grid math, and the
// decimal-string scaling routines that convert a raw integer + scaler into
// the logical reading value without ever touching floating point.
package obis

import "fmt"

// Code is a 6-byte OBIS identifier (A, B, C, D, E, F).
type Code [6]byte

// NewCode builds a Code from its six positions.
func NewCode(a, b, c, d, e, f byte) Code {
	return Code{a, b, c, d, e, f}
}

// String renders the code in the conventional "A-B:C.D.E*F" notation.
func (c Code) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d*%d", c[0], c[1], c[2], c[3], c[4], c[5])
}

// Parse is the inverse of String: it reads the "A-B:C.D.E*F" notation
// back into a Code.
func Parse(s string) (Code, error) {
	var a, b, c, d, e, f byte
	if _, err := fmt.Sscanf(s, "%d-%d:%d.%d.%d*%d", &a, &b, &c, &d, &e, &f); err != nil {
		return Code{}, fmt.Errorf("obis: malformed code %q: %w", s, err)
	}
	return Code{a, b, c, d, e, f}, nil
}

// Less gives Code a total order, compared byte by byte from A to F.
func (c Code) Less(other Code) bool {
	for i := range c {
		if c[i] != other[i] {
			return c[i] < other[i]
		}
	}
	return false
}

// Prefix reports whether the first n bytes of c match other's first n bytes.
func (c Code) Prefix(other Code, n int) bool {
	if n > len(c) {
		n = len(c)
	}
	for i := 0; i < n; i++ {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Index returns the "index" byte: storage position F for
// most channels, but E for the handful of codes (fixed by convention as
// those with F == 255, the "any" wildcard) that store their selector in E.
func (c Code) Index() byte {
	if c[5] == 0xFF {
		return c[4]
	}
	return c[5]
}
