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

package sml

import (
	"bytes"
	"testing"
)

func TestOctetStringRoundTripAllLengths(t *testing.T) {
	// Exercises the single-byte header boundary (length 0-15) and the
	// multi-byte continuation path (length 16+) on both sides.
	for n := 0; n <= 40; n++ {
		data := bytes.Repeat([]byte{0x42}, n)
		wire := encodeOctetString(data)

		v, err := decodeTLV(wire)
		if err != nil {
			t.Fatalf("n=%d: decodeTLV: %v", n, err)
		}
		if n == 0 {
			if !v.Null {
				t.Fatalf("n=0: expected Null octet string")
			}
			continue
		}
		if !bytes.Equal(v.Data, data) {
			t.Fatalf("n=%d: got %v, want %v", n, v.Data, data)
		}
	}
}

func TestListRoundTrip(t *testing.T) {
	elems := [][]byte{
		encodeU8(1),
		encodeOctetString([]byte("hello")),
		encodeU32(0xDEADBEEF),
	}
	wire := encodeList(elems)

	v, err := decodeTLV(wire)
	if err != nil {
		t.Fatalf("decodeTLV: %v", err)
	}
	if v.Tag != TagList || len(v.Elements) != 3 {
		t.Fatalf("got %+v", v)
	}
	if string(v.Elements[1].Data) != "hello" {
		t.Fatalf("got %q", v.Elements[1].Data)
	}
}
