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

package scramble

import "testing"

func TestDefaultKeyIsPassthrough(t *testing.T) {
	e := New()
	in := []byte{0x01, 0x02, 0xFF, 0x00}
	out := e.Transform(append([]byte(nil), in...))
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("byte %d: got %02x, want %02x (passthrough)", i, out[i], in[i])
		}
	}
}

func TestRoundTrip(t *testing.T) {
	var key Key
	for i := range key {
		key[i] = byte(i * 7)
	}

	enc := NewWithKey(key)
	dec := NewWithKey(key)

	plain := make([]byte, 100)
	for i := range plain {
		plain[i] = byte(i)
	}

	scrambled := enc.Transform(append([]byte(nil), plain...))
	descrambled := dec.Transform(append([]byte(nil), scrambled...))

	for i := range plain {
		if descrambled[i] != plain[i] {
			t.Fatalf("byte %d: got %02x, want %02x", i, descrambled[i], plain[i])
		}
	}
}

func TestResetRewindsPosition(t *testing.T) {
	var key Key
	key[0] = 0xAA

	e := NewWithKey(key)
	first := e.Byte(0x00)
	e.Byte(0x00) // advances position into key[1] == 0
	e.Reset()
	again := e.Byte(0x00)

	if first != again {
		t.Fatalf("reset did not rewind position: %02x != %02x", first, again)
	}
}

func TestSetReplacesKeyAndResets(t *testing.T) {
	e := New()
	e.Byte(0x00)
	e.Byte(0x00)

	var key Key
	key[0] = 0x55
	e.Set(key)

	got := e.Byte(0x00)
	if got != 0x55 {
		t.Fatalf("got %02x, want %02x after Set", got, 0x55)
	}
}
