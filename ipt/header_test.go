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

package ipt

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Command: CtrlReqLoginScrambled, Sequence: 7, Reserved: 0, Length: 42}
	got := decodeHeader(encodeHeader(h))
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestBodyLen(t *testing.T) {
	h := Header{Length: HeaderSize + 5}
	if got := h.BodyLen(); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
	h.Length = 3
	if got := h.BodyLen(); got != 0 {
		t.Fatalf("got %d, want 0 for undersized length", got)
	}
}

func TestNextSequenceSkipsZero(t *testing.T) {
	if got := nextSequence(255); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	if got := nextSequence(1); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestResponseCodesClearTopBit(t *testing.T) {
	pairs := []struct{ req, res Command }{
		{CtrlReqLoginPublic, CtrlResLoginPublic},
		{CtrlReqLoginScrambled, CtrlResLoginScrambled},
		{CtrlReqLogout, CtrlResLogout},
		{CtrlReqRegisterTarget, CtrlResRegisterTarget},
		{CtrlReqDeregisterTarget, CtrlResDeregisterTarget},
		{CtrlReqWatchdog, CtrlResWatchdog},
		{AppReqProtocolVersion, AppResProtocolVersion},
		{AppReqSoftwareVersion, AppResSoftwareVersion},
	}
	for _, p := range pairs {
		if got := p.req &^ 0x8000; got != p.res {
			t.Fatalf("%v: got %04X, want %04X", p.req, got, p.res)
		}
	}
}

func TestKnownRejectsUnregisteredCode(t *testing.T) {
	if known(Command(0xDEAD)) {
		t.Fatal("0xDEAD should not be a known command")
	}
	if !known(CtrlReqLoginScrambled) {
		t.Fatal("CtrlReqLoginScrambled should be known")
	}
}
