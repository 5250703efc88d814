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

import (
	"bytes"
	"testing"

	"github.com/smf-gw/smf/scramble"
)

func frameBytes(cmd Command, seq uint8, body []byte) []byte {
	h := Header{Command: cmd, Sequence: seq, Length: uint32(HeaderSize + len(body))}
	hb := encodeHeader(h)

	var escaped []byte
	for _, b := range body {
		if b == escape {
			escaped = append(escaped, escape, escape)
		} else {
			escaped = append(escaped, b)
		}
	}

	out := []byte{escape, escape, escape, escape}
	out = append(out, hb[:]...)
	out = append(out, escaped...)
	return out
}

func TestRoundTripEveryBodyCommand(t *testing.T) {
	ser := NewSerializer(scramble.DefaultKey)
	par := NewParser(scramble.DefaultKey)

	cases := []struct {
		name string
		wire []byte
		want interface{}
	}{
		{"login.public.req", ser.WriteLoginPublicReq(1, "user", "pwd"), LoginPublicReq{"user", "pwd"}},
		{"open.push.channel.req", ser.WriteOpenPushChannelReq(2, OpenPushChannelReq{
			Target: "t1", Account: "acc", Number: "1", Version: "v1", DeviceID: "dev", Timeout: 30,
		}), OpenPushChannelReq{Target: "t1", Account: "acc", Number: "1", Version: "v1", DeviceID: "dev", Timeout: 30}},
		{"close.push.channel.req", ser.WriteClosePushChannelReq(3, 0xAABBCCDD), ClosePushChannelReq{Channel: 0xAABBCCDD}},
		{"push.data.transfer.req", ser.WritePushDataTransferReq(4, PushDataTransferReq{
			Channel: 1, Source: 2, Status: 0, Block: 0, Data: []byte{0x1B, 0x01, 0x1B, 0x1B},
		}), PushDataTransferReq{Channel: 1, Source: 2, Status: 0, Block: 0, Data: []byte{0x1B, 0x01, 0x1B, 0x1B}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			frames, events, err := par.Feed(c.wire)
			if err != nil {
				t.Fatalf("Feed: %v", err)
			}
			if len(events) != 0 {
				t.Fatalf("unexpected control events: %v", events)
			}
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			got := frames[0].Body
			if pd, ok := got.(PushDataTransferReq); ok {
				want := c.want.(PushDataTransferReq)
				if pd.Channel != want.Channel || pd.Source != want.Source || !bytes.Equal(pd.Data, want.Data) {
					t.Fatalf("got %+v, want %+v", pd, want)
				}
				return
			}
			if got != c.want {
				t.Fatalf("got %+v, want %+v", got, c.want)
			}
		})
	}
}

// TestLoginExemptFromLeadingEscape checks the legacy carve-out: login
// frames carry no escape marker on the wire and still parse.
func TestLoginExemptFromLeadingEscape(t *testing.T) {
	ser := NewSerializer(scramble.DefaultKey)
	wire := ser.WriteLoginPublicReq(1, "user", "pwd")
	if wire[0] == escape {
		t.Fatal("login frames must not carry the leading escape marker")
	}

	par := NewParser(scramble.DefaultKey)
	frames, _, err := par.Feed(wire)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if got, ok := frames[0].Body.(LoginPublicReq); !ok || got.Name != "user" || got.Pwd != "pwd" {
		t.Fatalf("got %+v", frames[0].Body)
	}
}

// TestLoginScrambledScenario exercises a scrambled login round-trip.
func TestLoginScrambledScenario(t *testing.T) {
	var key scramble.Key
	for i := range key {
		key[i] = byte(0xA0 + i)
	}

	body := []byte("user\x00pwd\x00")
	body = append(body, key[:]...)

	wire := frameBytes(CtrlReqLoginScrambled, 1, body)

	par := NewParser(scramble.DefaultKey)
	frames, _, err := par.Feed(wire)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	login, ok := frames[0].Body.(LoginScrambledReq)
	if !ok {
		t.Fatalf("got %T, want LoginScrambledReq", frames[0].Body)
	}
	if login.Name != "user" || login.Pwd != "pwd" || login.Key != key {
		t.Fatalf("got %+v", login)
	}

	// Now feed a watchdog request encoded under K.
	wdSer := NewSerializer(key)
	wdWire := wdSer.WriteZeroBody(CtrlReqWatchdog, 2)

	frames, _, err = par.Feed(wdWire)
	if err != nil {
		t.Fatalf("Feed watchdog: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames for watchdog, want 1", len(frames))
	}
	if frames[0].Header.Command != CtrlReqWatchdog {
		t.Fatalf("got command %v, want watchdog", frames[0].Header.Command)
	}
	if frames[0].Header.Sequence != 2 {
		t.Fatalf("got seq %d, want 2", frames[0].Header.Sequence)
	}
}

func TestUnknownCommandResyncs(t *testing.T) {
	par := NewParser(scramble.DefaultKey)

	unknownWire := frameBytes(Command(0x1234), 1, nil)
	ser := NewSerializer(scramble.DefaultKey)
	goodWire := ser.WriteZeroBody(CtrlReqWatchdog, 5)

	frames, _, err := par.Feed(append(unknownWire, goodWire...))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if _, ok := frames[0].Body.(UnknownCmd); !ok {
		t.Fatalf("first frame got %T, want UnknownCmd", frames[0].Body)
	}
	if frames[1].Header.Command != CtrlReqWatchdog {
		t.Fatalf("second frame got %v, want watchdog", frames[1].Header.Command)
	}
}

func TestEscapeDoublingCount(t *testing.T) {
	ser := NewSerializer(scramble.DefaultKey)
	data := []byte{0x1B, 0x02, 0x1B, 0x1B, 0x03}
	wire := ser.WritePushDataTransferReq(1, PushDataTransferReq{Channel: 1, Source: 1, Data: data})

	// Count escape bytes appearing in the encoded wire frame body/header
	// region versus twice the count in the logical body.
	want := 0
	for _, b := range data {
		if b == escape {
			want++
		}
	}

	par := NewParser(scramble.DefaultKey)
	frames, _, err := par.Feed(wire)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	got := frames[0].Body.(PushDataTransferReq)
	gotEsc := 0
	for _, b := range got.Data {
		if b == escape {
			gotEsc++
		}
	}
	if gotEsc != want {
		t.Fatalf("got %d escapes decoded, want %d", gotEsc, want)
	}
	if !bytes.Equal(got.Data, data) {
		t.Fatalf("got %v, want %v", got.Data, data)
	}
}

func TestSequenceRolloverSkipsZero(t *testing.T) {
	s := NewSerializer(scramble.DefaultKey)
	s.lastSeq = 255
	if got := s.NextSequence(); got != 1 {
		t.Fatalf("got %d, want 1 (rollover skips 0)", got)
	}
}
