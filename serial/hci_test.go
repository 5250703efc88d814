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

package serial

import (
	"bytes"
	"testing"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	frame := Wrap(0x01, 0x42, payload)

	var dec HCIDecoder
	frames, err := dec.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}
	got := frames[0]
	if got.Endpoint != 0x01 || got.MsgID != 0x42 {
		t.Errorf("endpoint/msgid mismatch: %+v", got)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("payload mismatch: got %x want %x", got.Payload, payload)
	}
	if dec.Pending() {
		t.Error("decoder should be idle after a complete frame")
	}
}

func TestFeedSplitAcrossCalls(t *testing.T) {
	frame := Wrap(0x02, 0x01, []byte{0xAA, 0xBB, 0xCC})

	var dec HCIDecoder
	mid := len(frame) / 2
	frames, err := dec.Feed(frame[:mid])
	if err != nil {
		t.Fatalf("Feed first half: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no complete frame yet, got %d", len(frames))
	}
	if !dec.Pending() {
		t.Error("decoder should be mid-frame after a partial feed")
	}

	frames, err = dec.Feed(frame[mid:])
	if err != nil {
		t.Fatalf("Feed second half: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected the frame to complete, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Payload, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("payload mismatch: %x", frames[0].Payload)
	}
}

func TestFeedSkipsPreambleNoise(t *testing.T) {
	frame := Wrap(0x01, 0x10, []byte{0x01})
	noisy := append([]byte{0x00, 0xFF, 0x00}, frame...)

	var dec HCIDecoder
	frames, err := dec.Feed(noisy)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected one frame despite leading noise, got %d", len(frames))
	}
}

func TestInitBlobChecksumBytes(t *testing.T) {
	if len(InitBlob) < 2 {
		t.Fatal("InitBlob too short to carry a checksum")
	}
	if InitBlob[0] != hciControl {
		t.Errorf("InitBlob must start with the HCI control byte 0x%02X, got 0x%02X", hciControl, InitBlob[0])
	}
}

func TestFletcher16KnownVector(t *testing.T) {
	lo, hi := Fletcher16([]byte("abcde"))
	if lo != 240 || hi != 200 {
		t.Errorf("Fletcher16(\"abcde\") = (%d, %d), want (240, 200)", lo, hi)
	}
}
