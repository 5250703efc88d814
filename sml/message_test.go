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
	"math/rand"
	"testing"
)

func TestOpenCloseRoundTrip(t *testing.T) {
	gen := NewRequestGenerator(rand.New(rand.NewSource(1)), "user", "pwd")

	open := gen.Open("client-1", NewFileID(rand.New(rand.NewSource(2))), "05001000000001")
	wire, err := Encode(open)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.CRCValid {
		t.Fatal("CRC did not verify on a message we just encoded")
	}
	if got.Trx != open.Trx {
		t.Fatalf("got trx %q, want %q", got.Trx, open.Trx)
	}
	body, ok := got.Body.(OpenReq)
	if !ok {
		t.Fatalf("got body type %T, want OpenReq", got.Body)
	}
	if body.ServerID != "05001000000001" || body.Username != "user" || body.Password != "pwd" {
		t.Fatalf("got %+v", body)
	}
}

func TestGetProfileListRoundTrip(t *testing.T) {
	msg := Message{
		Trx:  "20260729-1",
		Code: CodeGetProfileListRes,
		Body: GetProfileListRes{
			ServerID:    "05001000000001",
			ActTime:     1000,
			RegPeriod:   900,
			ProfilePath: [6]byte{1, 0, 99, 1, 0, 255},
			ValTime:     1000,
			Status:      0,
			Periods: []ProfilePeriod{
				{OBIS: [6]byte{1, 0, 1, 8, 0, 255}, Unit: 30, Scaler: -1, RawValue: []byte{0x38, 0x9}},
			},
			RawData:   nil,
			Signature: nil,
		},
	}

	wire, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.CRCValid {
		t.Fatal("CRC mismatch on round trip")
	}
	res, ok := got.Body.(GetProfileListRes)
	if !ok {
		t.Fatalf("got %T, want GetProfileListRes", got.Body)
	}
	if res.ServerID != msg.Body.(GetProfileListRes).ServerID {
		t.Fatalf("got server %q", res.ServerID)
	}
	if len(res.Periods) != 1 || res.Periods[0].Unit != 30 || res.Periods[0].Scaler != -1 {
		t.Fatalf("got periods %+v", res.Periods)
	}
	if !bytes.Equal(res.Periods[0].RawValue, []byte{0x38, 0x9}) {
		t.Fatalf("got raw value %v", res.Periods[0].RawValue)
	}
}

// TestPublicOpenResponseDecode feeds a framed public.open.response with
// a known transaction id and server id and checks both fields survive
// the trip along with a verified CRC.
func TestPublicOpenResponseDecode(t *testing.T) {
	serverID := string([]byte{0x05, 0x00, 0x15, 0x3B, 0x01, 0xEC, 0x46})
	msg := Message{
		Trx:  "21042716170468656-1",
		Code: CodeOpenRes,
		Body: OpenRes{
			Codepage:   "",
			ServerID:   serverID,
			ReqFileID:  "000000000001",
			RefTime:    1619537824,
			SMLVersion: 1,
		},
	}

	wire, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.CRCValid {
		t.Fatal("appended CRC must verify")
	}
	if got.Trx != "21042716170468656-1" {
		t.Fatalf("got trx %q", got.Trx)
	}
	res, ok := got.Body.(OpenRes)
	if !ok {
		t.Fatalf("got %T, want OpenRes", got.Body)
	}
	if res.ServerID != serverID {
		t.Fatalf("got server id % X", res.ServerID)
	}
}

func TestGetListResRoundTrip(t *testing.T) {
	msg := Message{
		Trx:  "20260801-7",
		Code: CodeGetListRes,
		Body: GetListRes{
			ClientID:      "gw",
			ServerID:      "05001000000001",
			ListName:      "current-data",
			ActSensorTime: 4200,
			Entries: []ListEntry{
				{OBIS: [6]byte{1, 0, 16, 7, 0, 255}, Status: 0, ValTime: 4200, Unit: 27, Scaler: 0, RawValue: []byte{0x01, 0xA4}},
			},
			ActGatewayTime: 4201,
		},
	}

	wire, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	res, ok := got.Body.(GetListRes)
	if !ok {
		t.Fatalf("got %T, want GetListRes", got.Body)
	}
	if res.ListName != "current-data" || res.ActGatewayTime != 4201 {
		t.Fatalf("got %+v", res)
	}
	if len(res.Entries) != 1 || res.Entries[0].Unit != 27 || !bytes.Equal(res.Entries[0].RawValue, []byte{0x01, 0xA4}) {
		t.Fatalf("got entries %+v", res.Entries)
	}
}

func TestAttentionResRoundTrip(t *testing.T) {
	gen := NewRequestGenerator(rand.New(rand.NewSource(5)), "u", "p")
	msg := gen.Attention("05001000000001", [6]byte{0x81, 0x81, 0xC7, 0xC7, 0xFE, 0x00}, "unknown error")

	wire, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	res, ok := got.Body.(AttentionRes)
	if !ok {
		t.Fatalf("got %T, want AttentionRes", got.Body)
	}
	if res.AttentionNo != [6]byte{0x81, 0x81, 0xC7, 0xC7, 0xFE, 0x00} || res.Message != "unknown error" {
		t.Fatalf("got %+v", res)
	}
}

func TestCRCMismatchStillDelivers(t *testing.T) {
	gen := NewRequestGenerator(rand.New(rand.NewSource(3)), "u", "p")
	wire, err := Encode(gen.Close())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Corrupt the trailing CRC byte without touching framing.
	wire[len(wire)-1] ^= 0xFF

	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode should still succeed on CRC mismatch: %v", err)
	}
	if got.CRCValid {
		t.Fatal("expected CRC mismatch to be detected")
	}
	if _, ok := got.Body.(CloseReq); !ok {
		t.Fatalf("got %T, want CloseReq despite CRC mismatch", got.Body)
	}
}

func TestEscapeDoublingWithinBody(t *testing.T) {
	gen := NewRequestGenerator(rand.New(rand.NewSource(4)), "u\x1bser", "p")
	open := gen.Open("client\x1b\x1b", "000000000000", "srv")

	wire, err := Encode(open)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	body := got.Body.(OpenReq)
	if body.ClientID != "client\x1b\x1b" || body.Username != "u\x1bser" {
		t.Fatalf("got %+v", body)
	}
}
