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

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/smf-gw/smf/obis"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBolt(filepath.Join(t.TempDir(), "smf.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertIdempotentOnDuplicateKey(t *testing.T) {
	s := openTestStore(t)
	meter := [9]byte{1, 2, 3}
	code := obis.NewCode(1, 0, 1, 8, 0, 255)

	ctx := context.Background()
	if err := s.Insert(ctx, meter, obis.Profile15Minute, 100, Row{Code: code, Value: 42}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, meter, obis.Profile15Minute, 100, Row{Code: code, Value: 99}); err != nil {
		t.Fatalf("Insert (update): %v", err)
	}

	ch, err := s.SelectWindow(ctx, meter, obis.Profile15Minute, 100, 100)
	if err != nil {
		t.Fatalf("SelectWindow: %v", err)
	}
	var groups []Group
	for g := range ch {
		groups = append(groups, g)
	}
	if len(groups) != 1 {
		t.Fatalf("expected exactly one ts-index group, got %d", len(groups))
	}
	if len(groups[0].Rows) != 1 {
		t.Fatalf("expected exactly one row (no duplicate), got %d", len(groups[0].Rows))
	}
	if groups[0].Rows[0].Value != 99 {
		t.Errorf("expected the second insert's value to win, got %d", groups[0].Rows[0].Value)
	}
}

func TestSelectWindowAscendingOrder(t *testing.T) {
	s := openTestStore(t)
	meter := [9]byte{5}
	code := obis.NewCode(1, 0, 1, 8, 0, 255)
	ctx := context.Background()

	for _, ts := range []int64{103, 101, 102} {
		if err := s.Insert(ctx, meter, obis.Profile15Minute, ts, Row{Code: code, Value: ts}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	ch, err := s.SelectWindow(ctx, meter, obis.Profile15Minute, 0, 1000)
	if err != nil {
		t.Fatalf("SelectWindow: %v", err)
	}
	var got []int64
	for g := range ch {
		got = append(got, g.TSIndex)
	}
	want := []int64{101, 102, 103}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMeterConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cfg := MeterConfig{ServerID: [9]byte{7}, User: "alice", Pwd: "s3cr3t"}
	if err := s.PutMeterConfig(ctx, cfg); err != nil {
		t.Fatalf("PutMeterConfig: %v", err)
	}
	got, ok, err := s.MeterConfig(ctx, cfg.ServerID)
	if err != nil || !ok {
		t.Fatalf("MeterConfig: ok=%v err=%v", ok, err)
	}
	if got.User != "alice" {
		t.Errorf("User = %q, want alice", got.User)
	}
	if got.Pwd == "s3cr3t" {
		t.Error("Pwd was persisted in plaintext, expected a bcrypt hash")
	}
	if !CheckPassword(got.Pwd, "s3cr3t") {
		t.Error("stored hash does not verify against the original password")
	}
}

func TestAuthenticate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	serverID := [9]byte{9}
	if err := s.PutMeterConfig(ctx, MeterConfig{ServerID: serverID, Pwd: "hunter2"}); err != nil {
		t.Fatalf("PutMeterConfig: %v", err)
	}

	ok, err := s.Authenticate(ctx, serverID, "hunter2")
	if err != nil || !ok {
		t.Fatalf("Authenticate(correct password): ok=%v err=%v", ok, err)
	}
	ok, err = s.Authenticate(ctx, serverID, "wrong")
	if err != nil || ok {
		t.Fatalf("Authenticate(wrong password): ok=%v err=%v", ok, err)
	}

	blocked := [9]byte{10}
	if err := s.PutMeterConfig(ctx, MeterConfig{ServerID: blocked, Pwd: "hunter2", Blocked: true}); err != nil {
		t.Fatalf("PutMeterConfig: %v", err)
	}
	ok, err = s.Authenticate(ctx, blocked, "hunter2")
	if err != nil || ok {
		t.Fatalf("Authenticate(blocked meter): ok=%v err=%v", ok, err)
	}
}

func TestGenerateOpLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	err := s.GenerateOpLog(ctx, OpLogEntry{
		Code:    LogCodePushChannelFailed,
		Target:  "central",
		Message: LogCodePushChannelFailed.String(),
	})
	if err != nil {
		t.Fatalf("GenerateOpLog: %v", err)
	}
}
