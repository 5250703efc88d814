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

package push

import (
	"context"
	"testing"

	"github.com/smf-gw/smf/cluster"
	"github.com/smf-gw/smf/obis"
	"github.com/smf-gw/smf/store"
)

// fakeStore backs SelectWindow with a fixed set of groups and records
// every op-log entry generated against it.
type fakeStore struct {
	store.Store
	groups []store.Group
	oplogs []store.OpLogEntry
}

func (f *fakeStore) SelectWindow(ctx context.Context, meter [9]byte, profile obis.Profile, from, to int64) (<-chan store.Group, error) {
	out := make(chan store.Group, len(f.groups))
	for _, g := range f.groups {
		out <- g
	}
	close(out)
	return out, nil
}

func (f *fakeStore) GenerateOpLog(ctx context.Context, entry store.OpLogEntry) error {
	f.oplogs = append(f.oplogs, entry)
	return nil
}

// fakeTransport answers open/transfer/close push-channel requests
// successfully, recording every envelope it sees.
type fakeTransport struct {
	sent chan cluster.Envelope
	seen []cluster.Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan cluster.Envelope, 16)}
}

func (f *fakeTransport) Send(ctx context.Context, env cluster.Envelope) error {
	var resp cluster.Envelope
	switch env.Verb {
	case "client.req.open.push.channel":
		resp = cluster.Envelope{ID: env.ID, Sequence: env.Sequence, Verb: "client.res.open.push.channel", Body: cluster.ResOpenPushChannel{Channel: 1, Source: 7}}
	case "client.req.transfer.pushdata":
		resp = cluster.Envelope{ID: env.ID, Sequence: env.Sequence, Verb: "client.res.transfer.pushdata", Body: cluster.ResTransferPushdata{}}
	case "client.req.close.push.channel":
		resp = cluster.Envelope{ID: env.ID, Sequence: env.Sequence, Verb: "client.res.close.push.channel", Body: cluster.ResClosePushChannel{}}
	default:
		resp = env
	}
	f.sent <- resp
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) (cluster.Envelope, error) {
	select {
	case env := <-f.sent:
		return env, nil
	case <-ctx.Done():
		return cluster.Envelope{}, ctx.Err()
	}
}

func TestJobRunOnceAdvancesLowWaterMarkOnSuccess(t *testing.T) {
	st := &fakeStore{groups: []store.Group{
		{TSIndex: 10, Rows: []store.Row{{Code: obis.CodeActiveEnergyPos, Value: 14521, Scaler: -1, Unit: 30}}},
		{TSIndex: 11, Rows: []store.Row{{Code: obis.CodeActiveEnergyPos, Value: 14600, Scaler: -1, Unit: 30}}},
	}}
	transport := newFakeTransport()
	session := cluster.NewSession(nil, transport)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	j := NewJob(nil, st, session, Target{
		MeterID:    [9]byte{1, 2, 3, 4, 5, 6, 7, 8, 9},
		Profile:    obis.Profile15Minute,
		TargetName: "collector-1",
	})

	if err := j.runOnce(context.Background()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if j.target.LowWaterMark != 11 {
		t.Errorf("expected low-water-mark 11, got %d", j.target.LowWaterMark)
	}
}

func TestJobRunOnceLogsOpLogOnChannelFailure(t *testing.T) {
	st := &fakeStore{}
	transport := &refusingTransport{}
	session := cluster.NewSession(nil, transport)

	j := NewJob(nil, st, session, Target{
		MeterID:    [9]byte{9, 8, 7, 6, 5, 4, 3, 2, 1},
		Profile:    obis.Profile15Minute,
		TargetName: "collector-2",
	})

	before := j.target.LowWaterMark
	if err := j.runOnce(context.Background()); err == nil {
		t.Fatal("expected an error when the push channel cannot be opened")
	}
	if j.target.LowWaterMark != before {
		t.Errorf("low-water-mark must not advance on channel-open failure, got %d, want %d", j.target.LowWaterMark, before)
	}
	if len(st.oplogs) != 1 || st.oplogs[0].Code != store.LogCodePushChannelFailed {
		t.Fatalf("expected one LogCodePushChannelFailed op-log entry, got %+v", st.oplogs)
	}
}

type refusingTransport struct{}

func (refusingTransport) Send(ctx context.Context, env cluster.Envelope) error {
	return errRefused
}

func (refusingTransport) Receive(ctx context.Context) (cluster.Envelope, error) {
	<-ctx.Done()
	return cluster.Envelope{}, ctx.Err()
}

type refuseError string

func (e refuseError) Error() string { return string(e) }

const errRefused = refuseError("refused")
