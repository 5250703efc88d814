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

package iec

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/smf-gw/smf/cluster"
	"github.com/smf-gw/smf/obis"
	"github.com/smf-gw/smf/sml"
)

// fakeTransport answers open/transfer/close push-channel requests
// successfully and records every transferred payload.
type fakeTransport struct {
	sent     chan cluster.Envelope
	payloads [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan cluster.Envelope, 16)}
}

func (f *fakeTransport) Send(ctx context.Context, env cluster.Envelope) error {
	var resp cluster.Envelope
	switch env.Verb {
	case "client.req.open.push.channel":
		resp = cluster.Envelope{ID: env.ID, Sequence: env.Sequence, Verb: "client.res.open.push.channel", Body: cluster.ResOpenPushChannel{Channel: 3, Source: 9}}
	case "client.req.transfer.pushdata":
		if req, ok := env.Body.(cluster.ReqTransferPushdata); ok {
			f.payloads = append(f.payloads, req.Data)
		}
		resp = cluster.Envelope{ID: env.ID, Sequence: env.Sequence, Verb: "client.res.transfer.pushdata", Body: cluster.ResTransferPushdata{}}
	case "client.req.close.push.channel":
		resp = cluster.Envelope{ID: env.ID, Sequence: env.Sequence, Verb: "client.res.close.push.channel", Body: cluster.ResClosePushChannel{}}
	default:
		return nil
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

// fakeLine plays the meter side of a mode-C exchange: the sign-on write
// is answered with the identification, the option-select write with the
// data message.
type fakeLine struct {
	toRead bytes.Buffer
	data   []byte
	stage  int
}

func (l *fakeLine) Write(b []byte) (int, error) {
	switch l.stage {
	case 0:
		l.toRead.WriteString("/LGZ5ZMD3104\r\n")
	case 1:
		l.toRead.Write(l.data)
	}
	l.stage++
	return len(b), nil
}

func (l *fakeLine) Read(b []byte) (int, error) {
	if l.toRead.Len() == 0 {
		return 0, io.EOF
	}
	return l.toRead.Read(b)
}

func TestQueryOncePushesReadout(t *testing.T) {
	wire := datagram("LGZ5ZMD3104",
		"1-0:1.8.0*255(0012345.6*kWh)",
		"0-0:96.50.68*255(00000000)",
	)
	// fakeLine replays only the data block; the ident line arrives in
	// response to the sign-on write.
	line := &fakeLine{data: wire[len("/LGZ5ZMD3104\r\n"):]}

	transport := newFakeTransport()
	session := cluster.NewSession(nil, transport)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	c := NewClient(nil, line, session, Config{
		Meter:    "meter-1",
		ServerID: "05001000000001",
		Target:   "collector-iec",
		Profile:  obis.Profile15Minute,
	})

	if err := c.QueryOnce(ctx); err != nil {
		t.Fatalf("QueryOnce: %v", err)
	}

	if len(transport.payloads) != 1 {
		t.Fatalf("got %d pushed payloads, want 1", len(transport.payloads))
	}
	msg, err := sml.Decode(transport.payloads[0])
	if err != nil {
		t.Fatalf("Decode pushed payload: %v", err)
	}
	res, ok := msg.Body.(sml.GetProfileListRes)
	if !ok {
		t.Fatalf("got %T, want GetProfileListRes", msg.Body)
	}
	if res.ServerID != "05001000000001" {
		t.Fatalf("got server id %q", res.ServerID)
	}
	if len(res.Periods) != 2 {
		t.Fatalf("got %d periods, want 2", len(res.Periods))
	}
	// 0012345.6 kWh: one fraction digit (-1) plus the kilo fold (+3).
	if res.Periods[0].OBIS != [6]byte{1, 0, 1, 8, 0, 255} || res.Periods[0].Scaler != 2 || res.Periods[0].Unit != 30 {
		t.Fatalf("got first period %+v", res.Periods[0])
	}
	raw, err := obis.ScaleReverse("0012345.6", -1)
	if err != nil {
		t.Fatalf("ScaleReverse: %v", err)
	}
	if !bytes.Equal(res.Periods[0].RawValue, int64ToBytes(raw)) {
		t.Fatalf("got raw value % X", res.Periods[0].RawValue)
	}
}

func TestPeriodsSkipsNonNumericLines(t *testing.T) {
	transport := newFakeTransport()
	session := cluster.NewSession(nil, transport)
	c := NewClient(nil, nil, session, Config{Meter: "m"})

	out := c.periods(Readout{BCCOK: true, Lines: []Line{
		{Code: obis.NewCode(1, 0, 0, 9, 1, 255), CodeOK: true, Value: "21:04:27"},
		{Code: obis.CodeActiveEnergyPos, CodeOK: true, Value: "5.0", Unit: "kWh"},
	}})

	if len(out) != 1 {
		t.Fatalf("got %d periods, want 1", len(out))
	}
	if out[0].OBIS != [6]byte(obis.CodeActiveEnergyPos) {
		t.Fatalf("got %+v", out[0])
	}
}
