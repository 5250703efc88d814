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

package cluster

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack"
	"golang.org/x/xerrors"

	"github.com/smf-gw/smf/ipt"
	"github.com/smf-gw/smf/smferr"
)

// IPTTransport is the production Transport: it carries Envelopes as the
// opaque Data payload of an IPT pushdata-transfer command over a single
// long-lived net.Conn, reusing channel 0 as the cluster control channel
// (no real push-channel has been opened against it; it exists purely to
// shuttle client_req/res envelopes the way the reference protocol
// piggybacks its own control traffic on the IPT connection to the
// master). Envelope.Body is re-typed on decode from Verb, the same
// statically-typed dispatch the sml and ipt packages use instead of a
// string-keyed runtime cast.
type IPTTransport struct {
	conn net.Conn
	sess *ipt.Session

	writeMu   sync.Mutex
	lastWrite time.Time
	readBuf   []byte
}

// controlChannel is the reserved channel id IPTTransport multiplexes
// cluster envelopes on; it is never handed out by OpenPushChannel.
const controlChannel = 0

// NewIPTTransport returns a Transport carrying Envelopes over conn,
// using sess's Serializer/Parser pair (already logged in / scrambled,
// if the deployment negotiates a scramble key for this link).
func NewIPTTransport(conn net.Conn, sess *ipt.Session) *IPTTransport {
	return &IPTTransport{conn: conn, sess: sess, lastWrite: time.Now(), readBuf: make([]byte, 4096)}
}

// Send msgpack-encodes env and writes it as a pushdata-transfer request.
func (t *IPTTransport) Send(ctx context.Context, env Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return xerrors.Errorf("cluster.IPTTransport.Send: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	seq := t.sess.Serializer.NextSequence()
	frame := t.sess.Serializer.WritePushDataTransferReq(seq, ipt.PushDataTransferReq{
		Channel: controlChannel,
		Data:    data,
	})

	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
	}
	if _, err := t.conn.Write(frame); err != nil {
		return smferr.New(smferr.KindIO, "cluster.IPTTransport.Send", err)
	}
	t.lastWrite = time.Now()
	return nil
}

// RunWatchdog keeps an otherwise idle session alive: whenever no frame
// has been written for the watchdog interval, it sends an IPT watchdog
// request. Returns when ctx is done.
func (t *IPTTransport) RunWatchdog(ctx context.Context) {
	ticker := time.NewTicker(ipt.WatchdogTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.writeMu.Lock()
			if time.Since(t.lastWrite) >= ipt.WatchdogTimeout {
				seq := t.sess.Serializer.NextSequence()
				frame := t.sess.Serializer.WriteZeroBody(ipt.CtrlReqWatchdog, seq)
				if _, err := t.conn.Write(frame); err == nil {
					t.lastWrite = time.Now()
				}
			}
			t.writeMu.Unlock()
		}
	}
}

// Receive blocks until one full Envelope has been read off the wire,
// decoding and discarding any IPT frame that isn't a control-channel
// pushdata-transfer request (acks of our own sends, unrelated traffic).
func (t *IPTTransport) Receive(ctx context.Context) (Envelope, error) {
	for {
		if dl, ok := ctx.Deadline(); ok {
			_ = t.conn.SetReadDeadline(dl)
		}
		n, err := t.conn.Read(t.readBuf)
		if err != nil {
			return Envelope{}, smferr.New(smferr.KindIO, "cluster.IPTTransport.Receive", err)
		}

		frames, _, err := t.sess.Parser.Feed(t.readBuf[:n])
		if err != nil {
			return Envelope{}, smferr.New(smferr.KindFraming, "cluster.IPTTransport.Receive", err)
		}

		for _, f := range frames {
			req, ok := f.Body.(ipt.PushDataTransferReq)
			if !ok || req.Channel != controlChannel {
				continue
			}
			env, err := unmarshalEnvelope(req.Data)
			if err != nil {
				return Envelope{}, xerrors.Errorf("cluster.IPTTransport.Receive: %w", err)
			}
			return env, nil
		}

		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		default:
		}
	}
}

// wireEnvelope is Envelope's on-wire shape: Body is encoded separately so
// decoding can re-type it by Verb instead of relying on msgpack's
// best-effort decode of an interface{} field (which would otherwise
// yield a bare map, not the concrete Req/Res struct callers expect).
type wireEnvelope struct {
	ID       [16]byte
	Sequence uint64
	Verb     string
	Body     []byte
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	body, err := msgpack.Marshal(env.Body)
	if err != nil {
		return nil, xerrors.Errorf("msgpack.Marshal body: %w", err)
	}
	var id [16]byte
	copy(id[:], env.ID[:])
	out, err := msgpack.Marshal(wireEnvelope{ID: id, Sequence: env.Sequence, Verb: env.Verb, Body: body})
	if err != nil {
		return nil, xerrors.Errorf("msgpack.Marshal envelope: %w", err)
	}
	return out, nil
}

func unmarshalEnvelope(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Envelope{}, xerrors.Errorf("msgpack.Unmarshal envelope: %w", err)
	}

	body, err := decodeBody(w.Verb, w.Body)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{ID: uuid.UUID(w.ID), Sequence: w.Sequence, Verb: w.Verb, Body: body}, nil
}

func decodeBody(verb string, raw []byte) (interface{}, error) {
	var v interface{}
	switch verb {
	case "client.req.login":
		v = &ReqLogin{}
	case "client.res.login":
		v = &ResLogin{}
	case "client.req.open.push.channel":
		v = &ReqOpenPushChannel{}
	case "client.res.open.push.channel":
		v = &ResOpenPushChannel{}
	case "client.req.transfer.pushdata":
		v = &ReqTransferPushdata{}
	case "client.res.transfer.pushdata":
		v = &ResTransferPushdata{}
	case "client.req.close.push.channel":
		v = &ReqClosePushChannel{}
	case "client.res.close.push.channel":
		v = &ResClosePushChannel{}
	case "bus.insert.msg":
		v = &BusInsertMsg{}
	default:
		return nil, smferr.New(smferr.KindFraming, "cluster.decodeBody", unknownVerbError(verb))
	}

	if err := msgpack.Unmarshal(raw, v); err != nil {
		return nil, xerrors.Errorf("msgpack.Unmarshal %s body: %w", verb, err)
	}

	switch t := v.(type) {
	case *ReqLogin:
		return *t, nil
	case *ResLogin:
		return *t, nil
	case *ReqOpenPushChannel:
		return *t, nil
	case *ResOpenPushChannel:
		return *t, nil
	case *ReqTransferPushdata:
		return *t, nil
	case *ResTransferPushdata:
		return *t, nil
	case *ReqClosePushChannel:
		return *t, nil
	case *ResClosePushChannel:
		return *t, nil
	case *BusInsertMsg:
		return *t, nil
	default:
		return nil, smferr.New(smferr.KindFraming, "cluster.decodeBody", unknownVerbError(verb))
	}
}

type unknownVerbError string

func (e unknownVerbError) Error() string { return "cluster: unrecognized verb " + string(e) }
