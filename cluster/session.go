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
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack"
	"golang.org/x/xerrors"

	"github.com/smf-gw/smf/ipt"
	"github.com/smf-gw/smf/smferr"
)

// Transport is what carries Envelopes between this segw and the cluster
// master: in production an ipt.Session's pushdata-transfer command
// framing carrying a msgpack-encoded Envelope as its opaque payload;
// tests substitute an in-memory pair.
type Transport interface {
	Send(ctx context.Context, env Envelope) error
	Receive(ctx context.Context) (Envelope, error)
}

// Session is the single long-lived connection to the cluster master: it
// holds the map[sequence]continuation correlation table and dispatches
// client_res envelopes to the request that's waiting on them.
type Session struct {
	log       *logrus.Logger
	transport Transport
	iptState  *ipt.Session

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]chan Envelope
}

// NewSession returns a Session that will carry envelopes over transport.
func NewSession(log *logrus.Logger, transport Transport) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		log:       log,
		transport: transport,
		iptState:  ipt.NewSession(),
		pending:   make(map[uint64]chan Envelope),
	}
}

func (s *Session) nextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Request sends verb/body as a new envelope and blocks for its matching
// client_res, or until ctx is done.
func (s *Session) Request(ctx context.Context, verb string, body interface{}) (Envelope, error) {
	seq := s.nextSequence()
	ch := make(chan Envelope, 1)

	s.mu.Lock()
	s.pending[seq] = ch
	s.mu.Unlock()

	env := Envelope{ID: uuid.New(), Sequence: seq, Verb: verb, Body: body}
	sent := make(chan error, 1)
	go func() { sent <- s.transport.Send(ctx, env) }()
	select {
	case err := <-sent:
		if err != nil {
			s.mu.Lock()
			delete(s.pending, seq)
			s.mu.Unlock()
			return Envelope{}, smferr.New(smferr.KindIO, "cluster.Session.Request", err)
		}
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
		return Envelope{}, smferr.New(smferr.KindTimeout, "cluster.Session.Request", ctx.Err())
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
		return Envelope{}, smferr.New(smferr.KindTimeout, "cluster.Session.Request", ctx.Err())
	}
}

// Run reads envelopes from the transport and dispatches responses to
// their waiting Request call, looking up and removing the pending entry
// on first match. Unmatched envelopes (unsolicited
// bus.insert.msg-style pushes from the master) are ignored here; a
// caller wanting those should wrap Transport to fan them out separately.
func (s *Session) Run(ctx context.Context) error {
	for {
		env, err := s.transport.Receive(ctx)
		if err != nil {
			return smferr.New(smferr.KindIO, "cluster.Session.Run", err)
		}

		s.mu.Lock()
		ch, ok := s.pending[env.Sequence]
		if ok {
			delete(s.pending, env.Sequence)
		}
		s.mu.Unlock()

		if ok {
			ch <- env
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Login performs client.req.login and returns the decoded response.
func (s *Session) Login(ctx context.Context, name, pwd, scheme string) (ResLogin, error) {
	resp, err := s.Request(ctx, "client.req.login", ReqLogin{Name: name, Pwd: pwd, Scheme: scheme})
	if err != nil {
		return ResLogin{}, err
	}
	res, ok := resp.Body.(ResLogin)
	if !ok {
		return ResLogin{}, smferr.New(smferr.KindAuth, "cluster.Session.Login", errUnexpectedBody)
	}
	return res, nil
}

// OpenPushChannel performs client.req.open.push.channel.
func (s *Session) OpenPushChannel(ctx context.Context, req ReqOpenPushChannel) (ResOpenPushChannel, error) {
	resp, err := s.Request(ctx, "client.req.open.push.channel", req)
	if err != nil {
		return ResOpenPushChannel{}, err
	}
	res, ok := resp.Body.(ResOpenPushChannel)
	if !ok {
		return ResOpenPushChannel{}, smferr.New(smferr.KindChannel, "cluster.Session.OpenPushChannel", errUnexpectedBody)
	}
	return res, nil
}

// TransferPushdata performs client.req.transfer.pushdata.
func (s *Session) TransferPushdata(ctx context.Context, channel, source uint32, data []byte) error {
	_, err := s.Request(ctx, "client.req.transfer.pushdata", ReqTransferPushdata{Channel: channel, Source: source, Data: data})
	return err
}

// ClosePushChannel performs client.req.close.push.channel.
func (s *Session) ClosePushChannel(ctx context.Context, channel uint32) error {
	_, err := s.Request(ctx, "client.req.close.push.channel", ReqClosePushChannel{Channel: channel})
	return err
}

// BusInsertMsgf logs an operational event to the cluster master
// (fire-and-forget: no response is defined for this verb).
func (s *Session) BusInsertMsgf(ctx context.Context, sev Severity, text string) {
	env := Envelope{ID: uuid.New(), Sequence: s.nextSequence(), Verb: "bus.insert.msg", Body: BusInsertMsg{Severity: sev, Text: text}}
	if err := s.transport.Send(ctx, env); err != nil {
		s.log.WithError(err).Warn("cluster: bus.insert.msg send failed")
	}
	s.log.WithField("severity", sev).Log(sev.LogrusLevel(), text)
}

// EncodeBag msgpack-encodes a request/response bag for wire transport,
// kept as a free function so a concrete Transport can reuse it without
// depending on Session internals.
func EncodeBag(v interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, xerrors.Errorf("msgpack.Marshal: %w", err)
	}
	return b, nil
}

// DecodeBag is the inverse of EncodeBag.
func DecodeBag(b []byte, v interface{}) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return xerrors.Errorf("msgpack.Unmarshal: %w", err)
	}
	return nil
}

type sessionError string

func (e sessionError) Error() string { return string(e) }

const errUnexpectedBody = sessionError("cluster: response body did not match the expected verb")
