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
	"encoding/binary"

	"github.com/smf-gw/smf/scramble"
)

// Serializer encodes IPT frames: it writes the four-escape marker, the
// header, and the body (doubling literal escape bytes), scrambling the
// entire wire output through its own scramble.Engine. It tracks the last
// sequence number it used so callers can correlate a response.
type Serializer struct {
	engine  *scramble.Engine
	lastSeq uint8
}

// NewSerializer returns a Serializer whose scramble engine starts at key.
func NewSerializer(key scramble.Key) *Serializer {
	return &Serializer{engine: scramble.NewWithKey(key)}
}

// Engine exposes the serializer's scramble engine.
func (s *Serializer) Engine() *scramble.Engine { return s.engine }

// LastSequence returns the sequence number used by the most recent Write*.
func (s *Serializer) LastSequence() uint8 { return s.lastSeq }

// NextSequence advances and returns the next sequence number to use,
// rolling over 1..=255 and skipping 0.
func (s *Serializer) NextSequence() uint8 {
	s.lastSeq = nextSequence(s.lastSeq)
	return s.lastSeq
}

type bodyWriter struct {
	buf bytes.Buffer
}

func (w *bodyWriter) string(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

func (w *bodyWriter) u8(v uint8) { w.buf.WriteByte(v) }

func (w *bodyWriter) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *bodyWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *bodyWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *bodyWriter) data(d []byte) {
	w.u32(uint32(len(d)))
	w.buf.Write(d)
}

func (w *bodyWriter) key(k scramble.Key) {
	w.buf.Write(k[:])
}

// loginExempt reports whether cmd is serialized without the leading
// escape marker (legacy compatibility for the login handshake).
func loginExempt(cmd Command) bool {
	switch cmd {
	case CtrlReqLoginPublic, CtrlReqLoginScrambled, CtrlResLoginPublic, CtrlResLoginScrambled:
		return true
	default:
		return false
	}
}

// write assembles the full wire frame (marker + header + escaped body) and
// scrambles it through the serializer's engine. Login commands skip the
// marker.
func (s *Serializer) write(cmd Command, seq uint8, body []byte) []byte {
	s.lastSeq = seq

	escaped := make([]byte, 0, len(body))
	for _, b := range body {
		if b == escape {
			escaped = append(escaped, escape, escape)
		} else {
			escaped = append(escaped, b)
		}
	}

	h := Header{Command: cmd, Sequence: seq, Length: uint32(HeaderSize + len(body))}
	hb := encodeHeader(h)

	out := make([]byte, 0, 4+HeaderSize+len(escaped))
	if !loginExempt(cmd) {
		out = append(out, escape, escape, escape, escape)
	}
	out = append(out, hb[:]...)
	out = append(out, escaped...)

	return s.engine.Transform(out)
}

// WriteZeroBody serializes a command with no body (watchdog, protocol
// version request, close-connection request, ...).
func (s *Serializer) WriteZeroBody(cmd Command, seq uint8) []byte {
	return s.write(cmd, seq, nil)
}

func (s *Serializer) WriteLoginPublicReq(seq uint8, name, pwd string) []byte {
	w := &bodyWriter{}
	w.string(name)
	w.string(pwd)
	return s.write(CtrlReqLoginPublic, seq, w.buf.Bytes())
}

func (s *Serializer) WriteLoginScrambledReq(seq uint8, name, pwd string, key scramble.Key) []byte {
	w := &bodyWriter{}
	w.string(name)
	w.string(pwd)
	w.key(key)
	out := s.write(CtrlReqLoginScrambled, seq, w.buf.Bytes())
	s.engine.Set(key)
	return out
}

func (s *Serializer) WriteLoginPublicRes(seq uint8, response uint8, watchdog uint16, redirect string) []byte {
	w := &bodyWriter{}
	w.u8(response)
	w.u16(watchdog)
	w.string(redirect)
	return s.write(CtrlResLoginPublic, seq, w.buf.Bytes())
}

// WriteLoginScrambledRes serializes the scrambled-login response and
// rotates the serializer's engine to key immediately after the write is
// produced, matching the serializer-side activation edge.
func (s *Serializer) WriteLoginScrambledRes(seq uint8, response uint8, watchdog uint16, redirect string, key scramble.Key) []byte {
	w := &bodyWriter{}
	w.u8(response)
	w.u16(watchdog)
	w.string(redirect)
	out := s.write(CtrlResLoginScrambled, seq, w.buf.Bytes())
	s.engine.Set(key)
	return out
}

func (s *Serializer) WriteOpenPushChannelReq(seq uint8, req OpenPushChannelReq) []byte {
	w := &bodyWriter{}
	w.string(req.Target)
	w.string(req.Account)
	w.string(req.Number)
	w.string(req.Version)
	w.string(req.DeviceID)
	w.u16(req.Timeout)
	return s.write(TPReqOpenPushChannel, seq, w.buf.Bytes())
}

func (s *Serializer) WriteOpenPushChannelRes(seq uint8, res OpenPushChannelRes) []byte {
	w := &bodyWriter{}
	w.u8(res.Response)
	w.u32(res.Channel)
	w.u32(res.Source)
	w.u16(res.PacketSize)
	w.u8(res.WindowSize)
	w.u8(res.Status)
	w.u32(res.Count)
	return s.write(TPResOpenPushChannel, seq, w.buf.Bytes())
}

func (s *Serializer) WriteClosePushChannelReq(seq uint8, channel uint32) []byte {
	w := &bodyWriter{}
	w.u32(channel)
	return s.write(TPReqClosePushChannel, seq, w.buf.Bytes())
}

func (s *Serializer) WriteClosePushChannelRes(seq uint8, response uint8, channel uint32) []byte {
	w := &bodyWriter{}
	w.u8(response)
	w.u32(channel)
	return s.write(TPResClosePushChannel, seq, w.buf.Bytes())
}

func (s *Serializer) WritePushDataTransferReq(seq uint8, req PushDataTransferReq) []byte {
	w := &bodyWriter{}
	w.u32(req.Channel)
	w.u32(req.Source)
	w.u8(req.Status)
	w.u8(req.Block)
	w.data(req.Data)
	return s.write(TPReqPushdataTransfer, seq, w.buf.Bytes())
}

func (s *Serializer) WritePushDataTransferRes(seq uint8, res PushDataTransferRes) []byte {
	w := &bodyWriter{}
	w.u8(res.Response)
	w.u32(res.Channel)
	w.u32(res.Source)
	w.u8(res.Status)
	w.u8(res.Block)
	return s.write(TPResPushdataTransfer, seq, w.buf.Bytes())
}
