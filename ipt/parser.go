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
	"encoding/binary"

	"github.com/smf-gw/smf/scramble"
	"github.com/smf-gw/smf/smferr"
)

const escape = 0x1B

type streamState int

const (
	stateIdle streamState = iota
	stateHead
	stateData
)

// Parser is the IPT stream state machine: it descrambles incoming bytes
// through its own scramble.Engine, detects the four-escape frame marker,
// accumulates the fixed 8-byte header, then
// dispatches a typed decoder for the command's body. It is fully
// synchronous: Feed may be called with any chunking of the underlying
// byte stream and the parser retains partial state across calls.
type Parser struct {
	engine *scramble.Engine

	state  streamState
	escRun int // consecutive raw escape bytes seen in stateIdle

	headBuf [HeaderSize]byte
	headPos int
	header  Header

	body       []byte
	bodyEscPen bool // saw one escape inside the body, awaiting its pair
	bodyEscRun int   // consecutive escapes inside the body (control-event detection)
}

// NewParser returns a Parser whose scramble engine starts at the given key
// (scramble.DefaultKey for an un-negotiated connection).
func NewParser(key scramble.Key) *Parser {
	return &Parser{engine: scramble.NewWithKey(key), state: stateIdle}
}

// Engine exposes the parser's scramble engine, e.g. so a session can read
// the currently negotiated key for logging (never for transmission).
func (p *Parser) Engine() *scramble.Engine { return p.engine }

// Feed descrambles and parses data, returning every frame (and any
// out-of-band control events) completed during this call.
func (p *Parser) Feed(data []byte) ([]Frame, []ControlEvent, error) {
	var frames []Frame
	var events []ControlEvent

	for _, raw := range data {
		c := p.engine.Byte(raw)

		switch p.state {
		case stateIdle:
			if c == escape {
				p.escRun++
				continue
			}
			// Login commands may arrive without the leading escape marker
			// (legacy compatibility): a bare request (0xC0xx) or response
			// (0x40xx) code byte starts a header directly.
			if p.escRun >= 4 || c == 0xC0 || c == 0x40 {
				p.state = stateHead
				p.headPos = 0
				p.feedHeaderByte(c)
			}
			// A lone byte (or an incomplete escape run) outside any frame
			// is stray passthrough data; the core protocol stack has no
			// use for it and it is dropped here.
			p.escRun = 0

		case stateHead:
			p.feedHeaderByte(c)
			if p.headPos == HeaderSize {
				p.header = decodeHeader(p.headBuf)
				if !known(p.header.Command) {
					// Resync at the next escape boundary; don't desync the
					// stream over an unrecognized command code.
					frames = append(frames, Frame{Header: p.header, Body: UnknownCmd{Code: uint16(p.header.Command)}})
					p.resetToIdle()
					continue
				}
				if zeroBody[p.header.Command] || p.header.BodyLen() == 0 {
					frames = append(frames, Frame{Header: p.header})
					p.resetToIdle()
					continue
				}
				p.state = stateData
				p.body = make([]byte, 0, p.header.BodyLen())
				p.bodyEscPen = false
				p.bodyEscRun = 0
			}

		case stateData:
			if !p.bodyEscPen {
				if c == escape {
					p.bodyEscPen = true
					p.bodyEscRun = 1
					continue
				}
				p.body = append(p.body, c)
			} else {
				if c == escape {
					p.bodyEscRun++
					if p.bodyEscRun == 2 {
						// doubled escape: one literal 0x1B in the body; it
						// may be the body's last byte, so the completion
						// check below still runs.
						p.body = append(p.body, escape)
						p.bodyEscPen = false
						p.bodyEscRun = 0
					} else {
						if p.bodyEscRun == 5 {
							// Not reached: the second escape always completes
							// a doubled pair above and resets the run.
							events = append(events, ControlEvent{})
							p.bodyEscPen = false
							p.bodyEscRun = 0
						}
						continue
					}
				} else {
					// Lone escape not followed by its pair: treat the escape
					// as a stray literal and resume normal body copying.
					p.body = append(p.body, escape, c)
					p.bodyEscPen = false
					p.bodyEscRun = 0
				}
			}

			if len(p.body) >= p.header.BodyLen() {
				body, err := decodeBody(p.header, p.body, p.engine)
				if err != nil {
					return frames, events, err
				}
				frames = append(frames, Frame{Header: p.header, Body: body})
				p.resetToIdle()
			}
		}
	}

	return frames, events, nil
}

func (p *Parser) feedHeaderByte(c byte) {
	p.headBuf[p.headPos] = c
	p.headPos++
}

func (p *Parser) resetToIdle() {
	p.state = stateIdle
	p.escRun = 0
	p.headPos = 0
	p.body = nil
	p.bodyEscPen = false
	p.bodyEscRun = 0
}

// --- body decoding ---

type bodyReader struct {
	b   []byte
	pos int
}

func (r *bodyReader) string() string {
	start := r.pos
	for r.pos < len(r.b) && r.b[r.pos] != 0 {
		r.pos++
	}
	s := string(r.b[start:r.pos])
	if r.pos < len(r.b) {
		r.pos++ // skip the terminating NUL
	}
	return s
}

func (r *bodyReader) u8() uint8 {
	v := r.b[r.pos]
	r.pos++
	return v
}

func (r *bodyReader) u16() uint16 {
	v := binary.BigEndian.Uint16(r.b[r.pos : r.pos+2])
	r.pos += 2
	return v
}

func (r *bodyReader) u32() uint32 {
	v := binary.BigEndian.Uint32(r.b[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *bodyReader) u64() uint64 {
	v := binary.BigEndian.Uint64(r.b[r.pos : r.pos+8])
	r.pos += 8
	return v
}

func (r *bodyReader) data() []byte {
	n := r.u32()
	d := append([]byte(nil), r.b[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return d
}

func (r *bodyReader) key() scramble.Key {
	var k scramble.Key
	copy(k[:], r.b[r.pos:r.pos+scramble.KeySize])
	r.pos += scramble.KeySize
	return k
}

func decodeBody(h Header, body []byte, engine *scramble.Engine) (interface{}, error) {
	r := &bodyReader{b: body}

	switch h.Command {
	case CtrlReqLoginPublic:
		return LoginPublicReq{Name: r.string(), Pwd: r.string()}, nil
	case CtrlResLoginPublic:
		return LoginPublicRes{Response: r.u8(), Watchdog: r.u16(), Redirect: r.string()}, nil
	case CtrlReqLoginScrambled:
		name := r.string()
		pwd := r.string()
		key := r.key()
		// Rotate only now: everything up to and including these bytes was
		// read under the previous (not-yet-rekeyed) engine state.
		engine.Set(key)
		return LoginScrambledReq{Name: name, Pwd: pwd, Key: key}, nil
	case CtrlResLoginScrambled:
		return LoginScrambledRes{Response: r.u8(), Watchdog: r.u16(), Redirect: r.string()}, nil
	case CtrlReqLogout:
		return LogoutReq{Reason: r.u8()}, nil
	case CtrlResLogout:
		return LogoutRes{Response: r.u8()}, nil
	case CtrlReqRegisterTarget:
		return RegisterTargetReq{Target: r.string(), PacketSize: r.u16(), WindowSize: r.u8()}, nil
	case CtrlResRegisterTarget:
		return RegisterTargetRes{Response: r.u8(), Channel: r.u32()}, nil
	case CtrlReqDeregisterTarget:
		return DeregisterTargetReq{Target: r.string()}, nil
	case CtrlResDeregisterTarget:
		return DeregisterTargetRes{Response: r.u8(), Target: r.string()}, nil

	case TPReqOpenPushChannel:
		return OpenPushChannelReq{
			Target: r.string(), Account: r.string(), Number: r.string(),
			Version: r.string(), DeviceID: r.string(), Timeout: r.u16(),
		}, nil
	case TPResOpenPushChannel:
		return OpenPushChannelRes{
			Response: r.u8(), Channel: r.u32(), Source: r.u32(),
			PacketSize: r.u16(), WindowSize: r.u8(), Status: r.u8(), Count: r.u32(),
		}, nil
	case TPReqClosePushChannel:
		return ClosePushChannelReq{Channel: r.u32()}, nil
	case TPResClosePushChannel:
		return ClosePushChannelRes{Response: r.u8(), Channel: r.u32()}, nil
	case TPReqPushdataTransfer:
		return PushDataTransferReq{
			Channel: r.u32(), Source: r.u32(), Status: r.u8(), Block: r.u8(), Data: r.data(),
		}, nil
	case TPResPushdataTransfer:
		return PushDataTransferRes{
			Response: r.u8(), Channel: r.u32(), Source: r.u32(), Status: r.u8(), Block: r.u8(),
		}, nil
	case TPReqOpenConnection:
		return OpenConnectionReq{Number: r.string()}, nil
	case TPResOpenConnection:
		return OpenConnectionRes{Response: r.u8()}, nil
	case TPResCloseConnection:
		return CloseConnectionRes{Response: r.u8()}, nil

	case AppResProtocolVersion:
		return ProtocolVersionRes{Response: r.u8()}, nil
	case AppResSoftwareVersion:
		return SoftwareVersionRes{Version: r.string()}, nil
	case AppResDeviceIdentifier:
		return DeviceIdentifierRes{ID: r.string()}, nil
	case AppResNetworkStatus:
		var status [5]uint32
		devType := r.u8()
		for i := range status {
			status[i] = r.u32()
		}
		return NetworkStatusRes{DeviceType: devType, Status: status, IMSI: r.string(), IMEI: r.string()}, nil
	case AppResIPStatistics:
		return IPStatisticsRes{ResponseType: r.u8(), RX: r.u64(), TX: r.u64()}, nil
	case AppResDeviceAuth:
		return DeviceAuthRes{Account: r.string(), Pwd: r.string(), Number: r.string(), Descr: r.string()}, nil
	case AppResDeviceTime:
		return DeviceTimeRes{Seconds: r.u32()}, nil
	case AppResPushTargetEcho:
		return PushTargetEchoRes{Channel: r.u32(), Data: r.data()}, nil
	case AppResTraceroute:
		return TracerouteRes{Index: r.u16(), HopCount: r.u16()}, nil

	default:
		return nil, smferr.New(smferr.KindFraming, "ipt.decodeBody", errUnhandledCommand(h.Command))
	}
}

type errUnhandledCommand Command

func (e errUnhandledCommand) Error() string {
	return "unhandled command with body: " + Command(e).String()
}

func (c Command) String() string {
	return "0x" + hex4(uint16(c))
}

func hex4(v uint16) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{
		digits[(v>>12)&0xF],
		digits[(v>>8)&0xF],
		digits[(v>>4)&0xF],
		digits[v&0xF],
	})
}
