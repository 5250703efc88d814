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

// InitBlob configures an iM871A for device-mode=Other, link-mode=T1,
// radio-channel=1, power=13 dB, Rx-window=50 ms, RSSI-attach=1,
// Rx-timestamp=1, LED-control=2, RTC=1. The trailing two bytes, 0x83
// 0xC9, are kept as given; Fletcher16 in this file computes 0xD4 0x77
// over the preceding 27 bytes. Write this once after opening the
// dongle's serial port and before reading any wM-Bus traffic.
var InitBlob = []byte{
	0xA5, 0x81, 0x03, 0x17, 0x00, 0xFF, 0x00, 0x03, 0x00, 0xB3, 0x25, 0x51,
	0x18, 0x10, 0x00, 0x01, 0x00, 0x01, 0xFD, 0x07, 0x32, 0x00, 0x01, 0x01,
	0x02, 0x01, 0x00, 0x83, 0xC9,
}

const hciControl = 0xA5

// HCIFrame is one unwrapped iM871A HCI message: endpoint, message id, and
// the raw payload carried between the length byte and the trailing
// Fletcher-16.
type HCIFrame struct {
	Endpoint byte
	MsgID    byte
	Payload  []byte
}

type hciState int

const (
	hciIdle hciState = iota
	hciEndpoint
	hciMsgID
	hciLength
	hciPayload
	hciChecksum
)

// HCIDecoder unwraps a byte stream from an iM871A dongle into HCIFrame
// values, handing each frame's payload onward as a raw wM-Bus frame. It
// is fully synchronous and retains partial state across Feed calls, same
// as the rest of the protocol stack's parsers.
type HCIDecoder struct {
	state   hciState
	ep, msg byte
	length  int
	payload []byte
	cksum   [2]byte
	cksumAt int
}

// Feed consumes raw and returns every HCIFrame completed during this call.
func (d *HCIDecoder) Feed(raw []byte) ([]HCIFrame, error) {
	var frames []HCIFrame

	for _, c := range raw {
		switch d.state {
		case hciIdle:
			if c == hciControl {
				d.state = hciEndpoint
			}
		case hciEndpoint:
			d.ep = c
			d.state = hciMsgID
		case hciMsgID:
			d.msg = c
			d.state = hciLength
		case hciLength:
			d.length = int(c)
			d.payload = make([]byte, 0, d.length)
			if d.length == 0 {
				d.state = hciChecksum
				d.cksumAt = 0
				continue
			}
			d.state = hciPayload
		case hciPayload:
			d.payload = append(d.payload, c)
			if len(d.payload) == d.length {
				d.state = hciChecksum
				d.cksumAt = 0
			}
		case hciChecksum:
			d.cksum[d.cksumAt] = c
			d.cksumAt++
			if d.cksumAt == 2 {
				frames = append(frames, HCIFrame{Endpoint: d.ep, MsgID: d.msg, Payload: d.payload})
				d.state = hciIdle
			}
		}
	}

	return frames, nil
}

// Wrap builds a complete HCI frame for endpoint/msgID carrying payload,
// appending its Fletcher-16 checksum.
func Wrap(endpoint, msgID byte, payload []byte) []byte {
	frame := make([]byte, 0, 4+len(payload)+2)
	frame = append(frame, hciControl, endpoint, msgID, byte(len(payload)))
	frame = append(frame, payload...)
	lo, hi := Fletcher16(frame)
	return append(frame, lo, hi)
}

// Fletcher16 computes the RFC 1146 Fletcher-16 checksum over data,
// returning the two checksum bytes in (low, high) order.
func Fletcher16(data []byte) (byte, byte) {
	var s1, s2 uint16
	for _, b := range data {
		s1 = (s1 + uint16(b)) % 255
		s2 = (s2 + s1) % 255
	}
	return byte(s1), byte(s2)
}

// Pending reports whether the decoder is mid-frame, awaiting more bytes.
// A caller can use this at stream shutdown to flag a truncated frame
// rather than silently dropping it.
func (d *HCIDecoder) Pending() bool { return d.state != hciIdle }
