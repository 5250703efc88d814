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

package mbus

import "github.com/smf-gw/smf/smferr"

// FrameType classifies an M-Bus frame: short (C-field,
// A-field, checksum), control, or long (CI-field + payload).
type FrameType int

const (
	FrameShort FrameType = iota
	FrameControl
	FrameLong
)

const (
	startShort = 0x10
	startLong  = 0x68
	stopByte   = 0x16
)

// Frame is a classified, unwrapped M-Bus frame: the C-field, A-field, the
// device header (long frames only), and the raw application payload.
type Frame struct {
	Type    FrameType
	Control byte
	Address byte
	Header  Header // zero value for short/control frames
	Payload []byte
}

// Classify inspects the start byte(s) of raw and splits it into a typed
// Frame. Short frames are 5 bytes (start, C, A, checksum, stop); long
// frames carry a length-prefixed CI+payload block bracketed by 0x68.
func Classify(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, smferr.New(smferr.KindFraming, "mbus.Classify", errEmptyFrame)
	}

	switch raw[0] {
	case startShort:
		if len(raw) < 5 || raw[4] != stopByte {
			return Frame{}, smferr.New(smferr.KindFraming, "mbus.Classify", errShortFrame)
		}
		return Frame{Type: FrameShort, Control: raw[1], Address: raw[2]}, nil
	case startLong:
		if len(raw) < 6 {
			return Frame{}, smferr.New(smferr.KindFraming, "mbus.Classify", errShortFrame)
		}
		length := raw[1]
		if int(length)+6 > len(raw) || raw[3] != startLong {
			return Frame{}, smferr.New(smferr.KindFraming, "mbus.Classify", errLongFrame)
		}
		body := raw[4 : 4+int(length)]
		if len(raw) < 4+int(length)+2 || raw[4+int(length)+1] != stopByte {
			return Frame{}, smferr.New(smferr.KindFraming, "mbus.Classify", errLongFrame)
		}
		f := Frame{Type: FrameLong, Control: body[0], Address: body[1]}
		if len(body) >= 3+HeaderSize {
			hdr, err := DecodeHeader(body[3 : 3+HeaderSize])
			if err == nil {
				f.Header = hdr
				f.Payload = body[3+HeaderSize:]
			}
		}
		if f.Payload == nil && len(body) > 3 {
			f.Payload = body[3:]
		}
		return f, nil
	default:
		return Frame{Type: FrameControl, Control: raw[0]}, nil
	}
}

type frameError string

func (e frameError) Error() string { return string(e) }

const (
	errEmptyFrame = frameError("mbus: empty frame")
	errShortFrame = frameError("mbus: truncated short frame")
	errLongFrame  = frameError("mbus: malformed long frame")
)
