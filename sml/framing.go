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
	"encoding/binary"

	"github.com/smf-gw/smf/smferr"
)

const escape = 0x1B

var beginMarker = [8]byte{escape, escape, escape, escape, 0x01, 0x01, 0x01, 0x01}

// unframe locates the begin marker, unescapes the body up to the end
// marker, and returns the unescaped TLV payload plus the CRC verdict.
// CRC16 is accumulated over every byte from the begin marker through the
// pad byte of the end marker, i.e. everything except the trailing two CRC
// bytes themselves.
func unframe(raw []byte) (body []byte, crcOK bool, err error) {
	if len(raw) < len(beginMarker) || [8]byte(raw[:8]) != beginMarker {
		return nil, false, smferr.New(smferr.KindFraming, "sml.unframe", errNoBeginMarker)
	}

	acc := newCRC16()
	acc.update(raw[:8])

	pos := 8
	for pos < len(raw) {
		if raw[pos] == escape {
			if pos+7 <= len(raw) && raw[pos+1] == escape && raw[pos+2] == escape && raw[pos+3] == escape && raw[pos+4] == 0x1A {
				acc.update(raw[pos : pos+5])
				pad := raw[pos+5]
				acc.updateByte(pad)
				if pos+8 > len(raw) {
					return nil, false, smferr.New(smferr.KindFraming, "sml.unframe", errTruncatedEnd)
				}
				trailingCRC := binary.BigEndian.Uint16(raw[pos+6 : pos+8])
				return body, trailingCRC == acc.sum(), nil
			}
			if pos+1 < len(raw) && raw[pos+1] == escape {
				acc.updateByte(raw[pos])
				acc.updateByte(raw[pos+1])
				body = append(body, escape)
				pos += 2
				continue
			}
		}
		acc.updateByte(raw[pos])
		body = append(body, raw[pos])
		pos++
	}

	return nil, false, smferr.New(smferr.KindFraming, "sml.unframe", errTruncatedEnd)
}

// frame escapes body and wraps it in the begin/end markers with a
// trailing CRC16 computed the same way unframe verifies it.
func frame(body []byte) []byte {
	out := append([]byte{}, beginMarker[:]...)

	acc := newCRC16()
	acc.update(beginMarker[:])

	for _, b := range body {
		if b == escape {
			out = append(out, escape, escape)
			acc.updateByte(escape)
			acc.updateByte(escape)
			continue
		}
		out = append(out, b)
		acc.updateByte(b)
	}

	// Pad with zero bytes so the full frame (including the 8-byte end
	// sequence) lands on a 4-byte boundary; the pad count rides in the
	// end marker.
	pad := byte((4 - len(out)%4) % 4)
	for i := byte(0); i < pad; i++ {
		out = append(out, 0)
		acc.updateByte(0)
	}
	end := []byte{escape, escape, escape, escape, 0x1A, pad}
	acc.update(end)
	out = append(out, end...)

	var crcBytes [2]byte
	binary.BigEndian.PutUint16(crcBytes[:], acc.sum())
	out = append(out, crcBytes[:]...)

	return out
}

type framingError string

func (e framingError) Error() string { return string(e) }

const (
	errNoBeginMarker = framingError("sml: missing begin marker")
	errTruncatedEnd  = framingError("sml: missing or truncated end marker")
)
