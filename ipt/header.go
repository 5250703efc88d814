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

import "encoding/binary"

// HeaderSize is the number of bytes in an IPT header: cmd(2) seq(1) rsvd(1) length(4).
const HeaderSize = 8

// Header is the fixed 8-byte frame header. Length counts from the first
// header byte (inclusive of the header itself) to the end of the payload.
type Header struct {
	Command  Command
	Sequence uint8
	Reserved uint8
	Length   uint32
}

// BodyLen returns the number of payload bytes following the header.
func (h Header) BodyLen() int {
	if int(h.Length) < HeaderSize {
		return 0
	}
	return int(h.Length) - HeaderSize
}

func decodeHeader(b [HeaderSize]byte) Header {
	return Header{
		Command:  Command(binary.BigEndian.Uint16(b[0:2])),
		Sequence: b[2],
		Reserved: b[3],
		Length:   binary.BigEndian.Uint32(b[4:8]),
	}
}

func encodeHeader(h Header) [HeaderSize]byte {
	var b [HeaderSize]byte
	binary.BigEndian.PutUint16(b[0:2], uint16(h.Command))
	b[2] = h.Sequence
	b[3] = h.Reserved
	binary.BigEndian.PutUint32(b[4:8], h.Length)
	return b
}

// nextSequence advances seq through 1..=255, skipping 0.
func nextSequence(seq uint8) uint8 {
	if seq == 255 {
		return 1
	}
	return seq + 1
}
