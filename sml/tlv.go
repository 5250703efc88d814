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

import "github.com/smf-gw/smf/smferr"

// Tag is the TLV type nibble: STRING, BOOLEAN, signed/unsigned integers,
// LIST(n), OPTIONAL(null), EOM.
type Tag byte

const (
	TagOctetString Tag = 0x0
	TagBoolean     Tag = 0x4
	TagInt         Tag = 0x5
	TagUnsigned    Tag = 0x6
	TagList        Tag = 0x7
)

// Value is a decoded TLV token. List values hold their elements in
// Elements; scalar values hold their raw bytes in Data (big-endian,
// caller interprets per expected width).
type Value struct {
	Tag      Tag
	Null     bool // OPTIONAL(null): an empty octet string used as "absent"
	Data     []byte
	Elements []*Value
}

// tokenizer performs recursive-descent TLV decoding over a fully
// unescaped message body: the first byte is (type<<4)|length,
// continuation bytes (high bit set) extend the length nibble-wise.
type tokenizer struct {
	b   []byte
	pos int
}

func (t *tokenizer) next() (*Value, error) {
	if t.pos >= len(t.b) {
		return nil, smferr.New(smferr.KindFraming, "sml.tokenizer.next", errShortToken)
	}

	first := t.b[t.pos]
	t.pos++

	if first == 0x00 {
		return &Value{Tag: TagOctetString, Null: true}, nil
	}

	tag := Tag((first >> 4) & 0x7)
	length := int(first & 0x0F)

	for first&0x80 != 0 {
		if t.pos >= len(t.b) {
			return nil, smferr.New(smferr.KindFraming, "sml.tokenizer.next", errShortToken)
		}
		first = t.b[t.pos]
		t.pos++
		length = length<<4 | int(first&0x0F)
	}

	if tag == TagList {
		v := &Value{Tag: TagList, Elements: make([]*Value, 0, length)}
		for i := 0; i < length; i++ {
			el, err := t.next()
			if err != nil {
				return nil, err
			}
			v.Elements = append(v.Elements, el)
		}
		return v, nil
	}

	// Scalar: length counts one header byte plus the payload, so the
	// payload is length-1 bytes; the extra bytes of a multi-byte length
	// header are not subtracted, which matches how encodeOctetString and
	// encodeScalar write the length.
	payloadLen := length - 1
	if payloadLen < 0 {
		payloadLen = 0
	}
	if t.pos+payloadLen > len(t.b) {
		return nil, smferr.New(smferr.KindFraming, "sml.tokenizer.next", errShortToken)
	}
	data := append([]byte(nil), t.b[t.pos:t.pos+payloadLen]...)
	t.pos += payloadLen

	return &Value{Tag: tag, Data: data}, nil
}

// decodeTLV parses exactly one top-level Value (normally a list) from b.
func decodeTLV(b []byte) (*Value, error) {
	t := &tokenizer{b: b}
	return t.next()
}

type tlvError string

func (e tlvError) Error() string { return string(e) }

const errShortToken = tlvError("sml: truncated TLV token")

// --- encoding ---

func encodeHeaderByte(tag Tag, length int) []byte {
	if length < 16 {
		return []byte{byte(tag)<<4 | byte(length)}
	}
	// Length doesn't fit a single nibble: emit continuation bytes,
	// low nibble first is not how SML does it — emit most-significant
	// nibble group first, all but the last with the continuation bit set.
	var nibbles []byte
	n := length
	for n > 0 {
		nibbles = append([]byte{byte(n & 0x0F)}, nibbles...)
		n >>= 4
	}
	out := make([]byte, 0, len(nibbles)+1)
	out = append(out, byte(tag)<<4|0x80|nibbles[0])
	for _, nb := range nibbles[1 : len(nibbles)-1] {
		out = append(out, 0x80|nb)
	}
	out = append(out, nibbles[len(nibbles)-1])
	return out
}

func encodeOctetString(data []byte) []byte {
	if len(data) == 0 {
		return []byte{0x00}
	}
	out := encodeHeaderByte(TagOctetString, len(data)+1)
	return append(out, data...)
}

func encodeScalar(tag Tag, data []byte) []byte {
	out := encodeHeaderByte(tag, len(data)+1)
	return append(out, data...)
}

func encodeList(elems [][]byte) []byte {
	out := encodeHeaderByte(TagList, len(elems))
	for _, e := range elems {
		out = append(out, e...)
	}
	return out
}
