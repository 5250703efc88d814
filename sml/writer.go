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

func encodeU8(v uint8) []byte  { return encodeScalar(TagUnsigned, []byte{v}) }
func encodeU32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return encodeScalar(TagUnsigned, b[:])
}
func encodeU16(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return encodeScalar(TagUnsigned, b[:])
}
func encodeU64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return encodeScalar(TagUnsigned, b[:])
}
func encodeI8(v int8) []byte { return encodeScalar(TagInt, []byte{byte(v)}) }

// encodeValue re-serializes an already-decoded Value tree, used for the
// RawBody pass-through variants.
func encodeValue(v *Value) []byte {
	if v == nil || v.Null {
		return []byte{0x00}
	}
	if v.Tag == TagList {
		elems := make([][]byte, len(v.Elements))
		for i, el := range v.Elements {
			elems[i] = encodeValue(el)
		}
		return encodeList(elems)
	}
	if v.Tag == TagOctetString {
		return encodeOctetString(v.Data)
	}
	return encodeScalar(v.Tag, v.Data)
}

func encodeBody(code Code, body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case OpenReq:
		return encodeList([][]byte{
			encodeOctetString([]byte(b.Codepage)),
			encodeOctetString([]byte(b.ClientID)),
			encodeOctetString([]byte(b.ReqFileID)),
			encodeOctetString([]byte(b.ServerID)),
			encodeOctetString([]byte(b.Username)),
			encodeOctetString([]byte(b.Password)),
			encodeU8(b.SMLVersion),
		}), nil
	case OpenRes:
		return encodeList([][]byte{
			encodeOctetString([]byte(b.Codepage)),
			encodeOctetString([]byte(b.ServerID)),
			encodeOctetString([]byte(b.ReqFileID)),
			encodeU32(b.RefTime),
			encodeU8(b.SMLVersion),
		}), nil
	case CloseReq:
		return encodeList(nil), nil
	case CloseRes:
		return encodeList(nil), nil
	case GetProfileListReq:
		return encodeList([][]byte{
			encodeOctetString([]byte(b.ServerID)),
			encodeOctetString([]byte(b.Username)),
			encodeOctetString([]byte(b.Password)),
			encodeOctetString(b.ObjectID[:]),
			encodeU32(b.StartTime),
			encodeU32(b.EndTime),
		}), nil
	case GetProfileListRes:
		periods := make([][]byte, len(b.Periods))
		for i, p := range b.Periods {
			periods[i] = encodeList([][]byte{
				encodeOctetString(p.OBIS[:]),
				encodeU8(p.Unit),
				encodeI8(p.Scaler),
				encodeOctetString(p.RawValue),
				encodeOctetString(p.Signature),
			})
		}
		return encodeList([][]byte{
			encodeOctetString([]byte(b.ServerID)),
			encodeU32(b.ActTime),
			encodeU32(b.RegPeriod),
			encodeOctetString(b.ProfilePath[:]),
			encodeU32(b.ValTime),
			encodeU64(b.Status),
			encodeList(periods),
			encodeOctetString(b.RawData),
			encodeOctetString(b.Signature),
		}), nil
	case GetListReq:
		return encodeList([][]byte{
			encodeOctetString([]byte(b.ClientID)),
			encodeOctetString([]byte(b.ServerID)),
			encodeOctetString([]byte(b.Username)),
			encodeOctetString([]byte(b.Password)),
			encodeOctetString([]byte(b.ListName)),
		}), nil
	case GetListRes:
		entries := make([][]byte, len(b.Entries))
		for i, e := range b.Entries {
			entries[i] = encodeList([][]byte{
				encodeOctetString(e.OBIS[:]),
				encodeU64(e.Status),
				encodeU32(e.ValTime),
				encodeU8(e.Unit),
				encodeI8(e.Scaler),
				encodeOctetString(e.RawValue),
				encodeOctetString(e.Signature),
			})
		}
		return encodeList([][]byte{
			encodeOctetString([]byte(b.ClientID)),
			encodeOctetString([]byte(b.ServerID)),
			encodeOctetString([]byte(b.ListName)),
			encodeU32(b.ActSensorTime),
			encodeList(entries),
			encodeOctetString(b.Signature),
			encodeU32(b.ActGatewayTime),
		}), nil
	case AttentionRes:
		return encodeList([][]byte{
			encodeOctetString([]byte(b.ServerID)),
			encodeOctetString(b.AttentionNo[:]),
			encodeOctetString([]byte(b.Message)),
			encodeValue(b.Details),
		}), nil
	case RawBody:
		return encodeValue(b.Content), nil
	default:
		return nil, smferr.New(smferr.KindFraming, "sml.encodeBody", errUnsupportedBody)
	}
}

// Encode assembles msg into a fully framed, CRC-terminated SML exchange.
func Encode(msg Message) ([]byte, error) {
	content, err := encodeBody(msg.Code, msg.Body)
	if err != nil {
		return nil, err
	}

	var codeBytes [4]byte
	binary.BigEndian.PutUint32(codeBytes[:], uint32(msg.Code))
	bodyList := encodeList([][]byte{
		encodeScalar(TagUnsigned, codeBytes[:]),
		content,
	})

	top := encodeList([][]byte{
		encodeOctetString([]byte(msg.Trx)),
		encodeU8(msg.GroupNo),
		encodeU8(msg.AbortOnError),
		bodyList,
		encodeU16(0), // CRC placeholder: the real CRC is computed over the frame, not this field
	})

	return frame(top), nil
}

type bodyError string

func (e bodyError) Error() string { return string(e) }

const errUnsupportedBody = bodyError("sml: unsupported body variant for encoding")
