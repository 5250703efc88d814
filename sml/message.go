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

// Code identifies the body variant of an SML message, from the closed
// set.
type Code uint32

const (
	CodeOpenReq             Code = 0x0100
	CodeOpenRes             Code = 0x0101
	CodeCloseReq            Code = 0x0200
	CodeCloseRes            Code = 0x0201
	CodeGetProfilePackReq   Code = 0x0300
	CodeGetProfilePackRes   Code = 0x0301
	CodeGetProfileListReq   Code = 0x0400
	CodeGetProfileListRes   Code = 0x0401
	CodeGetListReq          Code = 0x0500
	CodeGetListRes          Code = 0x0501
	CodeGetProcParameterReq Code = 0x0600
	CodeGetProcParameterRes Code = 0x0601
	CodeSetProcParameterReq Code = 0x0700
	CodeSetProcParameterRes Code = 0x0701
	CodeAttentionRes        Code = 0xFF01
)

// Message is the 5-element SML message shape: [trx, group-no,
// abort-on-error, body, crc16]. Body holds one of the typed structs
// below, keyed by Code.
type Message struct {
	Trx          string
	GroupNo      uint8
	AbortOnError uint8
	Code         Code
	Body         interface{}
	CRC16        uint16
	CRCValid     bool
}

type OpenReq struct {
	Codepage   string
	ClientID   string
	ReqFileID  string
	ServerID   string
	Username   string
	Password   string
	SMLVersion uint8
}

type OpenRes struct {
	Codepage   string
	ServerID   string
	ReqFileID  string
	RefTime    uint32
	SMLVersion uint8
}

type CloseReq struct{}

type CloseRes struct{}

// ProfilePeriod is one (OBIS, unit, scaler, value, value-signature) entry
// of a get.profile.list.response period-list.
type ProfilePeriod struct {
	OBIS      [6]byte
	Unit      uint8
	Scaler    int8
	RawValue  []byte
	Signature []byte
}

type GetProfileListReq struct {
	ServerID  string
	Username  string
	Password  string
	ObjectID  [6]byte
	StartTime uint32
	EndTime   uint32
}

// GetProfileListRes carries the fields a get.profile.list.response
// returns: server-id, act-time, reg-period, profile-path, val-time,
// status, period-list, raw-data, signature.
type GetProfileListRes struct {
	ServerID    string
	ActTime     uint32
	RegPeriod   uint32
	ProfilePath [6]byte
	ValTime     uint32
	Status      uint64
	Periods     []ProfilePeriod
	RawData     []byte
	Signature   []byte
}

type GetListReq struct {
	ClientID string
	ServerID string
	Username string
	Password string
	ListName string
}

// ListEntry is one row of a get.list.response val-list: the live-reading
// counterpart of a ProfilePeriod, carrying its own status and value time
// since a live list is not bound to a profile grid.
type ListEntry struct {
	OBIS      [6]byte
	Status    uint64
	ValTime   uint32
	Unit      uint8
	Scaler    int8
	RawValue  []byte
	Signature []byte
}

type GetListRes struct {
	ClientID       string
	ServerID       string
	ListName       string
	ActSensorTime  uint32
	Entries        []ListEntry
	Signature      []byte
	ActGatewayTime uint32
}

// AttentionRes reports a peer-side processing problem: the attention
// number is an OBIS code from the attention range, optionally followed
// by a human-readable message and a raw details tree.
type AttentionRes struct {
	ServerID    string
	AttentionNo [6]byte
	Message     string
	Details     *Value
}

// RawBody is the fallback for variants whose content is carried
// untouched: get.profile.pack.{req,res}, get.proc.parameter.{req,res},
// set.proc.parameter.{req,res}.
type RawBody struct {
	Content *Value
}

// Decode parses a complete framed SML exchange into a Message. A CRC
// mismatch is reported via Message.CRCValid rather than returned as an
// error: the decoded content is still delivered.
func Decode(raw []byte) (*Message, error) {
	body, crcOK, err := unframe(raw)
	if err != nil {
		return nil, err
	}

	top, err := decodeTLV(body)
	if err != nil {
		return nil, smferr.New(smferr.KindFraming, "sml.Decode", err)
	}
	if top.Tag != TagList || len(top.Elements) != 5 {
		return nil, smferr.New(smferr.KindFraming, "sml.Decode", errBadShape)
	}

	msg := &Message{
		Trx:          string(top.Elements[0].Data),
		GroupNo:      scalarU8(top.Elements[1]),
		AbortOnError: scalarU8(top.Elements[2]),
		CRCValid:     crcOK,
	}

	bodyList := top.Elements[3]
	if bodyList.Tag != TagList || len(bodyList.Elements) != 2 {
		return nil, smferr.New(smferr.KindFraming, "sml.Decode", errBadShape)
	}
	msg.Code = Code(scalarU32(bodyList.Elements[0]))
	content := bodyList.Elements[1]

	msg.Body, err = decodeBody(msg.Code, content)
	if err != nil {
		return nil, err
	}

	msg.CRC16 = scalarU16(top.Elements[4])

	return msg, nil
}

func decodeBody(code Code, content *Value) (interface{}, error) {
	switch code {
	case CodeOpenReq:
		if len(content.Elements) < 6 {
			return nil, smferr.New(smferr.KindFraming, "sml.decodeBody", errBadShape)
		}
		return OpenReq{
			Codepage:   string(content.Elements[0].Data),
			ClientID:   string(content.Elements[1].Data),
			ReqFileID:  string(content.Elements[2].Data),
			ServerID:   string(content.Elements[3].Data),
			Username:   string(content.Elements[4].Data),
			Password:   string(content.Elements[5].Data),
			SMLVersion: scalarU8(lastOr(content.Elements, 6)),
		}, nil
	case CodeOpenRes:
		if len(content.Elements) < 4 {
			return nil, smferr.New(smferr.KindFraming, "sml.decodeBody", errBadShape)
		}
		return OpenRes{
			Codepage:   string(content.Elements[0].Data),
			ServerID:   string(content.Elements[1].Data),
			ReqFileID:  string(content.Elements[2].Data),
			RefTime:    scalarU32(content.Elements[3]),
			SMLVersion: scalarU8(lastOr(content.Elements, 4)),
		}, nil
	case CodeCloseReq:
		return CloseReq{}, nil
	case CodeCloseRes:
		return CloseRes{}, nil
	case CodeGetProfileListReq:
		if len(content.Elements) < 6 {
			return nil, smferr.New(smferr.KindFraming, "sml.decodeBody", errBadShape)
		}
		var obis [6]byte
		copy(obis[:], content.Elements[3].Data)
		return GetProfileListReq{
			ServerID:  string(content.Elements[0].Data),
			Username:  string(content.Elements[1].Data),
			Password:  string(content.Elements[2].Data),
			ObjectID:  obis,
			StartTime: scalarU32(content.Elements[4]),
			EndTime:   scalarU32(content.Elements[5]),
		}, nil
	case CodeGetProfileListRes:
		return decodeProfileListRes(content)
	case CodeGetListReq:
		if len(content.Elements) < 5 {
			return nil, smferr.New(smferr.KindFraming, "sml.decodeBody", errBadShape)
		}
		return GetListReq{
			ClientID: string(content.Elements[0].Data),
			ServerID: string(content.Elements[1].Data),
			Username: string(content.Elements[2].Data),
			Password: string(content.Elements[3].Data),
			ListName: string(content.Elements[4].Data),
		}, nil
	case CodeGetListRes:
		return decodeGetListRes(content)
	case CodeAttentionRes:
		if len(content.Elements) < 3 {
			return nil, smferr.New(smferr.KindFraming, "sml.decodeBody", errBadShape)
		}
		var no [6]byte
		copy(no[:], content.Elements[1].Data)
		res := AttentionRes{
			ServerID:    string(content.Elements[0].Data),
			AttentionNo: no,
			Message:     string(content.Elements[2].Data),
		}
		if len(content.Elements) > 3 {
			res.Details = content.Elements[3]
		}
		return res, nil
	default:
		return RawBody{Content: content}, nil
	}
}

func decodeProfileListRes(content *Value) (GetProfileListRes, error) {
	if len(content.Elements) < 8 {
		return GetProfileListRes{}, smferr.New(smferr.KindFraming, "sml.decodeProfileListRes", errBadShape)
	}
	var path [6]byte
	copy(path[:], content.Elements[3].Data)

	res := GetProfileListRes{
		ServerID:    string(content.Elements[0].Data),
		ActTime:     scalarU32(content.Elements[1]),
		RegPeriod:   scalarU32(content.Elements[2]),
		ProfilePath: path,
		ValTime:     scalarU32(content.Elements[4]),
		Status:      scalarU64(content.Elements[5]),
		RawData:     content.Elements[len(content.Elements)-2].Data,
		Signature:   content.Elements[len(content.Elements)-1].Data,
	}

	periodList := content.Elements[6]
	for _, el := range periodList.Elements {
		if len(el.Elements) < 5 {
			continue
		}
		var obis [6]byte
		copy(obis[:], el.Elements[0].Data)
		res.Periods = append(res.Periods, ProfilePeriod{
			OBIS:      obis,
			Unit:      scalarU8(el.Elements[1]),
			Scaler:    int8(scalarU8(el.Elements[2])),
			RawValue:  el.Elements[3].Data,
			Signature: el.Elements[4].Data,
		})
	}

	return res, nil
}

func decodeGetListRes(content *Value) (GetListRes, error) {
	if len(content.Elements) < 7 {
		return GetListRes{}, smferr.New(smferr.KindFraming, "sml.decodeGetListRes", errBadShape)
	}
	res := GetListRes{
		ClientID:       string(content.Elements[0].Data),
		ServerID:       string(content.Elements[1].Data),
		ListName:       string(content.Elements[2].Data),
		ActSensorTime:  scalarU32(content.Elements[3]),
		Signature:      content.Elements[5].Data,
		ActGatewayTime: scalarU32(content.Elements[6]),
	}
	for _, el := range content.Elements[4].Elements {
		if len(el.Elements) < 7 {
			continue
		}
		var code [6]byte
		copy(code[:], el.Elements[0].Data)
		res.Entries = append(res.Entries, ListEntry{
			OBIS:      code,
			Status:    scalarU64(el.Elements[1]),
			ValTime:   scalarU32(el.Elements[2]),
			Unit:      scalarU8(el.Elements[3]),
			Scaler:    int8(scalarU8(el.Elements[4])),
			RawValue:  el.Elements[5].Data,
			Signature: el.Elements[6].Data,
		})
	}
	return res, nil
}

func lastOr(elems []*Value, idx int) *Value {
	if idx < len(elems) {
		return elems[idx]
	}
	return &Value{}
}

func scalarU8(v *Value) uint8 {
	if len(v.Data) == 0 {
		return 0
	}
	return v.Data[len(v.Data)-1]
}

func scalarU32(v *Value) uint32 {
	var b [4]byte
	copy(b[4-len(v.Data):], v.Data)
	return binary.BigEndian.Uint32(b[:])
}

func scalarU16(v *Value) uint16 {
	var b [2]byte
	copy(b[2-len(v.Data):], v.Data)
	return binary.BigEndian.Uint16(b[:])
}

func scalarU64(v *Value) uint64 {
	var b [8]byte
	copy(b[8-len(v.Data):], v.Data)
	return binary.BigEndian.Uint64(b[:])
}

type shapeError string

func (e shapeError) Error() string { return string(e) }

const errBadShape = shapeError("sml: message does not match the 5-element shape")
