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

import "github.com/smf-gw/smf/scramble"

// Frame is a fully decoded IPT command: its header plus a typed body.
// Body is nil for the zero-body commands (watchdog, close-connection,
// protocol-version request, ...).
type Frame struct {
	Header Header
	Body   interface{}
}

// ControlEvent is the out-of-band signal type Parser.Feed returns beside
// its frames. The parser never produces one: inside a payload the second
// escape of a run always completes a doubled pair, so a run of five
// escapes decodes as two literal 0x1B bytes followed by a pending escape.
type ControlEvent struct{}

// UnknownCmd carries the raw command code of an unregistered command, so
// the stream can resynchronize at the next frame boundary without being
// dropped silently.
type UnknownCmd struct {
	Code uint16
}

// --- control channel ---

type LoginPublicReq struct {
	Name, Pwd string
}

type LoginPublicRes struct {
	Response uint8
	Watchdog uint16
	Redirect string
}

type LoginScrambledReq struct {
	Name, Pwd string
	Key       scramble.Key
}

type LoginScrambledRes struct {
	Response uint8
	Watchdog uint16
	Redirect string
}

type LogoutReq struct {
	Reason uint8
}

type LogoutRes struct {
	Response uint8
}

type RegisterTargetReq struct {
	Target     string
	PacketSize uint16
	WindowSize uint8
}

type RegisterTargetRes struct {
	Response uint8
	Channel  uint32
}

type DeregisterTargetReq struct {
	Target string
}

type DeregisterTargetRes struct {
	Response uint8
	Target   string
}

// --- transport channel ---

type OpenPushChannelReq struct {
	Target, Account, Number, Version, DeviceID string
	Timeout                                    uint16
}

type OpenPushChannelRes struct {
	Response   uint8
	Channel    uint32
	Source     uint32
	PacketSize uint16
	WindowSize uint8
	Status     uint8
	Count      uint32
}

type ClosePushChannelReq struct {
	Channel uint32
}

type ClosePushChannelRes struct {
	Response uint8
	Channel  uint32
}

type PushDataTransferReq struct {
	Channel, Source uint32
	Status, Block   uint8
	Data            []byte
}

type PushDataTransferRes struct {
	Response        uint8
	Channel, Source uint32
	Status, Block   uint8
}

type OpenConnectionReq struct {
	Number string
}

type OpenConnectionRes struct {
	Response uint8
}

type CloseConnectionRes struct {
	Response uint8
}

// --- application channel ---

type ProtocolVersionRes struct {
	Response uint8
}

type SoftwareVersionRes struct {
	Version string
}

type DeviceIdentifierRes struct {
	ID string
}

type NetworkStatusRes struct {
	DeviceType uint8
	Status     [5]uint32
	IMSI, IMEI string
}

type IPStatisticsRes struct {
	ResponseType uint8
	RX, TX       uint64
}

type DeviceAuthRes struct {
	Account, Pwd, Number, Descr string
}

type DeviceTimeRes struct {
	Seconds uint32
}

type PushTargetEchoRes struct {
	Channel uint32
	Data    []byte
}

type TracerouteRes struct {
	Index, HopCount uint16
}
