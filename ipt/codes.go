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

// Package ipt implements the scrambled, length-prefixed IPT transport: a
// closed registry of command frames correlated by sequence number, with a
// runtime-negotiated XOR scramble key rotated in at login.
package ipt

// Command is one of the closed set of IPT command codes. The registry is
// closed: an unrecognized code is reported as Unknown, never guessed at.
type Command uint16

// Command codes. Response codes are the request code with the top bit
// cleared.
const (
	CtrlReqLoginPublic    Command = 0xC001
	CtrlResLoginPublic    Command = 0x4001
	CtrlReqLoginScrambled Command = 0xC002
	CtrlResLoginScrambled Command = 0x4002

	CtrlReqLogout Command = 0xC003
	CtrlResLogout Command = 0x4003

	CtrlReqDeregisterTarget Command = 0xC005
	CtrlResDeregisterTarget Command = 0x4005

	CtrlReqWatchdog Command = 0xC006
	CtrlResWatchdog Command = 0x4006

	CtrlReqRegisterTarget Command = 0xC009
	CtrlResRegisterTarget Command = 0x4009

	TPReqOpenPushChannel  Command = 0x9000
	TPResOpenPushChannel  Command = 0x1000
	TPReqClosePushChannel Command = 0x9001
	TPResClosePushChannel Command = 0x1001
	TPReqPushdataTransfer Command = 0x9002
	TPResPushdataTransfer Command = 0x1002
	TPReqOpenConnection   Command = 0x9003
	TPResOpenConnection   Command = 0x1003
	TPReqCloseConnection  Command = 0x9004
	TPResCloseConnection  Command = 0x1004

	AppReqProtocolVersion    Command = 0xA001
	AppResProtocolVersion    Command = 0x2001
	AppReqSoftwareVersion    Command = 0xA002
	AppResSoftwareVersion    Command = 0x2002
	AppReqDeviceIdentifier   Command = 0xA003
	AppResDeviceIdentifier   Command = 0x2003
	AppReqNetworkStatus      Command = 0xA004
	AppResNetworkStatus      Command = 0x2004
	AppReqIPStatistics       Command = 0xA005
	AppResIPStatistics       Command = 0x2005
	AppReqDeviceAuth         Command = 0xA006
	AppResDeviceAuth         Command = 0x2006
	AppReqDeviceTime         Command = 0xA007
	AppResDeviceTime         Command = 0x2007
	AppReqPushTargetEcho     Command = 0xA008
	AppResPushTargetEcho     Command = 0x2008
	AppReqTraceroute         Command = 0xA009
	AppResTraceroute         Command = 0x2009
	AppResPushTargetNameList Command = 0x200A

	// Unknown is never decoded directly; it is the synthetic code attached
	// to an ipt.unknown.cmd event carrying the raw unrecognized value.
	Unknown Command = 0x7FFF
)

// zeroBody is the set of commands with no payload: they complete as soon
// as the 8-byte header has been read.
var zeroBody = map[Command]bool{
	TPReqCloseConnection:   true,
	AppReqProtocolVersion:  true,
	AppReqSoftwareVersion:  true,
	AppReqDeviceIdentifier: true,
	AppReqNetworkStatus:    true,
	AppReqIPStatistics:     true,
	AppReqDeviceAuth:       true,
	AppReqDeviceTime:       true,
	AppReqPushTargetEcho:   true,
	AppReqTraceroute:       true,
	CtrlReqWatchdog:        true,
	CtrlResWatchdog:        true,
}

// known reports whether cmd is a registered command code.
func known(cmd Command) bool {
	switch cmd {
	case CtrlReqLoginPublic, CtrlResLoginPublic,
		CtrlReqLoginScrambled, CtrlResLoginScrambled,
		CtrlReqLogout, CtrlResLogout,
		CtrlReqRegisterTarget, CtrlResRegisterTarget,
		CtrlReqDeregisterTarget, CtrlResDeregisterTarget,
		CtrlReqWatchdog, CtrlResWatchdog,
		TPReqOpenPushChannel, TPResOpenPushChannel,
		TPReqClosePushChannel, TPResClosePushChannel,
		TPReqPushdataTransfer, TPResPushdataTransfer,
		TPReqOpenConnection, TPResOpenConnection,
		TPReqCloseConnection, TPResCloseConnection,
		AppReqProtocolVersion, AppResProtocolVersion,
		AppReqSoftwareVersion, AppResSoftwareVersion,
		AppReqDeviceIdentifier, AppResDeviceIdentifier,
		AppReqNetworkStatus, AppResNetworkStatus,
		AppReqIPStatistics, AppResIPStatistics,
		AppReqDeviceAuth, AppResDeviceAuth,
		AppReqDeviceTime, AppResDeviceTime,
		AppReqPushTargetEcho, AppResPushTargetEcho,
		AppReqTraceroute, AppResTraceroute,
		AppResPushTargetNameList:
		return true
	default:
		return false
	}
}
