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

package store

import "time"

// OpLogCode is the closed set of operational-log reason codes; code 16
// marks a failed push operation.
type OpLogCode uint16

const (
	LogCodeAuthFailed        OpLogCode = 1
	LogCodeUnknownCommand    OpLogCode = 4
	LogCodeDecryptFailed     OpLogCode = 9
	LogCodePushChannelFailed OpLogCode = 16
)

func (c OpLogCode) String() string {
	switch c {
	case LogCodeAuthFailed:
		return "auth failed"
	case LogCodeUnknownCommand:
		return "unknown command"
	case LogCodeDecryptFailed:
		return "decrypt failed"
	case LogCodePushChannelFailed:
		return "Push – operation not successful"
	default:
		return "unknown"
	}
}

// OpLogEntry is an append-only operational log row: status, code, the
// peer and server involved, the push target, push-op number, and a
// free-text message.
type OpLogEntry struct {
	Time    time.Time
	Status  uint8
	Code    OpLogCode
	Peer    string
	Server  string
	Target  string
	Nr      uint8
	Message string
}
