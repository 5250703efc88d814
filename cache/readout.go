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

// Package cache implements the readout cache: the in-memory store of raw
// and decoded meter readouts, with observer fan-out to brokers and
// profile-storage tasks.
package cache

import (
	"time"

	"github.com/google/uuid"

	"github.com/smf-gw/smf/obis"
)

// Readout is one header row of the _Readout table.
type Readout struct {
	PK           uuid.UUID
	ServerID     [9]byte
	Manufacturer uint16
	Version      uint8
	Medium       uint8
	DeviceID     uint32
	FrameType    uint8
	Size         int
	Payload      []byte
	ReceivedAt   time.Time
}

// ReadoutData is one value row of the _ReadoutData table, keyed by
// (pk, obis).
type ReadoutData struct {
	PK     uuid.UUID
	Code   obis.Code
	Raw    string // decimal string per obis.ScaleValue
	Type   string // type-tag, e.g. "i64", "bcd", "string"
	Scaler int8
	Unit   uint8
}
