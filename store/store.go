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

// Package store defines the profile storage contract: a
// time-indexed per-profile insertion, window-aligned retrieval for push
// jobs, and append-only operational logging. Two concrete backends are
// provided: BoltStore (go.etcd.io/bbolt, the default) and InfluxStore
// (github.com/influxdata/influxdb-client-go/v2).
package store

import (
	"context"

	"github.com/smf-gw/smf/obis"
)

// Row is one stored reading at a given ts-index.
type Row struct {
	Code   obis.Code
	Value  int64
	Scaler int8
	Unit   uint8
	Status uint32
}

// Group is all rows sharing a ts-index, the unit SelectWindow yields:
// rows are grouped by ts-index and delivered in ascending order.
type Group struct {
	TSIndex int64
	Rows    []Row
}

// MeterConfig is the meter-configuration row.
type MeterConfig struct {
	ServerID            [9]byte
	Manufacturer        uint16
	Status              uint32
	Version             uint8
	Medium              uint8
	AESKey              *[16]byte
	User, Pwd           string
	Blocked             bool
	MaxReadoutFrequency int64 // nanoseconds, time.Duration
}

// Store is the abstract profile-storage contract core components depend
// on. Insert is idempotent on (meter, profile, ts-index, OBIS): a
// re-insert updates Value/Scaler/Unit/Status but never creates a
// duplicate row.
type Store interface {
	Insert(ctx context.Context, meter [9]byte, profile obis.Profile, tsIndex int64, row Row) error
	SelectWindow(ctx context.Context, meter [9]byte, profile obis.Profile, from, to int64) (<-chan Group, error)
	GenerateOpLog(ctx context.Context, entry OpLogEntry) error

	MeterConfig(ctx context.Context, serverID [9]byte) (MeterConfig, bool, error)
	PutMeterConfig(ctx context.Context, cfg MeterConfig) error
}
