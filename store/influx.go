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

import (
	"context"
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"golang.org/x/xerrors"

	"github.com/smf-gw/smf/obis"
)

// InfluxStore generalizes an AddPoints -> write.Point
// pipeline from "one hardcoded measurement" to "one point per profile
// push group": each Insert becomes a point tagged by meter/profile/OBIS
// with raw+scaler+unit+status fields, so the logical value can still be
// reconstructed exactly via obis.ScaleValue downstream.
type InfluxStore struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	queryAPI    api.QueryAPI
	org, bucket string
}

// NewInfluxStore connects to an InfluxDB instance with DefaultOptions
// plus optional TLS, configured by the caller.
func NewInfluxStore(url, token, org, bucket string, opts *influxdb2.Options) *InfluxStore {
	if opts == nil {
		opts = influxdb2.DefaultOptions()
	}
	client := influxdb2.NewClientWithOptions(url, token, opts)
	return &InfluxStore{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
		org:      org,
		bucket:   bucket,
	}
}

func (s *InfluxStore) Close() { s.client.Close() }

func meterTag(meter [9]byte) string {
	return fmt.Sprintf("%x", meter)
}

// Insert writes one point per call. Influx itself dedups identical
// (measurement, tags, timestamp) points on write, which combined with the
// ts-index-derived timestamp gives the same idempotency-on-(meter,
// profile, ts-index, OBIS) guarantee BoltStore gets from an overwriting
// Put.
func (s *InfluxStore) Insert(ctx context.Context, meter [9]byte, profile obis.Profile, tsIndex int64, row Row) error {
	tags := map[string]string{
		"meter":   meterTag(meter),
		"profile": profile.Name(),
		"obis":    row.Code.String(),
	}
	fields := map[string]interface{}{
		"raw":    row.Value,
		"scaler": int64(row.Scaler),
		"unit":   int64(row.Unit),
		"status": int64(row.Status),
		"value":  obis.ScaleValue(row.Value, row.Scaler),
	}
	pt := write.NewPoint("readings", tags, fields, obis.FromIndex(profile, tsIndex))
	if err := s.writeAPI.WritePoint(ctx, pt); err != nil {
		return xerrors.Errorf("writeAPI.WritePoint: %w", err)
	}
	return nil
}

// SelectWindow runs a Flux range+group query and reassembles rows into
// ts-index-keyed Groups. This is a best-effort bridge between Influx's
// table model and the ascending-ts-index stream select_window specifies;
// BoltStore remains the default backend for push jobs that need a tight
// select_window latency bound.
func (s *InfluxStore) SelectWindow(ctx context.Context, meter [9]byte, profile obis.Profile, from, to int64) (<-chan Group, error) {
	out := make(chan Group, 16)

	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == "readings" and r.meter == %q and r.profile == %q)
`, s.bucket,
		obis.FromIndex(profile, from).Format(time.RFC3339),
		obis.FromIndex(profile, to+1).Format(time.RFC3339),
		meterTag(meter), profile.Name())

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, xerrors.Errorf("queryAPI.Query: %w", err)
	}

	go func() {
		defer close(out)
		groups := map[int64]*Group{}
		var order []int64
		for result.Next() {
			rec := result.Record()
			ts := obis.ToIndex(profile, rec.Time())
			g, ok := groups[ts]
			if !ok {
				g = &Group{TSIndex: ts}
				groups[ts] = g
				order = append(order, ts)
			}
			// Field-by-field records: only accumulate on the canonical
			// "raw" field to avoid double counting across field rows.
			if rec.Field() != "raw" {
				continue
			}
			var code obis.Code
			if tag, ok := rec.ValueByKey("obis").(string); ok {
				if parsed, err := obis.Parse(tag); err == nil {
					code = parsed
				}
			}
			raw, _ := rec.Value().(int64)
			g.Rows = append(g.Rows, Row{Code: code, Value: raw})
		}
		sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
		for _, ts := range order {
			select {
			case out <- *groups[ts]:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *InfluxStore) GenerateOpLog(ctx context.Context, entry OpLogEntry) error {
	tags := map[string]string{
		"target": entry.Target,
		"peer":   entry.Peer,
		"server": entry.Server,
	}
	fields := map[string]interface{}{
		"status":  int64(entry.Status),
		"code":    int64(entry.Code),
		"nr":      int64(entry.Nr),
		"message": entry.Message,
	}
	t := entry.Time
	if t.IsZero() {
		t = time.Now()
	}
	pt := write.NewPoint("op_log", tags, fields, t)
	if err := s.writeAPI.WritePoint(ctx, pt); err != nil {
		return xerrors.Errorf("writeAPI.WritePoint: %w", err)
	}
	return nil
}

// MeterConfig/PutMeterConfig are not naturally time-series data; Influx
// deployments are expected to pair InfluxStore with BoltStore for the
// configuration side.
func (s *InfluxStore) MeterConfig(ctx context.Context, serverID [9]byte) (MeterConfig, bool, error) {
	return MeterConfig{}, false, xerrors.New("store: InfluxStore does not implement meter configuration storage")
}

func (s *InfluxStore) PutMeterConfig(ctx context.Context, cfg MeterConfig) error {
	return xerrors.New("store: InfluxStore does not implement meter configuration storage")
}
