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
	"encoding/binary"
	"strings"

	"github.com/vmihailenco/msgpack"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"

	"github.com/smf-gw/smf/obis"
)

// BoltStore is the default Store backend, go.etcd.io/bbolt with
// msgpack-encoded values, generalized from "one bucket of meter state"
// to one bucket per profile, mirroring a TStorage_<OBIS> layout.
type BoltStore struct {
	db      *bbolt.DB
	onError func(error)
}

// OnError registers a callback invoked with background SelectWindow
// errors, which can't be returned through the channel's result type.
func (s *BoltStore) OnError(fn func(error)) { s.onError = fn }

var (
	bucketMeterConfig = []byte("meter_config")
	bucketOpLog        = []byte("op_log")
)

// OpenBolt opens (creating if absent) a BoltStore at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, xerrors.Errorf("bbolt.Open: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeterConfig); err != nil {
			return xerrors.Errorf("tx.CreateBucketIfNotExists: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketOpLog); err != nil {
			return xerrors.Errorf("tx.CreateBucketIfNotExists: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func profileBucketName(p obis.Profile) []byte {
	return []byte("storage_" + p.Name())
}

// storageKey is meter(9) || tsIndex(8 BE) || obis(6): sorted byte order
// groups a meter's rows by ascending ts-index, and within a ts-index by
// OBIS code, which is exactly the grouping select_window needs.
func storageKey(meter [9]byte, tsIndex int64, code obis.Code) []byte {
	key := make([]byte, 9+8+6)
	copy(key[0:9], meter[:])
	binary.BigEndian.PutUint64(key[9:17], uint64(tsIndex))
	copy(key[17:23], code[:])
	return key
}

// Insert is idempotent on (meter, profile, ts-index, OBIS): Put at the
// same key overwrites any prior value rather than duplicating it.
func (s *BoltStore) Insert(ctx context.Context, meter [9]byte, profile obis.Profile, tsIndex int64, row Row) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(profileBucketName(profile))
		if err != nil {
			return xerrors.Errorf("tx.CreateBucketIfNotExists: %w", err)
		}
		val, err := msgpack.Marshal(row)
		if err != nil {
			return xerrors.Errorf("msgpack.Marshal: %w", err)
		}
		if err := bkt.Put(storageKey(meter, tsIndex, row.Code), val); err != nil {
			return xerrors.Errorf("bkt.Put: %w", err)
		}
		return nil
	})
}

// SelectWindow streams Groups for meter/profile with from <= ts-index <=
// to, in ascending ts-index order, on a buffered channel. The channel is
// closed when the window has been fully read or ctx is cancelled.
func (s *BoltStore) SelectWindow(ctx context.Context, meter [9]byte, profile obis.Profile, from, to int64) (<-chan Group, error) {
	out := make(chan Group, 16)

	go func() {
		defer close(out)

		err := s.db.View(func(tx *bbolt.Tx) error {
			bkt := tx.Bucket(profileBucketName(profile))
			if bkt == nil {
				return nil
			}
			c := bkt.Cursor()

			prefix := make([]byte, 9+8)
			copy(prefix[0:9], meter[:])
			binary.BigEndian.PutUint64(prefix[9:17], uint64(from))

			var current Group
			haveCurrent := false

			for k, v := c.Seek(prefix); k != nil; k, v = c.Next() {
				if len(k) < 23 || string(k[0:9]) != string(meter[:]) {
					break
				}
				ts := int64(binary.BigEndian.Uint64(k[9:17]))
				if ts > to {
					break
				}
				var row Row
				if err := msgpack.Unmarshal(v, &row); err != nil {
					return xerrors.Errorf("msgpack.Unmarshal: %w", err)
				}

				if haveCurrent && current.TSIndex != ts {
					select {
					case out <- current:
					case <-ctx.Done():
						return ctx.Err()
					}
					current = Group{}
					haveCurrent = false
				}
				if !haveCurrent {
					current = Group{TSIndex: ts}
					haveCurrent = true
				}
				current.Rows = append(current.Rows, row)
			}
			if haveCurrent {
				select {
				case out <- current:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil && s.onError != nil {
			s.onError(err)
		}
	}()

	return out, nil
}

func (s *BoltStore) GenerateOpLog(ctx context.Context, entry OpLogEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketOpLog)
		seq, err := bkt.NextSequence()
		if err != nil {
			return xerrors.Errorf("bkt.NextSequence: %w", err)
		}
		val, err := msgpack.Marshal(entry)
		if err != nil {
			return xerrors.Errorf("msgpack.Marshal: %w", err)
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		if err := bkt.Put(key[:], val); err != nil {
			return xerrors.Errorf("bkt.Put: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) MeterConfig(ctx context.Context, serverID [9]byte) (MeterConfig, bool, error) {
	var cfg MeterConfig
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketMeterConfig)
		v := bkt.Get(serverID[:])
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &cfg)
	})
	if err != nil {
		return MeterConfig{}, false, xerrors.Errorf("BoltStore.MeterConfig: %w", err)
	}
	return cfg, found, nil
}

// bcryptPrefix marks a Pwd field that is already a bcrypt hash, so a
// re-PutMeterConfig of a row read back from storage doesn't re-hash an
// already-hashed value.
const bcryptPrefix = "$2"

// PutMeterConfig is idempotent: inserted on first sight, overwritten on
// every later call for the same server id. A plaintext Pwd is bcrypt-
// hashed before it ever reaches disk; AES key material is stored as-is,
// since it is never logged and never compared against user input.
func (s *BoltStore) PutMeterConfig(ctx context.Context, cfg MeterConfig) error {
	if cfg.Pwd != "" && !strings.HasPrefix(cfg.Pwd, bcryptPrefix) {
		hashed, err := HashPassword(cfg.Pwd)
		if err != nil {
			return xerrors.Errorf("BoltStore.PutMeterConfig: %w", err)
		}
		cfg.Pwd = hashed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketMeterConfig)
		val, err := msgpack.Marshal(cfg)
		if err != nil {
			return xerrors.Errorf("msgpack.Marshal: %w", err)
		}
		return bkt.Put(cfg.ServerID[:], val)
	})
}

// Authenticate reports whether plain matches the stored (bcrypt-hashed)
// password for serverID.
func (s *BoltStore) Authenticate(ctx context.Context, serverID [9]byte, plain string) (bool, error) {
	cfg, found, err := s.MeterConfig(ctx, serverID)
	if err != nil {
		return false, xerrors.Errorf("BoltStore.Authenticate: %w", err)
	}
	if !found || cfg.Blocked {
		return false, nil
	}
	return CheckPassword(cfg.Pwd, plain), nil
}
