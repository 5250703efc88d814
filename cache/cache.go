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

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// lapTTL is how long a readout stays in the cache after the last observer
// has had a chance to see it (the "observer lap").
const lapTTL = 2 * time.Minute

type entry struct {
	readout   Readout
	data      []ReadoutData
	insertedAt time.Time
}

// Cache is the in-memory readout store with observer fan-out, modeled on
// a map guarded by a sync.RWMutex, periodically
// swept by a ticking goroutine (here an eviction sweep rather than a
// bbolt persistence sweep, since the canonical copy lives in store.Store).
type Cache struct {
	log *logrus.Logger

	mu        sync.RWMutex
	readouts  map[uuid.UUID]*entry
	lastSeen  map[[9]byte]time.Time
	maxFreq   map[[9]byte]time.Duration
	observers []Observer
	gen       uint64
}

// New returns an empty Cache.
func New(log *logrus.Logger) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{
		log:      log,
		readouts: make(map[uuid.UUID]*entry),
		lastSeen: make(map[[9]byte]time.Time),
		maxFreq:  make(map[[9]byte]time.Duration),
	}
}

// Subscribe registers an Observer for cache-wide notifications.
func (c *Cache) Subscribe(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

// SetMaxReadoutFrequency configures the per-device dedup gate: an insert
// within freq of the last seen insert for serverID is dropped before
// observer dispatch.
func (c *Cache) SetMaxReadoutFrequency(serverID [9]byte, freq time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxFreq[serverID] = freq
}

// Insert atomically adds a header row and its value rows as a single
// pair, honoring the max-readout-frequency dedup gate. It reports
// whether the readout was actually inserted (false if it was dropped as
// a duplicate).
func (c *Cache) Insert(ctx context.Context, r Readout, data []ReadoutData, origin string) bool {
	now := time.Now()

	c.mu.Lock()
	if last, ok := c.lastSeen[r.ServerID]; ok {
		if freq := c.maxFreq[r.ServerID]; freq > 0 && now.Sub(last) < freq {
			c.mu.Unlock()
			c.log.WithField("server_id", r.ServerID).Debug("cache: dropping readout, below max-readout-frequency")
			return false
		}
	}
	c.lastSeen[r.ServerID] = now

	c.gen++
	gen := c.gen
	c.readouts[r.PK] = &entry{readout: r, data: data, insertedAt: now}
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	c.dispatch(observers, Event{Table: TableReadout, Key: r.PK, Value: r, Generation: gen, Origin: origin})
	for _, d := range data {
		c.dispatch(observers, Event{Table: TableReadoutData, Key: [2]interface{}{r.PK, d.Code}, Value: d, Generation: gen, Origin: origin})
	}
	return true
}

func (c *Cache) dispatch(observers []Observer, ev Event) {
	for _, obs := range observers {
		if obs.OnInsert != nil {
			obs.OnInsert(ev)
		}
	}
}

// Get returns the readout for pk, if still cached.
func (c *Cache) Get(pk uuid.UUID) (Readout, []ReadoutData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.readouts[pk]
	if !ok {
		return Readout{}, nil, false
	}
	return e.readout, e.data, true
}

// evictLoop periodically removes readouts older than lapTTL, emitting
// OnClear for each. Cancellable via ctx as part of an orderly shutdown.
func (c *Cache) evictLoop(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.evictOnce(now)
		}
	}
}

func (c *Cache) evictOnce(now time.Time) {
	c.mu.Lock()
	var cleared []uuid.UUID
	for pk, e := range c.readouts {
		if now.Sub(e.insertedAt) > lapTTL {
			delete(c.readouts, pk)
			cleared = append(cleared, pk)
		}
	}
	c.gen++
	gen := c.gen
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	for _, pk := range cleared {
		for _, obs := range observers {
			if obs.OnClear != nil {
				obs.OnClear(Event{Table: TableReadout, Key: pk, Generation: gen})
			}
		}
	}
}

// Run starts the eviction sweep goroutine; it returns once ctx is done.
func (c *Cache) Run(ctx context.Context) {
	c.evictLoop(ctx, 30*time.Second)
}
