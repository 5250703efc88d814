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

// Package connmgr implements the connection manager: four session tables
// keyed by connection UUID (HTTP_PLAIN, HTTP_SSL, SOCKET_PLAIN,
// SOCKET_SSL), an upgrade path that moves an entry from an HTTP table to
// its paired SOCKET table under a fixed lock order, and a
// listener-by-channel multimap for named pub/sub.
package connmgr

import (
	"sync"

	"github.com/google/uuid"
)

// Table names one of the four session tables.
type Table int

const (
	HTTPPlain Table = iota
	HTTPSSL
	SocketPlain
	SocketSSL
)

func (t Table) String() string {
	switch t {
	case HTTPPlain:
		return "HTTP_PLAIN"
	case HTTPSSL:
		return "HTTP_SSL"
	case SocketPlain:
		return "SOCKET_PLAIN"
	case SocketSSL:
		return "SOCKET_SSL"
	default:
		return "UNKNOWN"
	}
}

// pairOf returns the SOCKET table an HTTP table upgrades into.
func pairOf(t Table) (Table, bool) {
	switch t {
	case HTTPPlain:
		return SocketPlain, true
	case HTTPSSL:
		return SocketSSL, true
	default:
		return 0, false
	}
}

// Session is one tracked connection.
type Session struct {
	ID   uuid.UUID
	Data interface{}
}

// SocketTableToken is handed to the callbacks of Upgrade and
// WithSocketTable while they hold a SOCKET table's lock, and AddChannel
// requires one. Its table field is unexported, so code outside this
// package cannot make a token that names a SOCKET table; it can still
// declare a zero-value token, and AddChannel does not inspect the token
// or check that the lock is still held.
type SocketTableToken struct {
	table Table
}

// Manager owns the four session tables and the channel listener multimap.
type Manager struct {
	mu     [4]sync.RWMutex
	tables [4]map[uuid.UUID]*Session

	listenersMu sync.Mutex
	listeners   map[string]map[uuid.UUID]struct{}
}

// New returns an empty Manager.
func New() *Manager {
	m := &Manager{listeners: make(map[string]map[uuid.UUID]struct{})}
	for i := range m.tables {
		m.tables[i] = make(map[uuid.UUID]*Session)
	}
	return m
}

// Add registers a new session in table.
func (m *Manager) Add(table Table, s *Session) {
	m.mu[table].Lock()
	defer m.mu[table].Unlock()
	m.tables[table][s.ID] = s
}

// Get looks up a session by id in table.
func (m *Manager) Get(table Table, id uuid.UUID) (*Session, bool) {
	m.mu[table].RLock()
	defer m.mu[table].RUnlock()
	s, ok := m.tables[table][id]
	return s, ok
}

// Upgrade atomically moves the session with id from an HTTP table to its
// paired SOCKET table, acquiring both locks in the fixed order
// HTTP_PLAIN -> SOCKET_PLAIN or HTTP_SSL -> SOCKET_SSL, and hands back a
// SocketTableToken proving the SOCKET lock was held at the moment of the
// move.
func (m *Manager) Upgrade(from Table, id uuid.UUID, fn func(tok SocketTableToken, s *Session)) bool {
	to, ok := pairOf(from)
	if !ok {
		return false
	}

	m.mu[from].Lock()
	defer m.mu[from].Unlock()
	m.mu[to].Lock()
	defer m.mu[to].Unlock()

	s, ok := m.tables[from][id]
	if !ok {
		return false
	}
	delete(m.tables[from], id)
	m.tables[to][id] = s

	if fn != nil {
		fn(SocketTableToken{table: to}, s)
	}
	return true
}

// AddChannel subscribes id to channel. Callable only with a token proving
// the caller holds tok.table's lock (obtained from Upgrade, or see
// WithSocketTable for a session already resident in a SOCKET table).
func (m *Manager) AddChannel(tok SocketTableToken, channel string, id uuid.UUID) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	set, ok := m.listeners[channel]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		m.listeners[channel] = set
	}
	set[id] = struct{}{}
}

// WithSocketTable runs fn while holding table's lock, for operations on a
// session that's already resident in a SOCKET table (no upgrade needed).
// table must be SocketPlain or SocketSSL.
func (m *Manager) WithSocketTable(table Table, fn func(tok SocketTableToken)) {
	m.mu[table].Lock()
	defer m.mu[table].Unlock()
	fn(SocketTableToken{table: table})
}

// Listeners returns the set of session ids subscribed to channel.
func (m *Manager) Listeners(channel string) []uuid.UUID {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	set := m.listeners[channel]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Remove drops id from table and purges every listener entry referencing
// it, across all channels, as required when a session stops.
func (m *Manager) Remove(table Table, id uuid.UUID) {
	m.mu[table].Lock()
	delete(m.tables[table], id)
	m.mu[table].Unlock()

	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	for channel, set := range m.listeners {
		delete(set, id)
		if len(set) == 0 {
			delete(m.listeners, channel)
		}
	}
}

// Count returns the number of sessions currently tracked in table.
func (m *Manager) Count(table Table) int {
	m.mu[table].RLock()
	defer m.mu[table].RUnlock()
	return len(m.tables[table])
}
