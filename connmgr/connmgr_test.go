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

package connmgr

import (
	"testing"

	"github.com/google/uuid"
)

func TestUpgradeMovesSessionBetweenTables(t *testing.T) {
	m := New()
	id := uuid.New()
	m.Add(HTTPPlain, &Session{ID: id})

	ok := m.Upgrade(HTTPPlain, id, func(tok SocketTableToken, s *Session) {
		m.AddChannel(tok, "meter.123", s.ID)
	})
	if !ok {
		t.Fatal("expected Upgrade to succeed")
	}

	if _, ok := m.Get(HTTPPlain, id); ok {
		t.Error("session should no longer be in HTTP_PLAIN after upgrade")
	}
	if _, ok := m.Get(SocketPlain, id); !ok {
		t.Error("session should be in SOCKET_PLAIN after upgrade")
	}

	listeners := m.Listeners("meter.123")
	if len(listeners) != 1 || listeners[0] != id {
		t.Errorf("expected %v subscribed to meter.123, got %v", id, listeners)
	}
}

func TestUpgradeUnknownSessionFails(t *testing.T) {
	m := New()
	if ok := m.Upgrade(HTTPPlain, uuid.New(), nil); ok {
		t.Error("expected Upgrade of an unregistered id to fail")
	}
}

func TestUpgradeRejectsNonHTTPTable(t *testing.T) {
	m := New()
	id := uuid.New()
	m.Add(SocketPlain, &Session{ID: id})
	if ok := m.Upgrade(SocketPlain, id, nil); ok {
		t.Error("expected Upgrade to reject a SOCKET source table")
	}
}

func TestRemovePurgesAllListenerEntries(t *testing.T) {
	m := New()
	id := uuid.New()
	m.Add(HTTPSSL, &Session{ID: id})
	m.Upgrade(HTTPSSL, id, func(tok SocketTableToken, s *Session) {
		m.AddChannel(tok, "chan.a", s.ID)
		m.AddChannel(tok, "chan.b", s.ID)
	})

	m.Remove(SocketSSL, id)

	if got := m.Listeners("chan.a"); len(got) != 0 {
		t.Errorf("chan.a should have no listeners after Remove, got %v", got)
	}
	if got := m.Listeners("chan.b"); len(got) != 0 {
		t.Errorf("chan.b should have no listeners after Remove, got %v", got)
	}
	if _, ok := m.Get(SocketSSL, id); ok {
		t.Error("session should be gone from SOCKET_SSL after Remove")
	}
}

func TestCountReflectsAddAndRemove(t *testing.T) {
	m := New()
	id := uuid.New()
	m.Add(HTTPPlain, &Session{ID: id})
	if got := m.Count(HTTPPlain); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}
	m.Remove(HTTPPlain, id)
	if got := m.Count(HTTPPlain); got != 0 {
		t.Fatalf("expected count 0 after remove, got %d", got)
	}
}
