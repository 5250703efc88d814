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

// Package broker implements the TCP broker pool: an
// on-start (persistent) variant, an on-demand (opportunistic) variant,
// and an MQTT variant, each a small state machine over a dialed
// connection that forwards raw readout payloads from a serial source.
package broker

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the shared broker lifecycle.
type State int

const (
	StateOffline State = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "OFFLINE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Default timeouts.
const (
	OnDemandWriteTimeout  = 2 * time.Second
	OnStartReconnectDelay = 30 * time.Second
)

// Dialer opens the broker's transport connection. Tests substitute this
// with an in-memory net.Pipe() dialer.
type Dialer func(ctx context.Context) (net.Conn, error)

// Broker is the common contract both TCP variants and the MQTT variant
// implement: queue or send data, report state, and stop cleanly.
type Broker interface {
	Write(data []byte) error
	State() State
	Stop()
}

// base holds the bits both TCP broker variants share: the dial func, an
// optional login prefix written once after connect, state + mutex, and
// the per-connection writer goroutine's lifecycle.
type base struct {
	log   *logrus.Logger
	name  string
	dial  Dialer
	login []byte

	mu    sync.Mutex
	state State
	conn  net.Conn

	cancel context.CancelFunc
}

func newBase(log *logrus.Logger, name string, dial Dialer, login []byte) base {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return base{log: log, name: name, dial: dial, login: login, state: StateOffline}
}

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// writeLoginPrefix writes the configured login sequence once, before the
// first real payload: both broker variants optionally prepend a login
// sequence to the first write after connect.
func (b *base) writeLoginPrefix(conn net.Conn) error {
	if len(b.login) == 0 {
		return nil
	}
	_, err := conn.Write(b.login)
	return err
}
