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

package broker

import (
	"context"
	"time"
)

// OnStart is the persistent broker variant: it dials once at Run and
// keeps reconnecting on loss of connectivity; writes it cannot dispatch
// immediately are dropped with a warning rather than queued.
type OnStart struct {
	base
	reconnectDelay time.Duration
	wroteLogin     bool
}

// NewOnStart returns an OnStart broker using dial to connect and
// optionally writing login as the first payload after each (re)connect.
func NewOnStart(name string, dial Dialer, login []byte) *OnStart {
	b := newBase(nil, name, dial, login)
	return &OnStart{base: b, reconnectDelay: OnStartReconnectDelay}
}

// Run connects and then loop-reconnects on failure until ctx is
// cancelled; a periodic status-check tick drives the reconnect attempt.
func (o *OnStart) Run(ctx context.Context) {
	o.connect(ctx)

	ticker := time.NewTicker(o.reconnectDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.Stop()
			return
		case <-ticker.C:
			if o.State() == StateOffline {
				o.connect(ctx)
			}
		}
	}
}

func (o *OnStart) connect(ctx context.Context) {
	o.setState(StateConnecting)
	conn, err := o.dial(ctx)
	if err != nil {
		o.log.WithError(err).WithField("broker", o.name).Warn("broker: on-start connect failed")
		o.setState(StateOffline)
		return
	}
	o.mu.Lock()
	o.conn = conn
	o.mu.Unlock()
	o.wroteLogin = false
	o.setState(StateConnected)
}

// Write sends data immediately if connected; otherwise it is dropped.
// Zero-length writes are rejected silently.
func (o *OnStart) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if o.State() != StateConnected {
		o.log.WithField("broker", o.name).Warn("broker: write dropped, not connected")
		return nil
	}

	o.mu.Lock()
	conn := o.conn
	o.mu.Unlock()
	if conn == nil {
		return nil
	}

	if !o.wroteLogin {
		if err := o.writeLoginPrefix(conn); err != nil {
			o.setState(StateOffline)
			return nil
		}
		o.wroteLogin = true
	}

	if _, err := conn.Write(data); err != nil {
		o.log.WithError(err).WithField("broker", o.name).Warn("broker: write failed, going offline")
		o.setState(StateOffline)
		return nil
	}
	return nil
}

func (o *OnStart) Stop() {
	o.mu.Lock()
	if o.conn != nil {
		o.conn.Close()
		o.conn = nil
	}
	o.mu.Unlock()
	o.setState(StateStopped)
}
