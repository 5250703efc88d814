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
	"sync"
	"time"
)

// OnDemand is the opportunistic broker variant: it opens a connection
// only when data arrives, queues pending writes FIFO while connecting,
// drains the queue once connected, and closes back to OFFLINE
// write-timeout after the last byte is acknowledged.
type OnDemand struct {
	base
	writeTimeout time.Duration
	queue        chan []byte
	done         chan struct{}
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewOnDemand returns an OnDemand broker. Run must be started to process
// queued writes.
func NewOnDemand(name string, dial Dialer, login []byte) *OnDemand {
	b := newBase(nil, name, dial, login)
	return &OnDemand{
		base:         b,
		writeTimeout: OnDemandWriteTimeout,
		queue:        make(chan []byte, 256),
		done:         make(chan struct{}),
		stop:         make(chan struct{}),
	}
}

// Stop requests the run loop to close its connection and exit; safe to
// call more than once.
func (o *OnDemand) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// Write enqueues data FIFO and, if currently OFFLINE, wakes the run loop
// to connect. Zero-length writes are rejected silently.
func (o *OnDemand) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	cp := append([]byte(nil), data...)
	select {
	case o.queue <- cp:
	case <-o.done:
	}
	return nil
}

// Run drains the queue: connects on the first queued item, writes every
// queued item FIFO while connected, and closes back to OFFLINE after
// writeTimeout of inactivity. Cancellable via ctx.
func (o *OnDemand) Run(ctx context.Context) {
	wroteLogin := false
	idle := time.NewTimer(o.writeTimeout)
	if !idle.Stop() {
		<-idle.C
	}
	idleActive := false

	defer func() {
		o.mu.Lock()
		if o.conn != nil {
			o.conn.Close()
			o.conn = nil
		}
		o.mu.Unlock()
		o.setState(StateStopped)
		close(o.done)
	}()

	for {
		var idleC <-chan time.Time
		if idleActive {
			idleC = idle.C
		}

		select {
		case <-ctx.Done():
			return

		case <-o.stop:
			return

		case <-idleC:
			idleActive = false
			o.mu.Lock()
			if o.conn != nil {
				o.conn.Close()
				o.conn = nil
			}
			o.mu.Unlock()
			o.setState(StateOffline)
			wroteLogin = false

		case data := <-o.queue:
			if o.State() != StateConnected {
				o.setState(StateConnecting)
				conn, err := o.dial(ctx)
				if err != nil {
					o.log.WithError(err).WithField("broker", o.name).Warn("broker: on-demand connect failed")
					o.setState(StateOffline)
					continue
				}
				o.mu.Lock()
				o.conn = conn
				o.mu.Unlock()
				o.setState(StateConnected)
				wroteLogin = false
			}

			o.mu.Lock()
			conn := o.conn
			o.mu.Unlock()

			if !wroteLogin {
				if err := o.writeLoginPrefix(conn); err == nil {
					wroteLogin = true
				}
			}

			if _, err := conn.Write(data); err != nil {
				o.log.WithError(err).WithField("broker", o.name).Warn("broker: on-demand write failed")
				o.mu.Lock()
				if o.conn != nil {
					o.conn.Close()
					o.conn = nil
				}
				o.mu.Unlock()
				o.setState(StateOffline)
				idleActive = false
				continue
			}

			if !idle.Stop() && idleActive {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(o.writeTimeout)
			idleActive = true
		}
	}
}
