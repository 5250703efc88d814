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
	"net"
	"testing"
	"time"
)

func TestOnDemandRejectsZeroLengthWrites(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	dial := func(ctx context.Context) (net.Conn, error) { return client, nil }

	b := NewOnDemand("test", dial, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	if err := b.Write(nil); err != nil {
		t.Fatalf("zero-length write should be silently accepted, got %v", err)
	}
	if b.State() != StateOffline {
		t.Errorf("zero-length write should not trigger a connect, got state %v", b.State())
	}
}

func TestOnDemandConnectsAndDrainsFIFO(t *testing.T) {
	server, client := net.Pipe()
	dial := func(ctx context.Context) (net.Conn, error) { return client, nil }

	b := NewOnDemand("test", dial, nil)
	b.writeTimeout = time.Hour // don't let the idle timer interfere with this test
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	defer server.Close()

	b.Write([]byte("a"))
	b.Write([]byte("b"))

	buf := make([]byte, 2)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := readFull(server, buf)
	if err != nil {
		t.Fatalf("reading from server side: %v", err)
	}
	if n != 2 || string(buf) != "ab" {
		t.Fatalf("expected FIFO-ordered \"ab\", got %q", buf[:n])
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestOnStartDropsWritesWhileOffline(t *testing.T) {
	dial := func(ctx context.Context) (net.Conn, error) {
		return nil, errDialUnavailable
	}
	o := NewOnStart("test", dial, nil)
	o.connect(context.Background())
	if o.State() != StateOffline {
		t.Fatalf("expected OFFLINE after a failed dial, got %v", o.State())
	}
	if err := o.Write([]byte("data")); err != nil {
		t.Fatalf("Write should not error even when dropped, got %v", err)
	}
}

type dialError string

func (e dialError) Error() string { return string(e) }

const errDialUnavailable = dialError("dial unavailable")
