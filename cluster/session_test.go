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

package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/smf-gw/smf/smferr"
)

// loopbackTransport hands whatever was last Sent back out of Receive,
// optionally rewriting the verb/body to simulate a server response, and
// is enough to exercise Session's correlation table without a socket.
type loopbackTransport struct {
	out     chan Envelope
	respond func(Envelope) Envelope
}

func newLoopbackTransport(respond func(Envelope) Envelope) *loopbackTransport {
	return &loopbackTransport{
		out:     make(chan Envelope, 8),
		respond: respond,
	}
}

func (t *loopbackTransport) Send(ctx context.Context, env Envelope) error {
	t.out <- t.respond(env)
	return nil
}

func (t *loopbackTransport) Receive(ctx context.Context) (Envelope, error) {
	select {
	case env := <-t.out:
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func TestSessionRequestResponseCorrelation(t *testing.T) {
	transport := newLoopbackTransport(func(req Envelope) Envelope {
		return Envelope{ID: req.ID, Sequence: req.Sequence, Verb: "client.res.login", Body: ResLogin{Success: true, Name: "segw-1"}}
	})
	s := NewSession(nil, transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	res, err := s.Login(context.Background(), "segw-1", "secret", "sml")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.Success || res.Name != "segw-1" {
		t.Fatalf("unexpected login response: %+v", res)
	}
}

func TestSessionRequestTimesOutOnCancelledContext(t *testing.T) {
	// respond drops every reply on the floor, so nothing ever answers.
	transport := newLoopbackTransport(func(req Envelope) Envelope { return Envelope{} })
	transport.out = make(chan Envelope) // unbuffered + never fed: Receive blocks forever
	s := NewSession(nil, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Login(ctx, "segw-1", "secret", "sml")
	if err == nil {
		t.Fatal("expected a timeout error, got nil")
	}
	if kind, ok := smferr.KindOf(err); !ok || kind != smferr.KindTimeout {
		t.Fatalf("expected KindTimeout, got %v (ok=%v)", kind, ok)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) != 0 {
		t.Fatalf("expected the pending entry to be cleaned up after cancellation, got %d entries", len(s.pending))
	}
}

func TestSessionDispatchIgnoresMismatchedSequence(t *testing.T) {
	transport := newLoopbackTransport(func(req Envelope) Envelope { return Envelope{} })
	s := NewSession(nil, transport)

	s.mu.Lock()
	s.pending[1] = make(chan Envelope, 1)
	s.mu.Unlock()

	// An envelope for a sequence nobody is waiting on must not panic and
	// must leave the real pending entry untouched.
	transport.out <- Envelope{Sequence: 99, Verb: "client.res.login"}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[1]; !ok {
		t.Fatal("unrelated sequence dispatch should not remove an unrelated pending entry")
	}
}
