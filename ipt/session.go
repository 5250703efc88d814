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

package ipt

import (
	"time"

	"github.com/smf-gw/smf/scramble"
)

// SessionState is the IPT session lifecycle.
type SessionState int

const (
	StateInit SessionState = iota
	StateLoginSent
	StateAuthOK
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateLoginSent:
		return "LOGIN_SENT"
	case StateAuthOK:
		return "AUTH_OK"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Default timeouts.
const (
	LoginTimeout    = 12 * time.Second
	WatchdogTimeout = 23 * time.Second
)

// Session tracks one IPT connection's login state and the scramble-key
// negotiation flag: ObserveFrame sets the flag when it sees a
// scrambled-login request and clears it when it sees the scrambled-login
// response; sending a frame does not change it. The Parser and
// Serializer already perform the key rotation itself; Session exists to
// track the higher-level state and the pending-request sequence table
// used to correlate responses: a receiver must correlate a response to
// the most-recent request sharing its sequence.
type Session struct {
	Parser     *Parser
	Serializer *Serializer

	state          SessionState
	scramblePending bool

	pending map[uint8]Command // sequence -> request command awaiting a response
}

// NewSession returns a Session starting at StateInit with the default
// (all-zero) scramble key on both directions.
func NewSession() *Session {
	return &Session{
		Parser:     NewParser(scramble.DefaultKey),
		Serializer: NewSerializer(scramble.DefaultKey),
		state:      StateInit,
		pending:    make(map[uint8]Command),
	}
}

func (s *Session) State() SessionState { return s.state }

// MarkRequest records that seq was just used for a request of cmd, so a
// later response with the same sequence can be correlated with Resolve.
func (s *Session) MarkRequest(seq uint8, cmd Command) {
	s.pending[seq] = cmd
}

// Resolve returns the request command that seq was sent for, if any, and
// removes the pending entry: a receiver must correlate
// responses to the most-recent request with that sequence").
func (s *Session) Resolve(seq uint8) (Command, bool) {
	cmd, ok := s.pending[seq]
	if ok {
		delete(s.pending, seq)
	}
	return cmd, ok
}

// ObserveFrame updates session state in response to a decoded frame.
func (s *Session) ObserveFrame(f Frame) {
	switch f.Body.(type) {
	case LoginPublicReq:
		s.state = StateLoginSent
	case LoginScrambledReq:
		s.state = StateLoginSent
		s.scramblePending = true
	case LoginPublicRes:
		res := f.Body.(LoginPublicRes)
		if res.Response != 0 {
			s.state = StateAuthOK
		} else {
			s.state = StateClosed
		}
	case LoginScrambledRes:
		res := f.Body.(LoginScrambledRes)
		if res.Response != 0 {
			s.state = StateAuthOK
		} else {
			s.state = StateClosed
		}
		s.scramblePending = false
	case LogoutReq, LogoutRes:
		s.state = StateClosed
	}
}

// ScramblePending reports whether a scrambled login has been sent/received
// but not yet acknowledged — the edge-triggered window.
func (s *Session) ScramblePending() bool { return s.scramblePending }

// Close marks the session closed.
func (s *Session) Close() { s.state = StateClosed }
