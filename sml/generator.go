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

package sml

import (
	"fmt"
	"math/rand"
	"sync/atomic"
)

// TrxAllocator produces transaction ids formatted "<prefix>-<n>": a
// random prefix fixed for the allocator's lifetime plus a monotonic
// suffix.
type TrxAllocator struct {
	prefix string
	next   uint64
}

// NewTrxAllocator seeds a random 14-digit prefix from r (pass a
// rand.New(rand.NewSource(seed)) for deterministic tests).
func NewTrxAllocator(r *rand.Rand) *TrxAllocator {
	var digits [14]byte
	for i := range digits {
		digits[i] = byte('0' + r.Intn(10))
	}
	return &TrxAllocator{prefix: string(digits[:])}
}

// Next returns the next transaction id and advances the suffix counter.
func (a *TrxAllocator) Next() string {
	n := atomic.AddUint64(&a.next, 1)
	return fmt.Sprintf("%s-%d", a.prefix, n)
}

// NewFileID returns a 12-digit random file id, as used to correlate a
// get.profile.list request with its eventual response.
func NewFileID(r *rand.Rand) string {
	var digits [12]byte
	for i := range digits {
		digits[i] = byte('0' + r.Intn(10))
	}
	return string(digits[:])
}

// RequestGenerator emits request-shaped messages bound to one
// (user, pwd) credential pair and a cluster sequence number used to
// correlate the eventual response.
type RequestGenerator struct {
	Trx      *TrxAllocator
	Username string
	Password string

	seq uint32
}

// NewRequestGenerator returns a RequestGenerator bound to the given
// credentials, using r to seed its transaction-id and file-id randomness.
func NewRequestGenerator(r *rand.Rand, username, password string) *RequestGenerator {
	return &RequestGenerator{Trx: NewTrxAllocator(r), Username: username, Password: password}
}

// NextSequence advances and returns the cluster sequence number used to
// correlate this request with its response.
func (g *RequestGenerator) NextSequence() uint32 {
	g.seq++
	return g.seq
}

// Open builds an open.req message.
func (g *RequestGenerator) Open(clientID, reqFileID, serverID string) Message {
	return Message{
		Trx:  g.Trx.Next(),
		Code: CodeOpenReq,
		Body: OpenReq{
			Codepage:   "ISO 8859-1",
			ClientID:   clientID,
			ReqFileID:  reqFileID,
			ServerID:   serverID,
			Username:   g.Username,
			Password:   g.Password,
			SMLVersion: 1,
		},
	}
}

// Close builds a close.req message.
func (g *RequestGenerator) Close() Message {
	return Message{Trx: g.Trx.Next(), Code: CodeCloseReq, Body: CloseReq{}}
}

// GetProfileList builds a get.profile.list.req message for the window
// [start, end) on the given server and profile OBIS code.
func (g *RequestGenerator) GetProfileList(serverID string, objectID [6]byte, start, end uint32) Message {
	return Message{
		Trx:  g.Trx.Next(),
		Code: CodeGetProfileListReq,
		Body: GetProfileListReq{
			ServerID:  serverID,
			Username:  g.Username,
			Password:  g.Password,
			ObjectID:  objectID,
			StartTime: start,
			EndTime:   end,
		},
	}
}

// Attention builds an attention.res message carrying the given attention
// number and message text.
func (g *RequestGenerator) Attention(serverID string, no [6]byte, msg string) Message {
	return Message{
		Trx:  g.Trx.Next(),
		Code: CodeAttentionRes,
		Body: AttentionRes{ServerID: serverID, AttentionNo: no, Message: msg},
	}
}

// ProfileListResponse builds a get.profile.list.response message
// carrying periods, for a push job reporting one ts-index group's
// readings to a cluster target.
func (g *RequestGenerator) ProfileListResponse(serverID string, actTime, regPeriod uint32, path [6]byte, valTime uint32, status uint64, periods []ProfilePeriod) Message {
	return Message{
		Trx:  g.Trx.Next(),
		Code: CodeGetProfileListRes,
		Body: GetProfileListRes{
			ServerID:    serverID,
			ActTime:     actTime,
			RegPeriod:   regPeriod,
			ProfilePath: path,
			ValTime:     valTime,
			Status:      status,
			Periods:     periods,
		},
	}
}
