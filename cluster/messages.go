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
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every client_req/client_res verb on the wire: a UUID
// tying request to response, the cluster Sequence the response echoes
// back, and the typed Body.
type Envelope struct {
	ID       uuid.UUID
	Sequence uint64
	Verb     string
	Body     interface{}
}

// --- client_req/res verbs ---

type ReqLogin struct {
	Name, Pwd, Scheme string
	Bag               map[string]interface{}
}

type ResLogin struct {
	Success   bool
	Name, Msg string
	Query     bool
	Bag       map[string]interface{}
}

type ReqOpenPushChannel struct {
	Target, Device, Number, Version, ID string
	Timeout                             time.Duration
	Bag                                 map[string]interface{}
}

type ResOpenPushChannel struct {
	Channel uint32
	Source  uint32
	Count   uint32
	Options map[string]interface{}
	Bag     map[string]interface{}
}

type ReqTransferPushdata struct {
	Channel, Source uint32
	Data            []byte
	Bag             map[string]interface{}
}

type ResTransferPushdata struct {
	Bag map[string]interface{}
}

type ReqClosePushChannel struct {
	Channel uint32
	Bag     map[string]interface{}
}

type ResClosePushChannel struct {
	Bag map[string]interface{}
}

// BusInsertMsg is operational logging toward the cluster master.
type BusInsertMsg struct {
	Severity Severity
	Text     string
}
