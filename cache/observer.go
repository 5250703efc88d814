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

package cache

// Table names the logical table an observer event refers to.
type Table int

const (
	TableReadout Table = iota
	TableReadoutData
)

func (t Table) String() string {
	if t == TableReadoutData {
		return "_ReadoutData"
	}
	return "_Readout"
}

// Event is what an Observer callback receives: table, key, an optional
// value (nil on remove/clear), a monotonic generation counter, and the
// origin tag identifying which component produced the change.
type Event struct {
	Table      Table
	Key        interface{}
	Value      interface{}
	Generation uint64
	Origin     string
}

// Observer is the four-callback subscription shape for cache mutation:
// insert, modify, remove, clear. Any nil callback is simply not invoked.
type Observer struct {
	OnInsert func(Event)
	OnModify func(Event)
	OnRemove func(Event)
	OnClear  func(Event)
}
