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

package obis

import "time"

// Value is a measured value: an OBIS-tagged raw integer with its scaler
// and unit. The logical value equals Raw * 10^Scaler.
type Value struct {
	Code      Code
	Raw       int64
	Scaler    int8
	Unit      uint8
	Status    *uint32
	ValueTime *time.Time
}

// String renders the logical decimal value via ScaleValue.
func (v Value) String() string {
	return ScaleValue(v.Raw, v.Scaler)
}
