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

package mbus

// Unit is the physical unit a VIF decodes to, reproduced (a useful
// subset) from the M-Bus EN13757-3 VIF table.
type Unit uint8

const (
	UnitNone Unit = iota
	UnitWh
	UnitJ
	UnitM3
	UnitKg
	UnitSeconds
	UnitW
	UnitJPerH
	UnitM3PerH
	UnitM3PerMin
	UnitM3PerSec
	UnitKgPerH
	UnitCelsius
	UnitKelvin
	UnitBar
	UnitDate
	UnitDateTime
	UnitCount
)

// vifEntry is a decoded VIF: its canonical name, unit, and the scaler
// baked into the low bits of the VIF byte (or a fixed scaler for
// unscaled codes like fabrication number).
type vifEntry struct {
	name   string
	unit   Unit
	scaler int8
}

// vifLookup resolves a primary VIF byte (extension bit already stripped)
// to its entry. Unknown codes return ok=false so the caller can emit a
// placeholder for an unrecognized VIF code.
func vifLookup(vif byte) (vifEntry, bool) {
	v := vif & 0x7F
	switch {
	case v <= 0x07:
		return vifEntry{"energy", UnitWh, int8(v&0x07) - 3}, true
	case v >= 0x08 && v <= 0x0F:
		return vifEntry{"energy", UnitJ, int8(v&0x07) - 3}, true
	case v >= 0x10 && v <= 0x17:
		return vifEntry{"volume", UnitM3, int8(v&0x07) - 6}, true
	case v >= 0x18 && v <= 0x1F:
		return vifEntry{"mass", UnitKg, int8(v&0x07) - 3}, true
	case v >= 0x20 && v <= 0x23:
		return vifEntry{"on-time", UnitSeconds, 0}, true
	case v >= 0x24 && v <= 0x27:
		return vifEntry{"operating-time", UnitSeconds, 0}, true
	case v >= 0x28 && v <= 0x2F:
		return vifEntry{"power", UnitW, int8(v&0x07) - 3}, true
	case v >= 0x30 && v <= 0x37:
		return vifEntry{"power", UnitJPerH, int8(v&0x07) - 3}, true
	case v >= 0x38 && v <= 0x3F:
		return vifEntry{"volume-flow", UnitM3PerH, int8(v&0x07) - 6}, true
	case v >= 0x40 && v <= 0x47:
		return vifEntry{"volume-flow-ext", UnitM3PerMin, int8(v&0x07) - 7}, true
	case v >= 0x48 && v <= 0x4F:
		return vifEntry{"volume-flow-ext", UnitM3PerSec, int8(v&0x07) - 9}, true
	case v >= 0x50 && v <= 0x57:
		return vifEntry{"mass-flow", UnitKgPerH, int8(v&0x07) - 3}, true
	case v >= 0x58 && v <= 0x5B:
		return vifEntry{"flow-temperature", UnitCelsius, int8(v&0x03) - 3}, true
	case v >= 0x5C && v <= 0x5F:
		return vifEntry{"return-temperature", UnitCelsius, int8(v&0x03) - 3}, true
	case v >= 0x60 && v <= 0x63:
		return vifEntry{"temperature-difference", UnitKelvin, int8(v&0x03) - 3}, true
	case v >= 0x64 && v <= 0x67:
		return vifEntry{"external-temperature", UnitCelsius, int8(v&0x03) - 3}, true
	case v >= 0x68 && v <= 0x6B:
		return vifEntry{"pressure", UnitBar, int8(v&0x03) - 3}, true
	case v == 0x6C:
		return vifEntry{"date", UnitDate, 0}, true
	case v == 0x6D:
		return vifEntry{"date-time", UnitDateTime, 0}, true
	case v == 0x6E:
		return vifEntry{"units-for-hca", UnitCount, 0}, true
	case v == 0x78:
		return vifEntry{"serial-nr", UnitCount, 0}, true
	case v == 0x7A:
		return vifEntry{"bus-address", UnitNone, 0}, true
	case v == 0x7C:
		return vifEntry{"plain-text-vif", UnitNone, 0}, true
	case v == 0x7E:
		return vifEntry{"any-vif", UnitNone, 0}, true
	case v == 0x7F:
		return vifEntry{"manufacturer-specific", UnitNone, 0}, true
	default:
		return vifEntry{}, false
	}
}

// vifeExtended resolves a second-table VIFE code, reached when the
// primary VIF is 0x7B (linear extension, FB in the reference table) or
// 0x7D (FD table): VIFE 7B and 7D extend the base table.
func vifeExtended(table byte, code byte) (vifEntry, bool) {
	v := code & 0x7F
	switch table {
	case 0x7B:
		switch {
		case v <= 0x03:
			return vifEntry{"energy-MWh", UnitWh, int8(v) + 2}, true
		case v >= 0x04 && v <= 0x06:
			return vifEntry{"reactive-energy", UnitWh, int8(v&0x03) - 1}, true
		default:
			return vifEntry{}, false
		}
	case 0x7D:
		switch {
		case v == 0x17:
			return vifEntry{"error-flags", UnitNone, 0}, true
		case v == 0x1F:
			return vifEntry{"digital-input", UnitNone, 0}, true
		default:
			return vifEntry{}, false
		}
	default:
		return vifEntry{}, false
	}
}
