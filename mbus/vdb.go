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

import (
	"encoding/binary"
	"time"

	"github.com/smf-gw/smf/smferr"
)

// Function is the DIF function field: instant/max/min/error.
type Function uint8

const (
	FunctionInstant Function = iota
	FunctionMax
	FunctionMin
	FunctionError
)

// Reading is one fully decoded DIF(+DIFE)+VIF(+VIFE)+DATA triple.
type Reading struct {
	Function      Function
	StorageNumber uint32
	Tariff        uint8
	SubUnit       uint8
	VIF           byte
	Name          string
	Unit          Unit
	Scaler        int8
	Raw           int64
	Time          *time.Time
	Unknown       bool // placeholder entry for an unrecognized DIF/VIF
}

// difDataLen returns the payload length in bytes for the DIF data-field
// nibble, and whether it is a BCD encoding.
func difDataLen(dataField byte) (length int, bcd bool, variable bool, special bool) {
	switch dataField {
	case 0x0:
		return 0, false, false, false
	case 0x1:
		return 1, false, false, false
	case 0x2:
		return 2, false, false, false
	case 0x3:
		return 3, false, false, false
	case 0x4, 0x5: // 0x5 is 32-bit real, same wire length
		return 4, false, false, false
	case 0x6:
		return 6, false, false, false
	case 0x7:
		return 8, false, false, false
	case 0x8:
		return 0, false, false, false // selection for readout, no data
	case 0x9:
		return 1, true, false, false
	case 0xA:
		return 2, true, false, false
	case 0xB:
		return 3, true, false, false
	case 0xC:
		return 4, true, false, false
	case 0xD:
		return 0, false, true, false // length prefixed (LVAR)
	case 0xE:
		return 6, true, false, false
	default: // 0xF
		return 0, false, false, true
	}
}

// VDBReader is the nine-state DIF/DIFE/VIF/VIFE/DATA incremental parser.
// It is fed growing byte slices and emits Readings; on insufficient
// bytes it reports ok=false and must be re-entered with more data (its
// internal position is unchanged, matching the reference
// implementation's "retains its partial state and returns").
type VDBReader struct {
	buf []byte
	pos int
}

// NewVDBReader returns a reader over the given VDB payload bytes.
func NewVDBReader(payload []byte) *VDBReader {
	return &VDBReader{buf: payload}
}

// Feed appends more bytes, e.g. once a longer frame has arrived.
func (r *VDBReader) Feed(b []byte) {
	r.buf = append(r.buf, b...)
}

// Done reports whether the reader has consumed its whole buffer. An end
// marker (DIF 0x0F/0x1F) does not end the walk: Next returns it as an
// unknown reading and reads the bytes after it as further records.
func (r *VDBReader) Done() bool {
	return r.pos >= len(r.buf)
}

// Next decodes one Reading. ok is false if the buffer doesn't yet hold a
// complete record (caller should Feed more and retry); err is non-nil
// only for a structurally invalid record (never for "not enough bytes
// yet", which is reported via ok=false, err=nil).
func (r *VDBReader) Next() (Reading, bool, error) {
	start := r.pos
	b := r.buf

	if r.pos >= len(b) {
		return Reading{}, false, nil
	}

	dif := b[r.pos]
	if dif == 0x0F || dif == 0x1F || dif == 0x2F {
		// Manufacturer-specific / idle-filler / end-of-record marker.
		r.pos++
		return Reading{Unknown: true, Name: "end-of-user-data"}, true, nil
	}
	r.pos++

	fn := Function((dif >> 4) & 0x03)
	storage := uint32((dif >> 6) & 0x01) // bit6 is LSB of storage number

	var tariff, subUnit uint8
	shift := uint(1)
	for dif&0x80 != 0 {
		if r.pos >= len(b) {
			r.pos = start
			return Reading{}, false, nil
		}
		dife := b[r.pos]
		r.pos++
		storage |= uint32(dife&0x0F) << shift
		tariff |= (dife >> 4) & 0x03
		subUnit |= (dife >> 6) & 0x01
		shift += 4
		dif = dife
	}

	if r.pos >= len(b) {
		r.pos = start
		return Reading{}, false, nil
	}
	vif := b[r.pos]
	r.pos++

	entry, known := vifLookup(vif)
	extTable := vif & 0x7F
	for vif&0x80 != 0 {
		if r.pos >= len(b) {
			r.pos = start
			return Reading{}, false, nil
		}
		vife := b[r.pos]
		r.pos++
		if extTable == 0x7B || extTable == 0x7D {
			if e, ok := vifeExtended(extTable, vife); ok {
				entry, known = e, true
			}
		}
		vif = vife
	}

	dataField := b[start] & 0x0F
	length, bcd, variable, specialDIF := difDataLen(dataField)

	if specialDIF {
		return Reading{Unknown: true, Name: "special-function"}, true, nil
	}

	if variable {
		if r.pos >= len(b) {
			r.pos = start
			return Reading{}, false, nil
		}
		lvar := b[r.pos]
		r.pos++
		length = int(lvar)
		if length > 0xBF {
			length = 0 // negative/date LVAR codes not handled here
		}
	}

	if r.pos+length > len(b) {
		r.pos = start
		return Reading{}, false, nil
	}
	data := b[r.pos : r.pos+length]
	r.pos += length

	reading := Reading{
		Function:      fn,
		StorageNumber: storage,
		Tariff:        tariff,
		SubUnit:       subUnit,
		VIF:           vif,
	}

	if !known {
		reading.Unknown = true
		reading.Name = "unknown-vif"
		return reading, true, nil
	}

	reading.Name = entry.name
	reading.Unit = entry.unit
	reading.Scaler = entry.scaler

	switch {
	case entry.unit == UnitDate && len(data) >= 2:
		t := decodeDateG(data)
		reading.Time = &t
	case entry.unit == UnitDateTime && len(data) >= 4:
		t := decodeDateTimeF(data)
		reading.Time = &t
	case bcd:
		reading.Raw = decodeBCD(data)
	default:
		reading.Raw = decodeInt(data)
	}

	return reading, true, nil
}

// decodeInt decodes a little-endian two's-complement integer of 1-8 bytes.
func decodeInt(data []byte) int64 {
	if len(data) == 0 {
		return 0
	}
	var buf [8]byte
	copy(buf[:], data)
	neg := data[len(data)-1]&0x80 != 0
	if neg {
		for i := len(data); i < 8; i++ {
			buf[i] = 0xFF
		}
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

// decodeBCD decodes a little-endian BCD-encoded integer (2/4/6/8/12-digit
// forms, one nibble pair per byte).
func decodeBCD(data []byte) int64 {
	var v int64
	for i := len(data) - 1; i >= 0; i-- {
		hi := data[i] >> 4
		lo := data[i] & 0x0F
		v = v*100 + int64(hi)*10 + int64(lo)
	}
	return v
}

// decodeDateG decodes the 2-byte "type G" date.
func decodeDateG(data []byte) time.Time {
	day := int(data[0] & 0x1F)
	month := int(data[1] & 0x0F)
	year := int(data[0]>>5&0x07) | int(data[1]>>5&0x07)<<3
	return time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.Local)
}

// decodeDateTimeF decodes the 4-byte "type F" date-time.
func decodeDateTimeF(data []byte) time.Time {
	minute := int(data[0] & 0x3F)
	hour := int(data[1] & 0x1F)
	day := int(data[2] & 0x1F)
	month := int(data[3] & 0x0F)
	year := int(data[2]>>5&0x07) | int(data[3]>>5&0x07)<<3
	return time.Date(2000+year, time.Month(month), day, hour, minute, 0, 0, time.Local)
}

var errVDBStructure = smferr.New(smferr.KindFraming, "mbus.VDBReader.Next", errVDBInvalid)

type vdbError string

func (e vdbError) Error() string { return string(e) }

const errVDBInvalid = vdbError("mbus: malformed DIF/VIF record")
