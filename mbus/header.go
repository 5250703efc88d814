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

// Package mbus decodes wired and wireless M-Bus frames: frame
// classification, the manufacturer/device-id header, AES-128-CBC mode-5
// payload decryption, and the variable-data-block (VDB) parser that
// reassembles OBIS-like readings with scaler and unit.
package mbus

import (
	"encoding/binary"
	"fmt"

	"github.com/smf-gw/smf/smferr"
)

// HeaderSize is the length of the device header at the start of a long
// wM-Bus frame: manufacturer(2) + id(4) + version(1) + medium(1).
const HeaderSize = 8

// Header is the device header reassembled from the first eight bytes of
// a long frame: manufacturer, id, version, medium.
type Header struct {
	Manufacturer uint16
	ID           uint32
	Version      uint8
	Medium       uint8
}

// DecodeHeader parses the eight-byte device header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, smferr.New(smferr.KindFraming, "mbus.DecodeHeader", errShortHeader)
	}
	return Header{
		Manufacturer: binary.LittleEndian.Uint16(b[0:2]),
		ID:           binary.LittleEndian.Uint32(b[2:6]),
		Version:      b[6],
		Medium:       b[7],
	}, nil
}

// ManufacturerFlagID unpacks the 3-letter flag-id convention packed into
// 15 bits of a uint16 (M-Bus EN13757-3 §A.2): each letter is (char-'A'+1)
// in a 5-bit field, most significant letter first.
func ManufacturerFlagID(code uint16) string {
	c1 := byte((code>>10)&0x1F) + 'A' - 1
	c2 := byte((code>>5)&0x1F) + 'A' - 1
	c3 := byte(code&0x1F) + 'A' - 1
	return string([]byte{c1, c2, c3})
}

// PackManufacturer is the inverse of ManufacturerFlagID: it packs a
// 3-letter flag id into the 15-bit representation.
func PackManufacturer(flagID string) (uint16, error) {
	if len(flagID) != 3 {
		return 0, smferr.New(smferr.KindConfig, "mbus.PackManufacturer", errBadFlagID)
	}
	var code uint16
	for _, c := range []byte(flagID) {
		if c < 'A' || c > 'Z' {
			return 0, smferr.New(smferr.KindConfig, "mbus.PackManufacturer", errBadFlagID)
		}
		code = code<<5 | uint16(c-'A'+1)
	}
	return code, nil
}

// ServerID packs the 9-byte structured server identifier: a leading
// medium byte followed by manufacturer, id, and version.
func (h Header) ServerID() [9]byte {
	var id [9]byte
	id[0] = h.Medium
	binary.BigEndian.PutUint16(id[1:3], h.Manufacturer)
	binary.BigEndian.PutUint32(id[3:7], h.ID)
	id[7] = h.Version
	id[8] = h.Medium
	return id
}

// String renders the server identifier colon-separated hex with a
// leading medium byte.
func (h Header) String() string {
	id := h.ServerID()
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
		id[0], id[1], id[2], id[3], id[4], id[5], id[6], id[7], id[8])
}

type headerError string

func (e headerError) Error() string { return string(e) }

const (
	errShortHeader = headerError("mbus: frame shorter than the device header")
	errBadFlagID   = headerError("mbus: flag-id must be three uppercase letters")
)
