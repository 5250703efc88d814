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
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/smf-gw/smf/smferr"
)

// mode5Sentinel is the padding marker a successful mode-5 decrypt begins
// with.
var mode5Sentinel = [2]byte{0x2F, 0x2F}

// IV builds the deterministic mode-5 initialization vector: manufacturer
// bytes || device-id bytes || version || medium || access-counter (8
// bytes).
func IV(h Header, accessCounter byte) [16]byte {
	var iv [16]byte
	binary.LittleEndian.PutUint16(iv[0:2], h.Manufacturer)
	binary.LittleEndian.PutUint32(iv[2:6], h.ID)
	iv[6] = h.Version
	iv[7] = h.Medium
	for i := 8; i < 16; i++ {
		iv[i] = accessCounter
	}
	return iv
}

// DecryptMode5 decrypts payload with AES-128-CBC under key and the
// deterministic IV for header/accessCounter. It returns (plaintext,
// verified, error): verified reports whether the decrypted plaintext
// begins with the mode-5 sentinel 0x2F 0x2F that confirms a correct key.
// A missing key is not an error: the caller gets the raw
// ciphertext back with verified=false.
func DecryptMode5(payload []byte, key *[16]byte, h Header, accessCounter byte) ([]byte, bool, error) {
	if key == nil {
		return payload, false, nil
	}
	if len(payload) == 0 || len(payload)%aes.BlockSize != 0 {
		return nil, false, smferr.New(smferr.KindDecrypt, "mbus.DecryptMode5", errBadLength)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, false, smferr.New(smferr.KindDecrypt, "mbus.DecryptMode5", err)
	}

	iv := IV(h, accessCounter)
	out := make([]byte, len(payload))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, payload)

	verified := len(out) >= 2 && out[0] == mode5Sentinel[0] && out[1] == mode5Sentinel[1]
	if !verified {
		return out, false, smferr.New(smferr.KindDecrypt, "mbus.DecryptMode5", errSentinelMissing)
	}
	return out, true, nil
}

type cryptoError string

func (e cryptoError) Error() string { return string(e) }

const (
	errBadLength       = cryptoError("mbus: ciphertext not a multiple of the AES block size")
	errSentinelMissing = cryptoError("mbus: decrypted payload missing the mode-5 sentinel")
)
