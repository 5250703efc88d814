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

import (
	"strconv"
	"strings"

	"github.com/smf-gw/smf/smferr"
)

// ScaleValue renders raw * 10^scaler as a decimal string, operating
// entirely on the digit string, never via floating point: insert zeros
// or a dot, then trim trailing zeros except the one immediately
// following the dot when the integer part is otherwise "0".
func ScaleValue(raw int64, scaler int8) string {
	neg := raw < 0
	abs := raw
	if neg {
		abs = -raw
	}
	digits := strconv.FormatInt(abs, 10)

	var out string
	if scaler >= 0 {
		out = digits + strings.Repeat("0", int(scaler))
	} else {
		n := int(-scaler)
		if len(digits) > n {
			intPart := digits[:len(digits)-n]
			fracPart := strings.TrimRight(digits[len(digits)-n:], "0")
			if fracPart == "" {
				out = intPart
			} else {
				out = intPart + "." + fracPart
			}
		} else {
			padded := strings.Repeat("0", n+1-len(digits)) + digits
			fracPart := strings.TrimRight(padded[1:], "0")
			if fracPart == "" {
				fracPart = "0"
			}
			out = padded[:1] + "." + fracPart
		}
	}

	if neg {
		out = "-" + out
	}
	return out
}

// ScaleReverse recovers the integer raw value from a string produced by
// ScaleValue (or any equivalently-shaped decimal), inverting the digit
// manipulation on representable inputs.
func ScaleReverse(s string, scaler int8) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	digits := intPart + fracPart
	if digits == "" {
		return 0, smferr.New(smferr.KindConfig, "obis.ScaleReverse", errNotNumeric)
	}
	_ = hasDot

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, smferr.New(smferr.KindConfig, "obis.ScaleReverse", err)
	}

	exp := -int(scaler) - len(fracPart)
	var raw int64
	switch {
	case exp >= 0:
		raw = n * pow10(exp)
	default:
		div := pow10(-exp)
		if n%div != 0 {
			return 0, smferr.New(smferr.KindConfig, "obis.ScaleReverse", errNotRepresentable)
		}
		raw = n / div
	}

	if neg {
		raw = -raw
	}
	return raw, nil
}

func pow10(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}

type scaleError string

func (e scaleError) Error() string { return string(e) }

const (
	errNotNumeric       = scaleError("obis: not a numeric string")
	errNotRepresentable = scaleError("obis: value not representable at requested scaler")
)
