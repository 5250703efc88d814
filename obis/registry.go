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

// Well-known root and meter-reading codes: a curated dictionary of root
// objects, profile identifiers, and meter-reading channels.
var (
	CodeRootDevice      = NewCode(0, 0, 96, 1, 0, 255)
	CodeActiveEnergyPos = NewCode(1, 0, 1, 8, 0, 255)
	CodeActiveEnergyNeg = NewCode(1, 0, 2, 8, 0, 255)
	CodeActivePowerPos  = NewCode(1, 0, 1, 7, 0, 255)
	CodeVoltageL1       = NewCode(1, 0, 32, 7, 0, 255)
	CodeCurrentL1       = NewCode(1, 0, 31, 7, 0, 255)
	CodeMBusState       = NewCode(0, 0, 96, 50, 68, 255)
	CodeMeterAddress    = NewCode(0, 0, 96, 1, 0, 255)

	// Attention numbers carried in an attention.res body.
	CodeAttentionOK           = NewCode(0x81, 0x81, 0xC7, 0xC7, 0xFD, 0x00)
	CodeAttentionUnknownError = NewCode(0x81, 0x81, 0xC7, 0xC7, 0xFE, 0x00)
)

// Profile is an OBIS code drawn from the fixed set of sampling cadences
// of well-known codes.
type Profile Code

var (
	Profile1Minute    = Profile(NewCode(1, 0, 99, 60, 0, 255))
	Profile15Minute   = Profile(NewCode(1, 0, 99, 1, 0, 255))
	Profile60Minute   = Profile(NewCode(1, 0, 99, 2, 0, 255))
	Profile24Hour     = Profile(NewCode(1, 0, 99, 3, 0, 255))
	ProfileLast2Hours = Profile(NewCode(1, 0, 99, 4, 0, 255))
	ProfileLastWeek   = Profile(NewCode(1, 0, 99, 5, 0, 255))
	Profile1Month     = Profile(NewCode(1, 0, 98, 1, 0, 255))
	Profile1Year      = Profile(NewCode(1, 0, 98, 0, 0, 255))
	ProfileInitial    = Profile(NewCode(1, 0, 99, 98, 0, 255))
)

var profiles = map[Profile]bool{
	Profile1Minute: true, Profile15Minute: true, Profile60Minute: true,
	Profile24Hour: true, ProfileLast2Hours: true, ProfileLastWeek: true,
	Profile1Month: true, Profile1Year: true, ProfileInitial: true,
}

var profileNames = map[Profile]string{
	Profile1Minute:    "1-min",
	Profile15Minute:   "15-min",
	Profile60Minute:   "60-min",
	Profile24Hour:     "24-hour",
	ProfileLast2Hours: "last-2-hours",
	ProfileLastWeek:   "last-week",
	Profile1Month:     "1-month",
	Profile1Year:      "1-year",
	ProfileInitial:    "initial",
}

var names = map[Code]string{
	CodeRootDevice:      "root-device-id",
	CodeActiveEnergyPos: "active-energy-import",
	CodeActiveEnergyNeg: "active-energy-export",
	CodeActivePowerPos:  "active-power-import",
	CodeVoltageL1:       "voltage-l1",
	CodeCurrentL1:       "current-l1",
	CodeMBusState:       "mbus-state",
	CodeMeterAddress:    "meter-address",

	CodeAttentionOK:           "attention-ok",
	CodeAttentionUnknownError: "attention-unknown-error",
}

// GetName returns the canonical name registered for code, or "" if the
// registry has no entry for it.
func GetName(code Code) string {
	return names[code]
}

// IsProfile reports whether code names one of the fixed profile cadences.
func IsProfile(code Code) bool {
	return profiles[Profile(code)]
}

// Name returns the profile's canonical short name.
func (p Profile) Name() string {
	return profileNames[p]
}

// Code exposes the underlying OBIS code.
func (p Profile) Code() Code { return Code(p) }
