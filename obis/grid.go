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

// Interval returns the nominal sampling period of the profile. Month and
// year are approximated as 30-day and 365-day multiples respectively.
func (p Profile) Interval() time.Duration {
	switch p {
	case Profile1Minute:
		return time.Minute
	case Profile15Minute:
		return 15 * time.Minute
	case Profile60Minute:
		return time.Hour
	case Profile24Hour:
		return 24 * time.Hour
	case ProfileLast2Hours:
		return 2 * time.Hour
	case ProfileLastWeek:
		return 7 * 24 * time.Hour
	case Profile1Month:
		return 30 * 24 * time.Hour
	case Profile1Year:
		return 365 * 24 * time.Hour
	default:
		return time.Minute
	}
}

// Next computes the smallest grid boundary strictly after now for the profile.
// The 15-minute grid aligns to :00/:15/:30/:45 of each hour; monthly
// approximates as 30-day multiples of the daily index, yearly as
// 365-day multiples.
func Next(p Profile, now time.Time) time.Time {
	now = now.UTC()
	switch p {
	case Profile1Minute:
		return alignUp(now, time.Minute)
	case Profile15Minute:
		return alignUp(now, 15*time.Minute)
	case Profile60Minute:
		return alignUp(now, time.Hour)
	case Profile24Hour, ProfileLast2Hours:
		if p == ProfileLast2Hours {
			return alignUp(now, 2*time.Hour)
		}
		return alignUp(now, 24*time.Hour)
	case ProfileLastWeek:
		return alignUp(now, 7*24*time.Hour)
	case Profile1Month:
		return alignUp(now, 30*24*time.Hour)
	case Profile1Year:
		return alignUp(now, 365*24*time.Hour)
	default:
		return alignUp(now, time.Minute)
	}
}

// alignUp returns the smallest multiple of step (measured from the Unix
// epoch) that is >= t, strictly greater than t when t already sits on the
// grid: the result always satisfies next(p, t) > t.
func alignUp(t time.Time, step time.Duration) time.Time {
	epoch := time.Unix(0, 0).UTC()
	elapsed := t.Sub(epoch)
	n := elapsed / step
	boundary := epoch.Add(n * step)
	if !boundary.After(t) {
		boundary = boundary.Add(step)
	}
	return boundary
}

// ToIndex converts a wall-clock time into the profile-grid ts-index:
// minutes since epoch for 1-minute, quarter-hours since epoch for
// 15-minute, and so on.
func ToIndex(p Profile, t time.Time) int64 {
	epoch := time.Unix(0, 0).UTC()
	return int64(t.UTC().Sub(epoch) / p.Interval())
}

// FromIndex is the inverse of ToIndex: it returns the floor-to-grid time
// for the given index. Round-trips with ToIndex:
// ts_from_index(profile, index_from_ts(profile, t)) == floor_to_grid(profile, t).
func FromIndex(p Profile, index int64) time.Time {
	epoch := time.Unix(0, 0).UTC()
	return epoch.Add(time.Duration(index) * p.Interval())
}

// FloorToGrid truncates t down to the profile's grid.
func FloorToGrid(p Profile, t time.Time) time.Time {
	return FromIndex(p, ToIndex(p, t))
}
