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
	"testing"
	"time"
)

func TestNextGridAlignment(t *testing.T) {
	quarter := time.Date(2024, 3, 4, 10, 7, 0, 0, time.UTC)
	want := time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC)
	if got := Next(Profile15Minute, quarter); !got.Equal(want) {
		t.Errorf("Next(15-minute, 10:07:00) = %v, want %v", got, want)
	}

	hour := time.Date(2024, 3, 4, 10, 0, 0, 1000, time.UTC)
	wantHour := time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)
	if got := Next(Profile60Minute, hour); !got.Equal(wantHour) {
		t.Errorf("Next(60-minute, 10:00:00.000001) = %v, want %v", got, wantHour)
	}
}

func TestNextAlwaysStrictlyAfterWithinInterval(t *testing.T) {
	profiles := []Profile{
		Profile1Minute, Profile15Minute, Profile60Minute, Profile24Hour,
		ProfileLast2Hours, ProfileLastWeek, Profile1Month, Profile1Year,
	}
	onGrid := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	offGrid := onGrid.Add(37 * time.Second)

	for _, p := range profiles {
		for _, now := range []time.Time{onGrid, offGrid} {
			next := Next(p, now)
			if !next.After(now) {
				t.Errorf("Next(%v, %v) = %v, want strictly after", p, now, next)
			}
			if next.Sub(now) > p.Interval() {
				t.Errorf("Next(%v, %v) = %v, exceeds interval %v", p, now, next, p.Interval())
			}
		}
	}
}

func TestIndexRoundTrip(t *testing.T) {
	profiles := []Profile{Profile1Minute, Profile15Minute, Profile60Minute, Profile24Hour}
	ts := time.Date(2024, 3, 4, 10, 37, 22, 0, time.UTC)

	for _, p := range profiles {
		idx := ToIndex(p, ts)
		got := FromIndex(p, idx)
		want := FloorToGrid(p, ts)
		if !got.Equal(want) {
			t.Errorf("FromIndex(%v, ToIndex(%v, ts)) = %v, want %v", p, p, got, want)
		}
	}
}
