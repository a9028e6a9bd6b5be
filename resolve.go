/*
Copyright © 2024 the obsnc authors.
This file is part of obsnc.

obsnc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

obsnc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with obsnc.  If not, see <http://www.gnu.org/licenses/>.
*/

package obsnc

// Canonical coordinate role names. These are also the column names
// used in the observation table after resolution and the variable
// names used in encoded files.
const (
	roleTime       = "time"
	roleDepth      = "depth"
	roleLatitude   = "latitude"
	roleLongitude  = "longitude"
	roleSensorID   = "sensor_id"
	rolePlatformID = "platform_id"
	rolePreciseLat = "precise_latitude"
	rolePreciseLon = "precise_longitude"
)

// coordinateAliases lists the accepted spellings for each coordinate
// role in priority order. The first spelling is the canonical name.
var coordinateAliases = [][]string{
	{roleTime, "TIME", "timestamp"},
	{roleDepth, "DEPTH"},
	{roleLatitude, "LATITUDE", "lat", "LAT"},
	{roleLongitude, "LONGITUDE", "lon", "LON"},
	{roleSensorID, "SENSOR_ID"},
	{rolePlatformID, "PLATFORM_ID", "station_id", "STATION_ID"},
	{rolePreciseLat, "precise_lat", "PRECISE_LATITUDE"},
	{rolePreciseLon, "precise_lon", "PRECISE_LONGITUDE"},
}

// canonicalRoles is the coordinate tuple in its conventional order.
var canonicalRoles = []string{
	roleTime, roleDepth, roleLatitude, roleLongitude,
	roleSensorID, rolePlatformID, rolePreciseLat, rolePreciseLon,
}

// isCoordinate reports whether name is an accepted spelling of any
// coordinate role.
func isCoordinate(name string) bool {
	_, ok := canonicalCoordinate(name)
	return ok
}

// IsCoordinate reports whether name is an accepted spelling of a
// coordinate column: time, depth, latitude, longitude, the precise
// position pair, or the sensor and platform identifier columns.
func IsCoordinate(name string) bool { return isCoordinate(name) }

// canonicalCoordinate returns the canonical role name that accepts
// name as a spelling.
func canonicalCoordinate(name string) (string, bool) {
	for _, aliases := range coordinateAliases {
		for _, a := range aliases {
			if name == a {
				return aliases[0], true
			}
		}
	}
	return "", false
}

// resolveCoordinates renames every accepted coordinate spelling in t
// to its canonical role name. A role matched by more than one column
// at once is a hard error rather than a silent first-match, since the
// duplicate would otherwise be discarded without trace.
func resolveCoordinates(t *Table) error {
	for _, aliases := range coordinateAliases {
		var found []string
		for _, a := range aliases {
			if t.Has(a) {
				found = append(found, a)
			}
		}
		if len(found) > 1 {
			return &MissingCoordinateError{Role: aliases[0], Ambiguous: found}
		}
		if len(found) == 1 && found[0] != aliases[0] {
			if err := t.Rename(found[0], aliases[0]); err != nil {
				return err
			}
		}
	}
	return nil
}
