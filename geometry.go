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

import (
	"fmt"
	"unicode"
)

// A Geometry is one of the four CF discrete sampling geometries.
type Geometry string

const (
	TimeSeries        Geometry = "timeSeries"
	TimeSeriesProfile Geometry = "timeSeriesProfile"
	Trajectory        Geometry = "trajectory"
	TrajectoryProfile Geometry = "trajectoryProfile"
)

// ParseGeometry interprets s as a feature type name. A capitalized
// first letter is accepted, since some data-serving gateways rewrite
// the attribute that way.
func ParseGeometry(s string) (Geometry, error) {
	if s == "" {
		return "", fmt.Errorf("obsnc: empty feature type")
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	switch g := Geometry(string(r)); g {
	case TimeSeries, TimeSeriesProfile, Trajectory, TrajectoryProfile:
		return g, nil
	}
	return "", fmt.Errorf("obsnc: unknown feature type %q", s)
}

// Geometry returns the dataset's feature type. A type declared in the
// global metadata is trusted; otherwise the type is inferred from the
// per-sensor spatial layout of the observations. Inference requires
// the rows to be in canonical order, which New guarantees.
func (d *Dataset) Geometry() (Geometry, error) {
	if d.Global.FeatureType != "" {
		return ParseGeometry(d.Global.FeatureType)
	}
	return d.inferGeometry()
}

func (d *Dataset) inferGeometry() (Geometry, error) {
	sensors, groups, err := d.sensorRows()
	if err != nil {
		return "", err
	}
	geoms := make([]Geometry, len(sensors))
	for i, s := range sensors {
		g, err := d.sensorGeometry(s, groups[i])
		if err != nil {
			return "", err
		}
		geoms[i] = g
	}
	return aggregateGeometries(geoms)
}

// sensorRows partitions the row indices by sensor identifier, in
// order of first appearance.
func (d *Dataset) sensorRows() ([]string, [][]int, error) {
	c := d.Table.Column(roleSensorID)
	if c == nil {
		return nil, nil, &MissingCoordinateError{Role: roleSensorID}
	}
	var sensors []string
	groups := make(map[string][]int)
	for i, id := range c.Strings {
		if c.Null[i] {
			continue
		}
		if _, ok := groups[id]; !ok {
			sensors = append(sensors, id)
		}
		groups[id] = append(groups[id], i)
	}
	out := make([][]int, len(sensors))
	for i, s := range sensors {
		out[i] = groups[s]
	}
	return sensors, out, nil
}

// sensorGeometry classifies the layout of one sensor's rows. rows
// must be in canonical (time, depth) order.
func (d *Dataset) sensorGeometry(sensor string, rows []int) (Geometry, error) {
	lat := d.Table.Column(roleLatitude)
	lon := d.Table.Column(roleLongitude)
	depth := d.Table.Column(roleDepth)
	tc := d.Table.Column(roleTime)
	if lat == nil || lon == nil || depth == nil || tc == nil {
		return "", &MissingCoordinateError{Role: roleLatitude}
	}

	nLat := distinctFloats(lat, rows)
	nLon := distinctFloats(lon, rows)
	nDepth := distinctFloats(depth, rows)

	switch {
	case nDepth == 1 && nLat == 1 && nLon == 1:
		return TimeSeries, nil

	case nLat == 1 && nLon == 1 && nDepth > 1:
		// A sensor redeployed at several depths still forms a time
		// series as long as no two rows share a timestamp. The scan
		// is bounded: profiling behavior past the first ScanLimit
		// distinct timestamps goes undetected.
		counts := make(map[int64]int, len(rows))
		var order []int64
		for _, i := range rows {
			if tc.Null[i] {
				continue
			}
			k := tc.Times[i].UnixNano()
			if counts[k] == 0 {
				order = append(order, k)
			}
			counts[k]++
		}
		if len(order) > d.scanLimit() {
			order = order[:d.scanLimit()]
		}
		for _, k := range order {
			if counts[k] > 1 {
				return TimeSeriesProfile, nil
			}
		}
		return TimeSeries, nil

	case nLat > 1 && nLon > 1 && len(rows) > 1:
		// Moving platform. Coincident fixes are detected with a
		// composite position key: latitude plus longitude plus a
		// coarsely scaled time term, so two depths recorded during
		// one surfacing collapse onto one key.
		counts := make(map[float64]int, len(rows))
		var order []float64
		for _, i := range rows {
			if lat.Null[i] || lon.Null[i] || tc.Null[i] {
				continue
			}
			k := lat.Floats[i] + lon.Floats[i] + float64(tc.Times[i].UnixNano())/1e18
			if counts[k] == 0 {
				order = append(order, k)
			}
			counts[k]++
		}
		if len(order) > d.scanLimit() {
			order = order[:d.scanLimit()]
		}
		for _, k := range order {
			if counts[k] > 1 {
				return TrajectoryProfile, nil
			}
		}
		return Trajectory, nil
	}

	return "", &AmbiguousGeometryError{
		Sensor: sensor, Latitudes: nLat, Longitudes: nLon, Depths: nDepth,
	}
}

// aggregateGeometries reduces per-sensor feature types to a single
// type for the whole dataset.
func aggregateGeometries(gs []Geometry) (Geometry, error) {
	if len(gs) == 0 {
		return "", &IncompatibleGeometryMixError{}
	}
	all := func(want ...Geometry) bool {
		for _, g := range gs {
			ok := false
			for _, w := range want {
				if g == w {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		return true
	}
	any := func(want Geometry) bool {
		for _, g := range gs {
			if g == want {
				return true
			}
		}
		return false
	}
	switch {
	case all(TimeSeries):
		return TimeSeries, nil
	case all(TimeSeries, TimeSeriesProfile):
		return TimeSeriesProfile, nil
	case all(Trajectory):
		return Trajectory, nil
	case any(TrajectoryProfile):
		return TrajectoryProfile, nil
	}
	return "", &IncompatibleGeometryMixError{Geometries: gs}
}

// distinctFloats counts the distinct non-null values of c among rows.
func distinctFloats(c *Column, rows []int) int {
	if c.Kind != FloatColumn {
		return 0
	}
	seen := make(map[float64]struct{}, len(rows))
	for _, i := range rows {
		if !c.Null[i] {
			seen[c.Floats[i]] = struct{}{}
		}
	}
	return len(seen)
}
