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
	"sort"
	"strings"
)

// MissingCoordinateError reports a required coordinate role that could
// not be bound to a table column or synthesized from metadata. If the
// role matched more than one accepted spelling at once, Ambiguous
// lists the clashing column names.
type MissingCoordinateError struct {
	Role      string
	Ambiguous []string
}

func (e *MissingCoordinateError) Error() string {
	if len(e.Ambiguous) > 0 {
		return fmt.Sprintf("obsnc: coordinate %s is bound by multiple columns: %s",
			e.Role, strings.Join(e.Ambiguous, ", "))
	}
	return fmt.Sprintf("obsnc: missing required coordinate %s", e.Role)
}

// IncompleteMetadataError lists every table column that lacks a
// metadata record. All violations are collected before the error is
// returned so the caller sees the full remediation list at once.
type IncompleteMetadataError struct {
	Columns []string
}

func (e *IncompleteMetadataError) Error() string {
	cols := make([]string, len(e.Columns))
	copy(cols, e.Columns)
	sort.Strings(cols)
	return fmt.Sprintf("obsnc: columns missing metadata records: %s", strings.Join(cols, ", "))
}

// AmbiguousGeometryError reports a sensor whose combination of
// distinct depth, latitude and longitude counts matches none of the
// four discrete sampling geometries.
type AmbiguousGeometryError struct {
	Sensor                        string
	Latitudes, Longitudes, Depths int
}

func (e *AmbiguousGeometryError) Error() string {
	return fmt.Sprintf("obsnc: no feature type for sensor %s with %d latitudes, %d longitudes, %d depths",
		e.Sensor, e.Latitudes, e.Longitudes, e.Depths)
}

// IncompatibleGeometryMixError reports that the per-sensor geometries
// of one assembly, or the geometries of several merge inputs, cannot
// be represented by a single feature type.
type IncompatibleGeometryMixError struct {
	Geometries []Geometry
}

func (e *IncompatibleGeometryMixError) Error() string {
	gs := make([]string, len(e.Geometries))
	for i, g := range e.Geometries {
		gs[i] = string(g)
	}
	return fmt.Sprintf("obsnc: incompatible feature types in one dataset: %s", strings.Join(gs, ", "))
}

// UnresolvedIdentifierError reports a sensor or platform identifier
// that appears in the observation table but has no metadata record.
type UnresolvedIdentifierError struct {
	Kind string // "sensor" or "platform"
	ID   string
}

func (e *UnresolvedIdentifierError) Error() string {
	return fmt.Sprintf("obsnc: %s identifier %s has no metadata record", e.Kind, e.ID)
}

// UnsupportedColumnTypeError reports a column whose kind has no
// mapping in the requested encoding layout.
type UnsupportedColumnTypeError struct {
	Column string
	Kind   ColumnKind
}

func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("obsnc: column %s: no encoding for %v values", e.Column, e.Kind)
}
