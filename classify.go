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
	"sort"
	"strings"
)

// classify assigns a variable_type to every variable record that does
// not already carry one, then verifies that every table column is
// described by a record. All completeness violations are collected
// before the error is returned, so the caller gets the whole
// remediation list in one pass.
func (d *Dataset) classify() error {
	names := make([]string, 0, len(d.Variables))
	for name := range d.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rec := d.Variables[name]
		if rec.Type != "" {
			continue
		}
		switch {
		case isCoordinate(name):
			rec.Type = VarCoordinate
		case strings.HasSuffix(name, "_QC"):
			rec.Type = VarQualityControl
		case rec.Extra[roleSensorID] != nil:
			rec.Type = VarSensor
		case rec.Extra[rolePlatformID] != nil:
			rec.Type = VarPlatform
		default:
			rec.Type = VarEnvironmental
		}
	}

	var missing []string
	for _, col := range d.Table.Names() {
		if _, ok := d.Variables[col]; ok {
			continue
		}
		if isCoordinate(col) || strings.HasSuffix(col, "_QC") || strings.HasSuffix(col, "_STD") {
			continue
		}
		missing = append(missing, col)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &IncompleteMetadataError{Columns: missing}
	}
	return nil
}

// pruneVariables drops variable records that describe neither a table
// column nor a sensor or platform, warning about each one so typos in
// metadata documents do not vanish silently.
func (d *Dataset) pruneVariables() {
	names := make([]string, 0, len(d.Variables))
	for name := range d.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if d.Table.Has(name) || d.Sensors.Has(name) || d.Platforms.Has(name) {
			continue
		}
		d.Log.Warnf("obsnc: dropping metadata record %s: it matches no column, sensor or platform", name)
		delete(d.Variables, name)
	}
}

// checkIdentifiers verifies that every sensor and platform identifier
// appearing in the table has a matching record.
func (d *Dataset) checkIdentifiers() error {
	if c := d.Table.Column(roleSensorID); c != nil && c.Kind == StringColumn {
		for i, id := range c.Strings {
			if !c.Null[i] && !d.Sensors.Has(id) {
				return &UnresolvedIdentifierError{Kind: "sensor", ID: id}
			}
		}
	}
	if c := d.Table.Column(rolePlatformID); c != nil && c.Kind == StringColumn {
		for i, id := range c.Strings {
			if !c.Null[i] && !d.Platforms.Has(id) {
				return &UnresolvedIdentifierError{Kind: "platform", ID: id}
			}
		}
	}
	return nil
}
