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
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a Dataset from an observation table and its metadata
// layers. It resolves coordinate column names to their canonical
// roles, normalizes sensor and platform identifiers, synthesizes
// omitted coordinate columns from the sole sensor or platform record,
// classifies every variable, verifies metadata completeness and sorts
// the rows by (time, depth). The table and metadata are retained by
// the returned Dataset and must not be modified by the caller
// afterwards. A nil meta is treated as empty.
func New(table *Table, meta *Metadata) (*Dataset, error) {
	if meta == nil {
		meta = NewMetadata()
	}
	if meta.Global == nil {
		meta.Global = &GlobalRecord{}
	}
	if meta.Variables == nil {
		meta.Variables = make(map[string]*VariableRecord)
	}
	if meta.Sensors == nil {
		meta.Sensors = NewIDMap[*SensorRecord]()
	}
	if meta.Platforms == nil {
		meta.Platforms = NewIDMap[*PlatformRecord]()
	}
	d := &Dataset{
		Table:     table,
		Global:    meta.Global,
		Variables: meta.Variables,
		Sensors:   meta.Sensors,
		Platforms: meta.Platforms,
		Log:       logrus.StandardLogger(),
	}
	if err := d.assemble(); err != nil {
		return nil, err
	}
	return d, nil
}

// assemble establishes the Dataset invariants on a freshly populated
// struct. It is the shared tail of New and Merge.
func (d *Dataset) assemble() error {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Table == nil || d.Table.Len() == 0 {
		return fmt.Errorf("obsnc: assembling dataset: no observation rows")
	}
	if err := resolveCoordinates(d.Table); err != nil {
		return err
	}
	if err := d.normalizeIdentifiers(); err != nil {
		return err
	}
	if err := d.synthesizeCoordinates(); err != nil {
		return err
	}
	if err := d.classify(); err != nil {
		return err
	}
	if err := d.checkIdentifiers(); err != nil {
		return err
	}
	d.pruneVariables()
	return d.Sort()
}

// normalizeIdentifiers rewrites sensor and platform identifiers, and
// every metadata key and table cell carrying one, into NetCDF-safe
// form. When two identifiers collapse onto the same normalized
// spelling the earlier record is kept and the later one is dropped
// with a warning.
func (d *Dataset) normalizeIdentifiers() error {
	normalizeIDMap(d.Sensors, d.Log, "sensor")
	normalizeIDMap(d.Platforms, d.Log, "platform")

	for _, name := range sortedKeys(d.Variables) {
		n := NormalizeID(name)
		if n == name {
			continue
		}
		if _, ok := d.Variables[n]; ok {
			d.Log.Warnf("obsnc: dropping metadata record %s: a record named %s already exists", name, n)
		} else {
			d.Variables[n] = d.Variables[name]
		}
		delete(d.Variables, name)
	}

	for _, name := range d.Table.Names() {
		if n := NormalizeID(name); n != name {
			if err := d.Table.Rename(name, n); err != nil {
				return err
			}
		}
	}

	for _, role := range []string{roleSensorID, rolePlatformID} {
		c := d.Table.Column(role)
		if c == nil || c.Kind != StringColumn {
			continue
		}
		for i := range c.Strings {
			if !c.Null[i] {
				c.Strings[i] = NormalizeID(c.Strings[i])
			}
		}
	}
	return nil
}

func normalizeIDMap[T any](m *IDMap[T], log *logrus.Logger, kind string) {
	for _, id := range m.IDs() {
		n := NormalizeID(id)
		if n == id {
			continue
		}
		if m.Has(n) {
			log.Warnf("obsnc: dropping %s record %s: a record named %s already exists", kind, id, n)
			m.remove(id)
			continue
		}
		m.rename(id, n)
	}
}

// synthesizeCoordinates fills the coordinate tuple: numeric coordinate
// columns are widened to float64, missing position columns are built
// as constants from the sole platform record, missing identifier
// columns from the sole sensor or platform record, and stock metadata
// records are installed for coordinates and quality-control companions
// that have none.
func (d *Dataset) synthesizeCoordinates() error {
	t := d.Table
	tc := t.Column(roleTime)
	if tc == nil {
		return &MissingCoordinateError{Role: roleTime}
	}
	if tc.Kind != TimeColumn {
		return fmt.Errorf("obsnc: coordinate time holds %v values, not timestamps", tc.Kind)
	}

	for _, role := range []string{roleDepth, roleLatitude, roleLongitude, rolePreciseLat, rolePreciseLon} {
		if c := t.Column(role); c != nil {
			if err := coerceFloat(c); err != nil {
				return err
			}
		}
	}

	for _, role := range []string{roleDepth, roleLatitude, roleLongitude} {
		if t.Has(role) {
			continue
		}
		if d.Platforms.Len() != 1 {
			return &MissingCoordinateError{Role: role}
		}
		p, _ := d.Platforms.Get(d.Platforms.IDs()[0])
		var v float64
		switch role {
		case roleDepth:
			v = p.Depth
		case roleLatitude:
			v = p.Latitude
		case roleLongitude:
			v = p.Longitude
		}
		if err := t.AddColumn(NewFloatColumn(role, repeatFloat(v, t.Len()))); err != nil {
			return err
		}
	}

	if !t.Has(rolePlatformID) {
		if d.Platforms.Len() != 1 {
			return &MissingCoordinateError{Role: rolePlatformID}
		}
		id := d.Platforms.IDs()[0]
		if err := t.AddColumn(NewStringColumn(rolePlatformID, repeatString(id, t.Len()))); err != nil {
			return err
		}
	}
	if !t.Has(roleSensorID) {
		if d.Sensors.Len() != 1 {
			return &MissingCoordinateError{Role: roleSensorID}
		}
		id := d.Sensors.IDs()[0]
		if err := t.AddColumn(NewStringColumn(roleSensorID, repeatString(id, t.Len()))); err != nil {
			return err
		}
	}

	for _, role := range canonicalRoles {
		if !t.Has(role) {
			continue
		}
		def, ok := defaultCoordinateRecord(role)
		if !ok {
			continue
		}
		if rec, ok := d.Variables[role]; ok {
			fillRecordDefaults(rec, def)
		} else {
			d.Variables[role] = def
		}
	}

	for _, name := range t.Names() {
		if !strings.HasSuffix(name, "_QC") {
			continue
		}
		parent, ok := d.Variables[strings.TrimSuffix(name, "_QC")]
		if !ok {
			continue
		}
		def := qualityControlRecord(parent.LongName)
		if rec, ok := d.Variables[name]; ok {
			fillRecordDefaults(rec, def)
		} else {
			d.Variables[name] = def
		}
	}
	return nil
}

// fillRecordDefaults copies every field of def that rec leaves empty,
// so a sparse human-written record for a coordinate or QC column
// still ends up carrying the stock attributes.
func fillRecordDefaults(rec, def *VariableRecord) {
	if rec.LongName == "" {
		rec.LongName = def.LongName
	}
	if rec.StandardName == "" {
		rec.StandardName = def.StandardName
	}
	if rec.SDNParameter == "" {
		rec.SDNParameter = def.SDNParameter
	}
	if rec.SDNUnits == "" {
		rec.SDNUnits = def.SDNUnits
	}
	if rec.Units == "" {
		rec.Units = def.Units
	}
	for _, key := range sortedKeys(def.Extra) {
		if _, ok := rec.Extra[key]; !ok {
			setExtra(rec, key, def.Extra[key])
		}
	}
}

// coerceFloat widens an integer column to float64 in place.
func coerceFloat(c *Column) error {
	switch c.Kind {
	case FloatColumn:
		return nil
	case IntColumn:
		c.Floats = make([]float64, len(c.Ints))
		for i, v := range c.Ints {
			c.Floats[i] = float64(v)
		}
		c.Ints = nil
	case UintColumn:
		c.Floats = make([]float64, len(c.Uints))
		for i, v := range c.Uints {
			c.Floats[i] = float64(v)
		}
		c.Uints = nil
	default:
		return fmt.Errorf("obsnc: coordinate %s holds %v values, not numbers", c.Name, c.Kind)
	}
	c.Kind = FloatColumn
	return nil
}

// Sort reorders the observation rows ascending by (time, depth), the
// canonical order every downstream consumer assumes. Sorting is
// stable, so rows sharing a (time, depth) pair keep their relative
// order.
func (d *Dataset) Sort() error {
	depthCol := ""
	if d.Table.Has(roleDepth) {
		depthCol = roleDepth
	}
	return d.Table.sortBy(roleTime, depthCol)
}

// Align resolves the feature type and stamps the structural CF
// attributes that depend on it: the cf_role tags identifying the
// series and profile coordinates, the canonical time units, the
// ancillary-variable references and the CF conventions entry. Align
// sorts first, because geometry inference assumes canonical row
// order. It is idempotent; Encode calls it before writing.
func (d *Dataset) Align() error {
	if err := d.Sort(); err != nil {
		return err
	}
	g, err := d.Geometry()
	if err != nil {
		return err
	}
	d.Global.FeatureType = string(g)

	if rec, ok := d.Variables[roleTime]; ok {
		rec.Units = timeUnits
		setExtra(rec, "monotonic", "increasing")
	}

	for _, name := range sortedKeys(d.Variables) {
		if rec := d.Variables[name]; rec.Extra != nil {
			delete(rec.Extra, "cf_role")
		}
	}
	switch g {
	case TimeSeries:
		d.setRole(rolePlatformID, "timeseries_id")
	case TimeSeriesProfile:
		d.setRole(roleTime, "profile_id")
		d.setRole(rolePlatformID, "timeseries_id")
	case Trajectory:
		d.setRole(rolePlatformID, "trajectory_id")
	case TrajectoryProfile:
		d.setRole(roleTime, "profile_id")
		d.setRole(rolePlatformID, "trajectory_id")
	}

	d.attachAncillary()
	d.Global.Conventions = ensureConvention(d.Global.Conventions, "CF-1.8")
	return nil
}

func (d *Dataset) setRole(name, role string) {
	if rec, ok := d.Variables[name]; ok {
		setExtra(rec, "cf_role", role)
	}
}

// attachAncillary points every data variable at the quality-control
// and standard-deviation companion columns present in the table.
func (d *Dataset) attachAncillary() {
	for _, name := range sortedKeys(d.Variables) {
		rec := d.Variables[name]
		switch rec.Type {
		case VarEnvironmental, VarBiological, VarTechnical:
		default:
			continue
		}
		var anc []string
		for _, suffix := range []string{"_QC", "_STD"} {
			if d.Table.Has(name + suffix) {
				anc = append(anc, name+suffix)
			}
		}
		rec.Ancillary = anc
	}
}

func setExtra(rec *VariableRecord, key string, value interface{}) {
	if rec.Extra == nil {
		rec.Extra = make(map[string]interface{})
	}
	rec.Extra[key] = value
}

// ensureConvention appends c to list unless already present.
func ensureConvention(list []string, c string) []string {
	for _, v := range list {
		if v == c {
			return list
		}
	}
	return append(list, c)
}

func repeatFloat(v float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func repeatString(v string, n int) []string {
	s := make([]string, n)
	for i := range s {
		s[i] = v
	}
	return s
}
