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
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

// isoTimeFormat renders timestamps for the date and coverage
// attributes.
const isoTimeFormat = "2006-01-02T15:04:05Z"

// Fill sentinels written in place of null cells.
const (
	FillFloat = -9999.99
	FillInt   = math.MinInt32
	FillUint  = math.MaxUint32
	FillQC    = 9
)

// A CommaList is a list-valued record attribute that flattens to a
// comma separated string instead of the default space join.
type CommaList []string

// A storageKind is the classic-format storage a column encodes to.
type storageKind int

const (
	storeDouble   storageKind = iota // 64-bit float
	storeEpoch                       // timestamps as 64-bit float epoch seconds
	storeInt                         // 32-bit int
	storeUintBits                    // unsigned 32-bit, stored as int bits
	storeByte                        // quality control flags
	storeChar                        // fixed-width character matrix
)

// A varPlan is the encoding decision for one column: its storage
// kind, dimensions and whether a compressing writer may pack it. The
// classic format has no per-variable compression, so the flag is
// recorded here for format flavors that do.
type varPlan struct {
	name     string
	col      *Column
	dims     []string
	store    storageKind
	width    int // character matrix width
	compress bool
}

// planColumn picks the storage layout for one column: flags as
// bytes, numbers widened to their largest classic type, strings as
// fixed-width character matrices with a per-column length dimension.
func planColumn(name string, c *Column) (*varPlan, error) {
	p := &varPlan{name: name, col: c, dims: []string{"obs"}, compress: true}
	switch {
	case strings.HasSuffix(name, "_QC") || c.Kind == FlagColumn:
		switch c.Kind {
		case FlagColumn, IntColumn, UintColumn, FloatColumn:
			p.store = storeByte
		default:
			return nil, &UnsupportedColumnTypeError{Column: name, Kind: c.Kind}
		}
	case c.Kind == FloatColumn:
		p.store = storeDouble
	case c.Kind == TimeColumn:
		p.store = storeEpoch
	case c.Kind == IntColumn:
		p.store = storeInt
	case c.Kind == UintColumn:
		p.store = storeUintBits
	case c.Kind == StringColumn:
		p.store = storeChar
		p.compress = false
		for _, s := range c.Strings {
			if len(s) > p.width {
				p.width = len(s)
			}
		}
		// A zero-length dimension would be mistaken for the
		// record dimension.
		if p.width < 1 {
			p.width = 1
		}
		p.dims = []string{"obs", name + "_strlen"}
	default:
		return nil, &UnsupportedColumnTypeError{Column: name, Kind: c.Kind}
	}
	return p, nil
}

// planColumns builds the encoding plan for every column, in name
// order so repeated encodings lay the file out identically.
func (d *Dataset) planColumns() ([]*varPlan, error) {
	names := append([]string(nil), d.Table.Names()...)
	sort.Strings(names)
	plans := make([]*varPlan, 0, len(names))
	for _, name := range names {
		p, err := planColumn(name, d.Table.Column(name))
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// template returns a value of the slice type cdf derives the variable
// data type from.
func (p *varPlan) template() interface{} {
	switch p.store {
	case storeInt, storeUintBits:
		return []int32{0}
	case storeByte:
		return []uint8{0}
	case storeChar:
		return ""
	}
	return []float64{0}
}

// fill returns the _FillValue attribute for the planned storage.
func (p *varPlan) fill() interface{} {
	switch p.store {
	case storeInt:
		return []int32{FillInt}
	case storeUintBits:
		return []int32{-1} // bit pattern of FillUint
	case storeByte:
		return []uint8{FillQC}
	case storeChar:
		return " "
	}
	return []float64{FillFloat}
}

// values renders the column into the planned storage, substituting
// the fill sentinel for null cells.
func (p *varPlan) values() interface{} {
	c := p.col
	n := c.Len()
	switch p.store {
	case storeDouble:
		out := make([]float64, n)
		for i, v := range c.Floats {
			if c.Null[i] {
				out[i] = FillFloat
			} else {
				out[i] = v
			}
		}
		return out
	case storeEpoch:
		out := make([]float64, n)
		for i, t := range c.Times {
			if c.Null[i] {
				out[i] = FillFloat
			} else {
				out[i] = epochSeconds(t)
			}
		}
		return out
	case storeInt:
		out := make([]int32, n)
		for i, v := range c.Ints {
			if c.Null[i] {
				out[i] = FillInt
			} else {
				out[i] = int32(v)
			}
		}
		return out
	case storeUintBits:
		out := make([]int32, n)
		for i, v := range c.Uints {
			if c.Null[i] {
				out[i] = -1
			} else {
				out[i] = int32(uint32(v))
			}
		}
		return out
	case storeByte:
		out := make([]uint8, n)
		for i := 0; i < n; i++ {
			if c.Null[i] {
				out[i] = FillQC
				continue
			}
			switch c.Kind {
			case FlagColumn:
				out[i] = uint8(c.Flags[i])
			case IntColumn:
				out[i] = uint8(c.Ints[i])
			case UintColumn:
				out[i] = uint8(c.Uints[i])
			case FloatColumn:
				out[i] = uint8(c.Floats[i])
			}
		}
		return out
	case storeChar:
		out := make([]uint8, n*p.width)
		for i := 0; i < n; i++ {
			row := out[i*p.width : (i+1)*p.width]
			if c.Null[i] {
				for j := range row {
					row[j] = ' '
				}
				continue
			}
			copy(row, c.Strings[i]) // tail stays NUL padded
		}
		return out
	}
	return nil
}

// epochSeconds converts a timestamp to fractional seconds since
// 1970-01-01, the unit declared on the time variable.
func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// Encode writes the dataset to ff as a classic NetCDF file. The
// dataset is aligned and its coverage bounds refreshed first, so
// encoding the same dataset twice produces identical bytes.
func (d *Dataset) Encode(ff *os.File) error {
	if err := d.Align(); err != nil {
		return err
	}
	d.autofillBounds()
	plans, err := d.planColumns()
	if err != nil {
		return err
	}
	h, err := d.buildHeader(plans)
	if err != nil {
		return err
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("obsnc: encoding dataset: %v", err)
	}
	for _, p := range plans {
		if err := writeVar(f, p.name, p.values()); err != nil {
			return err
		}
	}
	for _, id := range sortedIDs(d.Sensors) {
		if err := writeVar(f, id, " "); err != nil {
			return err
		}
	}
	for _, id := range sortedIDs(d.Platforms) {
		if err := writeVar(f, id, " "); err != nil {
			return err
		}
	}
	return finalize(ff)
}

// EncodeFile encodes the dataset into the named file, creating or
// truncating it.
func (d *Dataset) EncodeFile(path string) (err error) {
	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("obsnc: encoding %s: %v", path, err)
	}
	defer func() {
		if cerr := ff.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("obsnc: encoding %s: %v", path, cerr)
		}
	}()
	return d.Encode(ff)
}

// buildHeader lays out the file: the obs dimension and the string
// width dimensions, one variable per column plan, one dimensionless
// marker variable per sensor and platform, and the attributes of all
// of them in name order.
func (d *Dataset) buildHeader(plans []*varPlan) (*cdf.Header, error) {
	dims := []string{"obs"}
	lengths := []int{d.Table.Len()}
	for _, p := range plans {
		if p.store == storeChar {
			dims = append(dims, p.dims[1])
			lengths = append(lengths, p.width)
		}
	}
	h := cdf.NewHeader(dims, lengths)
	seen := make(map[string]bool, len(plans))
	for _, p := range plans {
		seen[p.name] = true
		h.AddVariable(p.name, p.dims, p.template())
		addAttributes(h, p.name, d.varAttrs(p))
	}
	for _, id := range sortedIDs(d.Sensors) {
		if seen[id] {
			return nil, fmt.Errorf("obsnc: encoding dataset: sensor %s collides with another variable", id)
		}
		seen[id] = true
		rec, _ := d.Sensors.Get(id)
		h.AddVariable(id, []string{}, "")
		addAttributes(h, id, sensorAttrs(rec))
	}
	for _, id := range sortedIDs(d.Platforms) {
		if seen[id] {
			return nil, fmt.Errorf("obsnc: encoding dataset: platform %s collides with another variable", id)
		}
		seen[id] = true
		rec, _ := d.Platforms.Get(id)
		h.AddVariable(id, []string{}, "")
		addAttributes(h, id, platformAttrs(rec))
	}
	addAttributes(h, "", globalAttrs(d.Global, true))
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return nil, fmt.Errorf("obsnc: encoding dataset: %v", err)
		}
	}
	return h, nil
}

// varAttrs assembles the attribute set of one data variable: the
// fill value and record metadata, the coordinate tuple on every
// data-bearing variable, and the storage fixups for flags and
// unsigned integers.
func (d *Dataset) varAttrs(p *varPlan) map[string]interface{} {
	attrs := recordAttrs(d.Variables[p.name])
	attrs["_FillValue"] = p.fill()
	if p.store == storeUintBits {
		attrs["_Unsigned"] = "true"
	}
	if p.store == storeByte {
		// Flag values must match the variable storage type.
		if fv, ok := attrs["flag_values"].([]int32); ok {
			b := make([]uint8, len(fv))
			for i, v := range fv {
				b[i] = uint8(v)
			}
			attrs["flag_values"] = b
		}
	}
	if !isCoordinate(p.name) && !strings.HasSuffix(p.name, "_QC") {
		attrs["coordinates"] = d.coordinateList()
	}
	return attrs
}

// recordAttrs flattens a variable record into attributes.
func recordAttrs(rec *VariableRecord) map[string]interface{} {
	attrs := make(map[string]interface{})
	if rec == nil {
		return attrs
	}
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}
	set("long_name", rec.LongName)
	set("standard_name", rec.StandardName)
	set("sdn_parameter_uri", rec.SDNParameter)
	set("sdn_uom_uri", rec.SDNUnits)
	set("units", rec.Units)
	set("variable_type", string(rec.Type))
	if len(rec.Ancillary) > 0 {
		attrs["ancillary_variables"] = strings.Join(rec.Ancillary, " ")
	}
	for k, v := range rec.Extra {
		attrs[k] = v
	}
	return attrs
}

// coordinateList is the coordinate tuple referenced by every
// data-bearing variable.
func (d *Dataset) coordinateList() string {
	list := "time depth latitude longitude platform_id sensor_id"
	if d.Table.Has(rolePreciseLat) && d.Table.Has(rolePreciseLon) {
		list += " precise_latitude precise_longitude"
	}
	return list
}

// sensorAttrs flattens a sensor record into the attribute set of its
// marker variable.
func sensorAttrs(rec *SensorRecord) map[string]interface{} {
	attrs := map[string]interface{}{"variable_type": string(VarSensor)}
	if rec == nil {
		return attrs
	}
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}
	set("sensor_model", rec.Model)
	set("sensor_model_uri", rec.SDNModel)
	set("sensor_manufacturer_name", rec.Manufacturer)
	set("sensor_serial_number", rec.SerialNumber)
	set("sensor_mount", rec.Mount)
	set("sensor_orientation", rec.Orientation)
	for k, v := range rec.Extra {
		attrs[k] = v
	}
	return attrs
}

// platformAttrs flattens a platform record into the attribute set of
// its marker variable. The deployment position is always written; it
// is what coordinate synthesis and the metadata-only mode read back.
func platformAttrs(rec *PlatformRecord) map[string]interface{} {
	attrs := map[string]interface{}{"variable_type": string(VarPlatform)}
	if rec == nil {
		return attrs
	}
	if rec.Name != "" {
		attrs["platform_name"] = rec.Name
	}
	if rec.Type != "" {
		attrs["platform_type"] = rec.Type
	}
	attrs["platform_deployment_latitude"] = rec.Latitude
	attrs["platform_deployment_longitude"] = rec.Longitude
	attrs["platform_deployment_depth"] = rec.Depth
	for k, v := range rec.Extra {
		attrs[k] = v
	}
	return attrs
}

// globalAttrs flattens the dataset-wide record. Coverage bounds are
// included unconditionally only when the caller has just recomputed
// them; zero-valued bounds on a metadata-only file mean unset.
func globalAttrs(g *GlobalRecord, withCoverage bool) map[string]interface{} {
	attrs := make(map[string]interface{})
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}
	set("title", g.Title)
	set("summary", g.Summary)
	set("institution", g.Institution)
	set("license", g.License)
	if len(g.Conventions) > 0 {
		attrs["Conventions"] = strings.Join(g.Conventions, " ")
	}
	set("featureType", g.FeatureType)
	if withCoverage {
		attrs["geospatial_lat_min"] = g.LatMin
		attrs["geospatial_lat_max"] = g.LatMax
		attrs["geospatial_lon_min"] = g.LonMin
		attrs["geospatial_lon_max"] = g.LonMax
		attrs["geospatial_vertical_min"] = g.DepthMin
		attrs["geospatial_vertical_max"] = g.DepthMax
	}
	if !g.TimeStart.IsZero() {
		attrs["time_coverage_start"] = g.TimeStart
	}
	if !g.TimeEnd.IsZero() {
		attrs["time_coverage_end"] = g.TimeEnd
	}
	if !g.Created.IsZero() {
		attrs["date_created"] = g.Created
	}
	if !g.Modified.IsZero() {
		attrs["date_modified"] = g.Modified
	}
	for k, v := range g.Extra {
		attrs[k] = v
	}
	return attrs
}

func hasCoverage(g *GlobalRecord) bool {
	return g.LatMin != 0 || g.LatMax != 0 || g.LonMin != 0 || g.LonMax != 0 ||
		g.DepthMin != 0 || g.DepthMax != 0
}

// attrValue converts a record value into one of the attribute types
// the classic format stores. Lists flatten to delimited strings, as
// in the harmonized metadata documents.
func attrValue(v interface{}) interface{} {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, " ")
	case CommaList:
		return strings.Join(x, ", ")
	case bool:
		if x {
			return "true"
		}
		return "false"
	case time.Time:
		return x.UTC().Format(isoTimeFormat)
	case float64:
		return []float64{x}
	case float32:
		return []float32{x}
	case int:
		return []int32{int32(x)}
	case int32:
		return []int32{x}
	case int64:
		return []int32{int32(x)}
	case []float64:
		return x
	case []float32:
		return x
	case []int32:
		return x
	case []int16:
		return x
	case []uint8:
		return x
	case []interface{}:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(x)
	}
}

// addAttributes adds a set of attributes in name order. The empty
// variable name addresses the global set.
func addAttributes(h *cdf.Header, v string, attrs map[string]interface{}) {
	for _, k := range sortedKeys(attrs) {
		h.AddAttribute(v, k, attrValue(attrs[k]))
	}
}

func writeVar(f *cdf.File, v string, values interface{}) error {
	w := f.Writer(v, nil, nil)
	if _, err := w.Write(values); err != nil {
		return fmt.Errorf("obsnc: writing variable %s: %v", v, err)
	}
	return nil
}

// finalize pads the data section to the 4-byte boundary the classic
// format expects and rewrites the record count, which Create leaves
// at the streaming marker.
func finalize(ff *os.File) error {
	fi, err := ff.Stat()
	if err != nil {
		return fmt.Errorf("obsnc: finalizing output file: %v", err)
	}
	if rem := fi.Size() % 4; rem != 0 {
		if _, err := ff.WriteAt(make([]byte, 4-rem), fi.Size()); err != nil {
			return fmt.Errorf("obsnc: finalizing output file: %v", err)
		}
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		return fmt.Errorf("obsnc: finalizing output file: %v", err)
	}
	return nil
}

func sortedIDs[T any](m *IDMap[T]) []string {
	ids := append([]string(nil), m.IDs()...)
	sort.Strings(ids)
	return ids
}

// EncodeMetadata writes a metadata-only file: the global attributes,
// a marker variable per sensor and platform, and the nominal position
// of the sole platform as scalar latitude and longitude variables.
// It fails unless exactly one platform is described.
func EncodeMetadata(meta *Metadata, ff *os.File) error {
	if meta.Sensors == nil {
		meta.Sensors = NewIDMap[*SensorRecord]()
	}
	if meta.Platforms == nil {
		meta.Platforms = NewIDMap[*PlatformRecord]()
	}
	if meta.Global == nil {
		meta.Global = &GlobalRecord{}
	}
	if meta.Platforms.Len() != 1 {
		return fmt.Errorf("obsnc: encoding metadata: need exactly one platform, have %d", meta.Platforms.Len())
	}
	platform, _ := meta.Platforms.Get(meta.Platforms.IDs()[0])

	h := cdf.NewHeader([]string{}, []int{})
	seen := make(map[string]bool)
	for _, name := range []string{roleLatitude, roleLongitude} {
		rec := meta.Variables[name]
		if rec == nil {
			rec, _ = defaultCoordinateRecord(name)
		}
		seen[name] = true
		h.AddVariable(name, []string{}, []float64{0})
		attrs := recordAttrs(rec)
		attrs["_FillValue"] = []float64{FillFloat}
		addAttributes(h, name, attrs)
	}
	for _, id := range sortedIDs(meta.Sensors) {
		if seen[id] {
			return fmt.Errorf("obsnc: encoding metadata: sensor %s collides with another variable", id)
		}
		seen[id] = true
		rec, _ := meta.Sensors.Get(id)
		h.AddVariable(id, []string{}, "")
		addAttributes(h, id, sensorAttrs(rec))
	}
	for _, id := range sortedIDs(meta.Platforms) {
		if seen[id] {
			return fmt.Errorf("obsnc: encoding metadata: platform %s collides with another variable", id)
		}
		seen[id] = true
		rec, _ := meta.Platforms.Get(id)
		h.AddVariable(id, []string{}, "")
		addAttributes(h, id, platformAttrs(rec))
	}
	addAttributes(h, "", globalAttrs(meta.Global, hasCoverage(meta.Global)))
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return fmt.Errorf("obsnc: encoding metadata: %v", err)
		}
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("obsnc: encoding metadata: %v", err)
	}
	if err := writeVar(f, roleLatitude, []float64{platform.Latitude}); err != nil {
		return err
	}
	if err := writeVar(f, roleLongitude, []float64{platform.Longitude}); err != nil {
		return err
	}
	for _, id := range sortedIDs(meta.Sensors) {
		if err := writeVar(f, id, " "); err != nil {
			return err
		}
	}
	for _, id := range sortedIDs(meta.Platforms) {
		if err := writeVar(f, id, " "); err != nil {
			return err
		}
	}
	return finalize(ff)
}

// EncodeMetadataFile encodes the metadata into the named file,
// creating or truncating it.
func EncodeMetadataFile(meta *Metadata, path string) (err error) {
	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("obsnc: encoding %s: %v", path, err)
	}
	defer func() {
		if cerr := ff.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("obsnc: encoding %s: %v", path, cerr)
		}
	}()
	return EncodeMetadata(meta, ff)
}
