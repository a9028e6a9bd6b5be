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
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
)

// Decode reads a classic NetCDF observation file back into a
// Dataset. Fill sentinels become null cells, character matrices
// become string columns and marker variables become sensor and
// platform records; the result passes through the same assembly as a
// dataset built directly from a table.
func Decode(ff *os.File) (*Dataset, error) {
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("obsnc: decoding dataset: %v", err)
	}
	h := f.Header
	meta := NewMetadata()
	table := NewTable()
	log := logrus.StandardLogger()

	for _, v := range h.Variables() {
		dims := h.Dimensions(v)
		switch {
		case len(dims) == 0:
			decodeMarker(h, v, meta)
		case dims[0] == "obs" && len(dims) <= 2:
			col, rec, err := decodeColumn(f, v)
			if err != nil {
				return nil, err
			}
			if col == nil {
				log.Warnf("obsnc: decoding dataset: skipping variable %s with dimensions %v", v, dims)
				continue
			}
			if err := table.AddColumn(col); err != nil {
				return nil, err
			}
			if rec != nil {
				meta.Variables[v] = rec
			}
		default:
			log.Warnf("obsnc: decoding dataset: skipping variable %s with dimensions %v", v, dims)
		}
	}
	decodeGlobal(h, meta.Global, log)
	return New(table, meta)
}

// DecodeFile decodes the named file.
func DecodeFile(path string) (*Dataset, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obsnc: decoding %s: %v", path, err)
	}
	defer ff.Close()
	return Decode(ff)
}

// decodeColumn reads one observation-dimensioned variable and its
// record. Two-dimensional variables that are not character matrices
// have no column form; for those the returned column is nil.
func decodeColumn(f *cdf.File, v string) (*Column, *VariableRecord, error) {
	h := f.Header
	lengths := h.Lengths(v)
	n := lengths[0]
	count := n
	width := 0
	if len(lengths) == 2 {
		width = lengths[1]
		count = n * width
	}
	r := f.Reader(v, nil, nil)
	buf := r.Zero(count)
	if width > 0 {
		if _, ok := buf.([]uint8); !ok {
			return nil, nil, nil
		}
	}
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("obsnc: decoding variable %s: %v", v, err)
	}
	rec, unsigned := decodeRecord(h, v)
	col, err := columnFromStorage(v, buf, n, width, rec, unsigned)
	if err != nil {
		return nil, nil, err
	}
	col.Name = v
	return col, rec, nil
}

// columnFromStorage rebuilds a column from the stored slice. width
// is zero for plain vectors and the matrix width for character
// matrices.
func columnFromStorage(name string, buf interface{}, n, width int, rec *VariableRecord, unsigned bool) (*Column, error) {
	switch vals := buf.(type) {
	case []float64:
		if rec != nil && rec.Units == timeUnits {
			col := &Column{Kind: TimeColumn, Times: make([]time.Time, n), Null: make([]bool, n)}
			for i, v := range vals {
				if v == FillFloat {
					col.Null[i] = true
					continue
				}
				col.Times[i] = timeFromEpoch(v)
			}
			return col, nil
		}
		col := &Column{Kind: FloatColumn, Floats: vals, Null: make([]bool, n)}
		for i, v := range vals {
			if v == FillFloat {
				col.Null[i] = true
				col.Floats[i] = 0
			}
		}
		return col, nil
	case []float32:
		col := &Column{Kind: FloatColumn, Floats: make([]float64, n), Null: make([]bool, n)}
		for i, v := range vals {
			col.Floats[i] = float64(v)
		}
		return col, nil
	case []int32:
		if unsigned {
			col := &Column{Kind: UintColumn, Uints: make([]uint64, n), Null: make([]bool, n)}
			for i, v := range vals {
				u := uint32(v)
				if u == FillUint {
					col.Null[i] = true
					continue
				}
				col.Uints[i] = uint64(u)
			}
			return col, nil
		}
		col := &Column{Kind: IntColumn, Ints: make([]int64, n), Null: make([]bool, n)}
		for i, v := range vals {
			if v == FillInt {
				col.Null[i] = true
				continue
			}
			col.Ints[i] = int64(v)
		}
		return col, nil
	case []int16:
		col := &Column{Kind: IntColumn, Ints: make([]int64, n), Null: make([]bool, n)}
		for i, v := range vals {
			col.Ints[i] = int64(v)
		}
		return col, nil
	case []uint8:
		if width == 0 {
			col := &Column{Kind: FlagColumn, Flags: make([]int8, n), Null: make([]bool, n)}
			for i, v := range vals {
				if v == FillQC {
					col.Null[i] = true
					continue
				}
				col.Flags[i] = int8(v)
			}
			return col, nil
		}
		col := &Column{Kind: StringColumn, Strings: make([]string, n), Null: make([]bool, n)}
		for i := 0; i < n; i++ {
			row := vals[i*width : (i+1)*width]
			if j := bytes.IndexByte(row, 0); j >= 0 {
				col.Strings[i] = string(row[:j])
				continue
			}
			s := string(row)
			// A full-width run of blanks is the fill pattern.
			if strings.TrimRight(s, " ") == "" {
				col.Null[i] = true
				continue
			}
			col.Strings[i] = s
		}
		return col, nil
	}
	return nil, fmt.Errorf("obsnc: decoding variable %s: unsupported storage type", name)
}

// timeFromEpoch inverts epochSeconds.
func timeFromEpoch(v float64) time.Time {
	sec := math.Floor(v)
	ns := math.Round((v - sec) * 1e9)
	if ns >= 1e9 {
		sec++
		ns -= 1e9
	}
	return time.Unix(int64(sec), int64(ns)).UTC()
}

// decodeRecord rebuilds a variable record from attributes, skipping
// the ones the encoder computes. The second return reports whether
// the variable is marked as unsigned storage.
func decodeRecord(h *cdf.Header, v string) (*VariableRecord, bool) {
	attrs := h.Attributes(v)
	if len(attrs) == 0 {
		return nil, false
	}
	rec := &VariableRecord{}
	unsigned := false
	for _, a := range attrs {
		val := h.GetAttribute(v, a)
		s, _ := val.(string)
		switch a {
		case "_FillValue", "coordinates":
			// recomputed at encoding time
		case "_Unsigned":
			unsigned = s == "true"
		case "long_name":
			rec.LongName = s
		case "standard_name":
			rec.StandardName = s
		case "sdn_parameter_uri":
			rec.SDNParameter = s
		case "sdn_uom_uri":
			rec.SDNUnits = s
		case "units":
			rec.Units = s
		case "variable_type":
			rec.Type = VarType(s)
		case "ancillary_variables":
			rec.Ancillary = strings.Fields(s)
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]interface{})
			}
			rec.Extra[a] = attrScalar(val)
		}
	}
	return rec, unsigned
}

// decodeMarker turns a dimensionless variable back into the sensor
// or platform record its attributes carry. Scalars without a marker
// type are ignored.
func decodeMarker(h *cdf.Header, v string, meta *Metadata) {
	kind, _ := h.GetAttribute(v, "variable_type").(string)
	switch VarType(kind) {
	case VarSensor:
		rec := &SensorRecord{}
		for _, a := range h.Attributes(v) {
			val := h.GetAttribute(v, a)
			s, _ := val.(string)
			switch a {
			case "variable_type", "_FillValue":
			case "sensor_model":
				rec.Model = s
			case "sensor_model_uri":
				rec.SDNModel = s
			case "sensor_manufacturer_name":
				rec.Manufacturer = s
			case "sensor_serial_number":
				rec.SerialNumber = s
			case "sensor_mount":
				rec.Mount = s
			case "sensor_orientation":
				rec.Orientation = s
			default:
				if rec.Extra == nil {
					rec.Extra = make(map[string]interface{})
				}
				rec.Extra[a] = attrScalar(val)
			}
		}
		meta.Sensors.Add(v, rec)
	case VarPlatform:
		rec := &PlatformRecord{}
		for _, a := range h.Attributes(v) {
			val := h.GetAttribute(v, a)
			switch a {
			case "variable_type", "_FillValue":
			case "platform_name":
				rec.Name, _ = val.(string)
			case "platform_type":
				rec.Type, _ = val.(string)
			case "platform_deployment_latitude":
				rec.Latitude, _ = attrFloat(val)
			case "platform_deployment_longitude":
				rec.Longitude, _ = attrFloat(val)
			case "platform_deployment_depth":
				rec.Depth, _ = attrFloat(val)
			default:
				if rec.Extra == nil {
					rec.Extra = make(map[string]interface{})
				}
				rec.Extra[a] = attrScalar(val)
			}
		}
		meta.Platforms.Add(v, rec)
	}
}

// decodeGlobal rebuilds the dataset-wide record from the global
// attributes.
func decodeGlobal(h *cdf.Header, g *GlobalRecord, log *logrus.Logger) {
	for _, a := range h.Attributes("") {
		val := h.GetAttribute("", a)
		s, _ := val.(string)
		switch a {
		case "title":
			g.Title = s
		case "summary":
			g.Summary = s
		case "institution":
			g.Institution = s
		case "license":
			g.License = s
		case "Conventions":
			g.Conventions = strings.Fields(s)
		case "featureType":
			g.FeatureType = s
		case "geospatial_lat_min":
			g.LatMin, _ = attrFloat(val)
		case "geospatial_lat_max":
			g.LatMax, _ = attrFloat(val)
		case "geospatial_lon_min":
			g.LonMin, _ = attrFloat(val)
		case "geospatial_lon_max":
			g.LonMax, _ = attrFloat(val)
		case "geospatial_vertical_min":
			g.DepthMin, _ = attrFloat(val)
		case "geospatial_vertical_max":
			g.DepthMax, _ = attrFloat(val)
		case "time_coverage_start":
			g.TimeStart = parseISOTime(s, a, log)
		case "time_coverage_end":
			g.TimeEnd = parseISOTime(s, a, log)
		case "date_created":
			g.Created = parseISOTime(s, a, log)
		case "date_modified":
			g.Modified = parseISOTime(s, a, log)
		default:
			if g.Extra == nil {
				g.Extra = make(map[string]interface{})
			}
			g.Extra[a] = attrScalar(val)
		}
	}
}

func parseISOTime(s, attr string, log *logrus.Logger) time.Time {
	t, err := time.Parse(isoTimeFormat, s)
	if err != nil {
		log.Warnf("obsnc: decoding dataset: unparseable %s %q", attr, s)
		return time.Time{}
	}
	return t
}

// attrFloat extracts a one-element numeric attribute.
func attrFloat(val interface{}) (float64, bool) {
	switch x := val.(type) {
	case []float64:
		if len(x) == 1 {
			return x[0], true
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) == 1 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

// attrScalar collapses one-element numeric attributes back to the
// scalars they were written from.
func attrScalar(val interface{}) interface{} {
	switch x := val.(type) {
	case []float64:
		if len(x) == 1 {
			return x[0]
		}
	case []float32:
		if len(x) == 1 {
			return x[0]
		}
	case []int32:
		if len(x) == 1 {
			return int(x[0])
		}
	case []int16:
		if len(x) == 1 {
			return int(x[0])
		}
	}
	return val
}
