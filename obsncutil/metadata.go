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

package obsncutil

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/oceanmodel/obsnc"
	"github.com/spf13/cast"
	"github.com/tidwall/jsonc"
)

// A document is the parsed form of one metadata file: a JSON object
// with global, variables, sensors and platforms sections. Sensors and
// platforms are keyed by the identifiers used in the sensor_id and
// platform_id observation columns. Comments and trailing commas are
// allowed in the file and stripped before parsing.
type document struct {
	Global    map[string]interface{}            `json:"global"`
	Variables map[string]map[string]interface{} `json:"variables"`
	Sensors   map[string]map[string]interface{} `json:"sensors"`
	Platforms map[string]map[string]interface{} `json:"platforms"`
}

func newDocument() *document {
	return &document{
		Global:    make(map[string]interface{}),
		Variables: make(map[string]map[string]interface{}),
		Sensors:   make(map[string]map[string]interface{}),
		Platforms: make(map[string]map[string]interface{}),
	}
}

// LoadMetadata reads one or more metadata documents and merges them
// into a single Metadata. Merging is first-wins per field: later
// documents fill gaps left by earlier ones but never overwrite them,
// so site-wide defaults can follow a deployment-specific document on
// the command line. The merged document is validated before
// conversion, and every missing mandatory field is reported in one
// error.
func LoadMetadata(paths ...string) (*obsnc.Metadata, error) {
	merged := newDocument()
	for _, p := range paths {
		doc, err := readDocument(p)
		if err != nil {
			return nil, err
		}
		merged.merge(doc)
	}
	if err := merged.validate(); err != nil {
		return nil, err
	}
	return merged.metadata()
}

func readDocument(path string) (*document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("obsnc: reading %s: %v", path, err)
	}
	doc := newDocument()
	if err := json.Unmarshal(jsonc.ToJSON(b), doc); err != nil {
		return nil, fmt.Errorf("obsnc: parsing %s: %v", path, err)
	}
	return doc, nil
}

// merge copies into d every field of o that d does not already have.
func (d *document) merge(o *document) {
	for k, v := range o.Global {
		if _, ok := d.Global[k]; !ok {
			d.Global[k] = v
		}
	}
	mergeSection(d.Variables, o.Variables)
	mergeSection(d.Sensors, o.Sensors)
	mergeSection(d.Platforms, o.Platforms)
}

func mergeSection(dst, src map[string]map[string]interface{}) {
	for name, fields := range src {
		if _, ok := dst[name]; !ok {
			dst[name] = make(map[string]interface{})
		}
		for k, v := range fields {
			if _, ok := dst[name][k]; !ok {
				dst[name][k] = v
			}
		}
	}
}

// mandatoryGlobal, mandatoryVariable, mandatorySensor and
// mandatoryPlatform are the fields a merged document must carry.
// Coordinate columns and QC or standard-deviation companions are
// exempt: their records are filled from stock defaults at assembly.
var (
	mandatoryGlobal   = []string{"title", "summary", "institution", "license"}
	mandatoryVariable = []string{"long_name", "units"}
	mandatorySensor   = []string{"sensor_model", "sensor_serial_number"}
	mandatoryPlatform = []string{
		"platform_name",
		"platform_deployment_latitude",
		"platform_deployment_longitude",
		"platform_deployment_depth",
	}
)

// validate reports every missing mandatory field at once, so a sparse
// document can be completed in a single editing pass.
func (d *document) validate() error {
	var missing []string
	for _, key := range mandatoryGlobal {
		if !present(d.Global, key) {
			missing = append(missing, "global."+key)
		}
	}
	for _, name := range sortedKeys(d.Variables) {
		if obsnc.IsCoordinate(name) || strings.HasSuffix(name, "_QC") || strings.HasSuffix(name, "_STD") {
			continue
		}
		for _, key := range mandatoryVariable {
			if !present(d.Variables[name], key) {
				missing = append(missing, "variables."+name+"."+key)
			}
		}
	}
	for _, id := range sortedKeys(d.Sensors) {
		for _, key := range mandatorySensor {
			if !present(d.Sensors[id], key) {
				missing = append(missing, "sensors."+id+"."+key)
			}
		}
	}
	for _, id := range sortedKeys(d.Platforms) {
		for _, key := range mandatoryPlatform {
			if !present(d.Platforms[id], key) {
				missing = append(missing, "platforms."+id+"."+key)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("obsnc: metadata is missing mandatory fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// present reports whether key holds a usable value: set, non-nil and,
// for strings, not blank.
func present(m map[string]interface{}, key string) bool {
	v, ok := m[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// metadata converts the merged document into typed records. Field
// names mirror the NetCDF attributes the encoder writes, so a decoded
// file and a hand-written document use the same vocabulary; anything
// outside the fixed set is carried through as an extra attribute.
func (d *document) metadata() (*obsnc.Metadata, error) {
	m := obsnc.NewMetadata()
	var err error
	for _, key := range sortedKeys(d.Global) {
		v := d.Global[key]
		g := m.Global
		switch key {
		case "title":
			g.Title, err = cast.ToStringE(v)
		case "summary":
			g.Summary, err = cast.ToStringE(v)
		case "institution":
			g.Institution, err = cast.ToStringE(v)
		case "license":
			g.License, err = cast.ToStringE(v)
		case "Conventions":
			g.Conventions, err = stringList(v)
		case "featureType":
			g.FeatureType, err = cast.ToStringE(v)
		case "geospatial_lat_min":
			g.LatMin, err = cast.ToFloat64E(v)
		case "geospatial_lat_max":
			g.LatMax, err = cast.ToFloat64E(v)
		case "geospatial_lon_min":
			g.LonMin, err = cast.ToFloat64E(v)
		case "geospatial_lon_max":
			g.LonMax, err = cast.ToFloat64E(v)
		case "geospatial_vertical_min":
			g.DepthMin, err = cast.ToFloat64E(v)
		case "geospatial_vertical_max":
			g.DepthMax, err = cast.ToFloat64E(v)
		case "time_coverage_start":
			g.TimeStart, err = cast.ToTimeE(v)
		case "time_coverage_end":
			g.TimeEnd, err = cast.ToTimeE(v)
		case "date_created":
			g.Created, err = cast.ToTimeE(v)
		case "date_modified":
			g.Modified, err = cast.ToTimeE(v)
		default:
			if g.Extra == nil {
				g.Extra = make(map[string]interface{})
			}
			g.Extra[key] = v
		}
		if err != nil {
			return nil, fmt.Errorf("obsnc: metadata field global.%s: %v", key, err)
		}
	}

	for _, name := range sortedKeys(d.Variables) {
		rec := &obsnc.VariableRecord{}
		for _, key := range sortedKeys(d.Variables[name]) {
			v := d.Variables[name][key]
			switch key {
			case "long_name":
				rec.LongName, err = cast.ToStringE(v)
			case "standard_name":
				rec.StandardName, err = cast.ToStringE(v)
			case "sdn_parameter_uri":
				rec.SDNParameter, err = cast.ToStringE(v)
			case "sdn_uom_uri":
				rec.SDNUnits, err = cast.ToStringE(v)
			case "units":
				rec.Units, err = cast.ToStringE(v)
			case "variable_type":
				var s string
				s, err = cast.ToStringE(v)
				rec.Type = obsnc.VarType(s)
			case "ancillary_variables":
				rec.Ancillary, err = stringList(v)
			default:
				if rec.Extra == nil {
					rec.Extra = make(map[string]interface{})
				}
				rec.Extra[key] = v
			}
			if err != nil {
				return nil, fmt.Errorf("obsnc: metadata field variables.%s.%s: %v", name, key, err)
			}
		}
		m.Variables[name] = rec
	}

	for _, id := range sortedKeys(d.Sensors) {
		rec := &obsnc.SensorRecord{}
		for _, key := range sortedKeys(d.Sensors[id]) {
			v := d.Sensors[id][key]
			switch key {
			case "sensor_model":
				rec.Model, err = cast.ToStringE(v)
			case "sensor_model_uri":
				rec.SDNModel, err = cast.ToStringE(v)
			case "sensor_manufacturer_name":
				rec.Manufacturer, err = cast.ToStringE(v)
			case "sensor_serial_number":
				rec.SerialNumber, err = cast.ToStringE(v)
			case "sensor_mount":
				rec.Mount, err = cast.ToStringE(v)
			case "sensor_orientation":
				rec.Orientation, err = cast.ToStringE(v)
			default:
				if rec.Extra == nil {
					rec.Extra = make(map[string]interface{})
				}
				rec.Extra[key] = v
			}
			if err != nil {
				return nil, fmt.Errorf("obsnc: metadata field sensors.%s.%s: %v", id, key, err)
			}
		}
		m.Sensors.Add(id, rec)
	}

	for _, id := range sortedKeys(d.Platforms) {
		rec := &obsnc.PlatformRecord{}
		for _, key := range sortedKeys(d.Platforms[id]) {
			v := d.Platforms[id][key]
			switch key {
			case "platform_name":
				rec.Name, err = cast.ToStringE(v)
			case "platform_type":
				rec.Type, err = cast.ToStringE(v)
			case "platform_deployment_latitude":
				rec.Latitude, err = cast.ToFloat64E(v)
			case "platform_deployment_longitude":
				rec.Longitude, err = cast.ToFloat64E(v)
			case "platform_deployment_depth":
				rec.Depth, err = cast.ToFloat64E(v)
			default:
				if rec.Extra == nil {
					rec.Extra = make(map[string]interface{})
				}
				rec.Extra[key] = v
			}
			if err != nil {
				return nil, fmt.Errorf("obsnc: metadata field platforms.%s.%s: %v", id, key, err)
			}
		}
		m.Platforms.Add(id, rec)
	}
	return m, nil
}

// stringList accepts either a JSON list of strings or a single
// comma- or space-separated string.
func stringList(v interface{}) ([]string, error) {
	if s, ok := v.(string); ok {
		return strings.Fields(strings.ReplaceAll(s, ",", " ")), nil
	}
	return cast.ToStringSliceE(v)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
