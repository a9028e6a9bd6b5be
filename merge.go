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
	"reflect"
	"time"

	"github.com/sirupsen/logrus"
)

// Merge combines several datasets into one. The inputs must share a
// compatible geometry family: either all timeSeries, or a mix of
// timeSeries and timeSeriesProfile. Rows are concatenated and
// re-sorted by (time, depth). Global attributes consolidate with
// first-writer-wins precedence, and variable, sensor and platform
// records are unioned by identifier with first-occurrence-wins; every
// discarded later value that differs from the kept one is logged as a
// warning. Coverage bounds and the creation and modification stamps
// are recomputed from the concatenated result at now, never
// inherited. Merging a single input returns it unchanged. The inputs
// are consumed: their tables and records end up shared with the
// result and must not be used afterwards.
func Merge(inputs []*Dataset, now time.Time) (*Dataset, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("obsnc: merging datasets: no inputs")
	}
	if len(inputs) == 1 {
		return inputs[0], nil
	}

	geoms := make([]Geometry, len(inputs))
	for i, in := range inputs {
		g, err := in.Geometry()
		if err != nil {
			return nil, err
		}
		geoms[i] = g
	}
	merged, err := aggregateGeometries(geoms)
	if err != nil {
		return nil, err
	}
	if merged != TimeSeries && merged != TimeSeriesProfile {
		return nil, &IncompatibleGeometryMixError{Geometries: geoms}
	}

	log := inputs[0].Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	table := NewTable()
	for _, in := range inputs {
		if err := in.Sort(); err != nil {
			return nil, err
		}
		if err := table.Append(in.Table); err != nil {
			return nil, err
		}
	}

	global := &GlobalRecord{}
	variables := make(map[string]*VariableRecord)
	sensors := NewIDMap[*SensorRecord]()
	platforms := NewIDMap[*PlatformRecord]()
	for _, in := range inputs {
		mergeGlobal(global, in.Global, log)
		for _, name := range sortedKeys(in.Variables) {
			// Identifier records are rebuilt by coordinate synthesis
			// on the merged result.
			if name == roleSensorID || name == rolePlatformID {
				continue
			}
			rec := in.Variables[name]
			kept, ok := variables[name]
			if !ok {
				variables[name] = rec
				continue
			}
			if !reflect.DeepEqual(kept, rec) {
				log.Warnf("obsnc: merging datasets: variable %s described differently by a later input; keeping the first description", name)
			}
		}
		for _, id := range in.Sensors.IDs() {
			rec, _ := in.Sensors.Get(id)
			if sensors.Add(id, rec) {
				continue
			}
			if kept, _ := sensors.Get(id); !reflect.DeepEqual(kept, rec) {
				log.Warnf("obsnc: merging datasets: sensor %s described differently by a later input; keeping the first description", id)
			}
		}
		for _, id := range in.Platforms.IDs() {
			rec, _ := in.Platforms.Get(id)
			if platforms.Add(id, rec) {
				continue
			}
			if kept, _ := platforms.Get(id); !reflect.DeepEqual(kept, rec) {
				log.Warnf("obsnc: merging datasets: platform %s described differently by a later input; keeping the first description", id)
			}
		}
	}

	out := &Dataset{
		Table:     table,
		Global:    global,
		Variables: variables,
		Sensors:   sensors,
		Platforms: platforms,
		ScanLimit: inputs[0].ScanLimit,
		Log:       log,
	}
	if err := out.assemble(); err != nil {
		return nil, err
	}
	out.Global.FeatureType = string(merged)
	out.AutofillCoverage(now)
	return out, nil
}

// mergeGlobal copies the descriptive fields of src that dst does not
// yet carry. The feature type, coverage bounds and date stamps are
// deliberately left alone: Merge recomputes them from the combined
// rows.
func mergeGlobal(dst, src *GlobalRecord, log *logrus.Logger) {
	first := func(dst *string, src, key string) {
		if src == "" {
			return
		}
		if *dst == "" {
			*dst = src
		} else if *dst != src {
			log.Warnf("obsnc: merging datasets: conflicting %s %q discarded; keeping %q", key, src, *dst)
		}
	}
	first(&dst.Title, src.Title, "title")
	first(&dst.Summary, src.Summary, "summary")
	first(&dst.Institution, src.Institution, "institution")
	first(&dst.License, src.License, "license")
	if len(dst.Conventions) == 0 {
		dst.Conventions = src.Conventions
	}
	for _, k := range sortedKeys(src.Extra) {
		v := src.Extra[k]
		if dst.Extra == nil {
			dst.Extra = make(map[string]interface{})
		}
		kept, ok := dst.Extra[k]
		if !ok {
			dst.Extra[k] = v
			continue
		}
		if !reflect.DeepEqual(kept, v) {
			log.Warnf("obsnc: merging datasets: conflicting attribute %s discarded; keeping the first value", k)
		}
	}
}
