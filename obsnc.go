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

// Package obsnc assembles tabular, time-stamped sensor observations
// and layered descriptive metadata into self-describing NetCDF files
// that follow the Climate & Forecast discrete sampling geometry
// conventions as practiced by the OceanSITES and EMSO ocean
// observatory networks.
//
// The central type is the Dataset: an observation table bound to
// global, per-variable, per-sensor and per-platform metadata records.
// A Dataset is built with New, which resolves heterogeneous coordinate
// names, synthesizes omitted coordinate columns, verifies metadata
// completeness and sorts the rows canonically. The feature type
// (timeSeries, timeSeriesProfile, trajectory or trajectoryProfile) is
// inferred from the data unless declared. Several Datasets can be
// combined with Merge, and a finalized Dataset is written to disk with
// EncodeFile and read back with DecodeFile.
//
// A Dataset is not safe for concurrent mutation. Distinct Datasets
// share no state and may be processed in parallel.
package obsnc

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Version is the release of the obsnc library and tools.
const Version = "0.1.0"

// DefaultScanLimit bounds how many timestamps or position fixes
// geometry inference examines per sensor before settling on a feature
// type.
const DefaultScanLimit = 100

// An IDMap is an insertion-ordered map from identifier to record.
// Iteration follows the order identifiers were first added, which
// makes first-wins precedence rules explicit: when the same identifier
// is offered twice, the first record is kept and Add reports the
// rejection.
type IDMap[T any] struct {
	ids []string
	m   map[string]T
}

// NewIDMap returns an empty IDMap.
func NewIDMap[T any]() *IDMap[T] {
	return &IDMap[T]{m: make(map[string]T)}
}

// Add inserts v under id. If id is already present the map is
// unchanged and Add returns false.
func (m *IDMap[T]) Add(id string, v T) bool {
	if _, ok := m.m[id]; ok {
		return false
	}
	m.ids = append(m.ids, id)
	m.m[id] = v
	return true
}

// Get returns the record stored under id.
func (m *IDMap[T]) Get(id string) (T, bool) {
	v, ok := m.m[id]
	return v, ok
}

// Has reports whether id is present.
func (m *IDMap[T]) Has(id string) bool {
	_, ok := m.m[id]
	return ok
}

// IDs returns the identifiers in insertion order.
func (m *IDMap[T]) IDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}

// Len returns the number of records.
func (m *IDMap[T]) Len() int { return len(m.ids) }

// remove deletes the record under id, if present.
func (m *IDMap[T]) remove(id string) {
	if _, ok := m.m[id]; !ok {
		return
	}
	delete(m.m, id)
	for i, v := range m.ids {
		if v == id {
			m.ids = append(m.ids[:i], m.ids[i+1:]...)
			return
		}
	}
}

// rename moves the record under old to new, keeping its position.
func (m *IDMap[T]) rename(old, new string) {
	if old == new {
		return
	}
	v, ok := m.m[old]
	if !ok {
		return
	}
	delete(m.m, old)
	m.m[new] = v
	for i, id := range m.ids {
		if id == old {
			m.ids[i] = new
		}
	}
}

// Metadata bundles the four record layers that describe an
// observation table.
type Metadata struct {
	Global    *GlobalRecord
	Variables map[string]*VariableRecord
	Sensors   *IDMap[*SensorRecord]
	Platforms *IDMap[*PlatformRecord]
}

// NewMetadata returns an empty Metadata with all layers allocated.
func NewMetadata() *Metadata {
	return &Metadata{
		Global:    &GlobalRecord{},
		Variables: make(map[string]*VariableRecord),
		Sensors:   NewIDMap[*SensorRecord](),
		Platforms: NewIDMap[*PlatformRecord](),
	}
}

// Clone returns a deep copy of m. A Dataset retains the metadata it
// was built from and rewrites it in place, so a caller assembling
// several datasets from one document set must hand each its own copy.
func (m *Metadata) Clone() *Metadata {
	c := NewMetadata()
	if m == nil {
		return c
	}
	if m.Global != nil {
		g := *m.Global
		g.Conventions = append([]string(nil), m.Global.Conventions...)
		g.Extra = cloneExtra(m.Global.Extra)
		c.Global = &g
	}
	for name, rec := range m.Variables {
		r := *rec
		r.Ancillary = append([]string(nil), rec.Ancillary...)
		r.Extra = cloneExtra(rec.Extra)
		c.Variables[name] = &r
	}
	if m.Sensors != nil {
		for _, id := range m.Sensors.IDs() {
			rec, _ := m.Sensors.Get(id)
			r := *rec
			r.Extra = cloneExtra(rec.Extra)
			c.Sensors.Add(id, &r)
		}
	}
	if m.Platforms != nil {
		for _, id := range m.Platforms.IDs() {
			rec, _ := m.Platforms.Get(id)
			r := *rec
			r.Extra = cloneExtra(rec.Extra)
			c.Platforms.Add(id, &r)
		}
	}
	return c
}

func cloneExtra(extra map[string]interface{}) map[string]interface{} {
	if extra == nil {
		return nil
	}
	c := make(map[string]interface{}, len(extra))
	for k, v := range extra {
		c[k] = v
	}
	return c
}

// A Dataset pairs an observation table with its metadata records and
// a resolved feature type. Construct one with New or DecodeFile
// rather than building the struct directly: the constructor
// establishes the invariants (canonical coordinate names, normalized
// identifiers, complete metadata, sorted rows) that the rest of the
// package relies on.
type Dataset struct {
	Table     *Table
	Global    *GlobalRecord
	Variables map[string]*VariableRecord
	Sensors   *IDMap[*SensorRecord]
	Platforms *IDMap[*PlatformRecord]

	// ScanLimit bounds the geometry inference scan. Zero means
	// DefaultScanLimit.
	ScanLimit int

	// Log receives warnings about discarded duplicates and other
	// non-fatal conditions. New sets it to logrus.StandardLogger.
	Log *logrus.Logger
}

func (d *Dataset) scanLimit() int {
	if d.ScanLimit <= 0 {
		return DefaultScanLimit
	}
	return d.ScanLimit
}

// Rows returns the number of observation rows.
func (d *Dataset) Rows() int { return d.Table.Len() }

// sortedKeys returns the keys of m in ascending order, so map
// iteration cannot leak nondeterminism into output or logs.
func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
