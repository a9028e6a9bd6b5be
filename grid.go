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
	"os"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// FillGrid marks grid cells no observation maps to.
const FillGrid = -999.0

// gridAxes holds the two axes of the gridded layout and the flattened
// cell index of every table row. A cell of -1 means the row has no
// time or no depth and cannot be placed on the grid.
type gridAxes struct {
	times  []float64 // epoch seconds, ascending
	depths []float64 // ascending
	cells  []int
}

// gridAxes derives the axes from the distinct non-null times and
// depths of the table. The rows must be in canonical order so that
// the time axis comes out ascending; Align guarantees that.
func (d *Dataset) gridAxes() (*gridAxes, error) {
	tc := d.Table.Column(roleTime)
	if tc == nil {
		return nil, &MissingCoordinateError{Role: roleTime}
	}
	dc := d.Table.Column(roleDepth)
	if dc == nil {
		return nil, &MissingCoordinateError{Role: roleDepth}
	}

	ax := new(gridAxes)
	timeAt := make(map[int64]int)
	for i, t := range tc.Times {
		if tc.Null[i] {
			continue
		}
		k := t.UnixNano()
		if _, ok := timeAt[k]; !ok {
			timeAt[k] = len(ax.times)
			ax.times = append(ax.times, epochSeconds(t))
		}
	}
	if len(ax.times) == 0 {
		return nil, fmt.Errorf("obsnc: gridding dataset: no timestamped rows")
	}

	seen := make(map[float64]bool)
	for i, v := range dc.Floats {
		if !dc.Null[i] && !seen[v] {
			seen[v] = true
			ax.depths = append(ax.depths, v)
		}
	}
	if len(ax.depths) == 0 {
		return nil, fmt.Errorf("obsnc: gridding dataset: no depth values")
	}
	sort.Float64s(ax.depths)
	depthAt := make(map[float64]int, len(ax.depths))
	for i, v := range ax.depths {
		depthAt[v] = i
	}

	nd := len(ax.depths)
	ax.cells = make([]int, d.Table.Len())
	for i := range ax.cells {
		if tc.Null[i] || dc.Null[i] {
			ax.cells[i] = -1
			continue
		}
		ax.cells[i] = timeAt[tc.Times[i].UnixNano()]*nd + depthAt[dc.Floats[i]]
	}
	return ax, nil
}

// A gridPlan pairs one data column with its (time, depth) matrix.
// Numeric columns become double matrices, quality flags byte
// matrices.
type gridPlan struct {
	name  string
	store storageKind
	grid  *sparse.DenseArray
	flags []uint8
}

func (p *gridPlan) template() interface{} {
	if p.store == storeByte {
		return []uint8{0}
	}
	return []float64{0}
}

func (p *gridPlan) values() interface{} {
	if p.store == storeByte {
		return p.flags
	}
	return p.grid.Elements
}

// planGrid rasterizes every data column onto the (time, depth) grid.
// Text columns cannot be gridded and are dropped with a warning.
// When several rows land on one cell the later row wins.
func (d *Dataset) planGrid(ax *gridAxes) []*gridPlan {
	nt, nd := len(ax.times), len(ax.depths)
	names := make([]string, len(d.Table.Names()))
	copy(names, d.Table.Names())
	sort.Strings(names)

	var plans []*gridPlan
	clobbered := 0
	for _, name := range names {
		if isCoordinate(name) {
			continue
		}
		c := d.Table.Column(name)
		if strings.HasSuffix(name, "_QC") || c.Kind == FlagColumn {
			flags := make([]uint8, nt*nd)
			for i := range flags {
				flags[i] = FillQC
			}
			for i := 0; i < c.Len(); i++ {
				if ax.cells[i] < 0 || c.Null[i] {
					continue
				}
				flags[ax.cells[i]] = flagByte(c, i)
			}
			plans = append(plans, &gridPlan{name: name, store: storeByte, flags: flags})
			continue
		}
		if c.Kind == StringColumn {
			d.Log.Warnf("obsnc: gridding dataset: dropping text column %s", name)
			continue
		}
		g := sparse.ZerosDense(nt, nd)
		for i := range g.Elements {
			g.Elements[i] = FillGrid
		}
		for i := 0; i < c.Len(); i++ {
			if ax.cells[i] < 0 || c.Null[i] {
				continue
			}
			ti, di := ax.cells[i]/nd, ax.cells[i]%nd
			if g.Get(ti, di) != FillGrid {
				clobbered++
			}
			g.Set(numericAt(c, i), ti, di)
		}
		plans = append(plans, &gridPlan{name: name, store: storeDouble, grid: g})
	}
	if clobbered > 0 {
		d.Log.Warnf("obsnc: gridding dataset: %d cells written more than once", clobbered)
	}
	return plans
}

// flagByte reads row i of a quality flag column, whatever numeric
// kind carries it.
func flagByte(c *Column, i int) uint8 {
	switch c.Kind {
	case FlagColumn:
		return uint8(c.Flags[i])
	case IntColumn:
		return uint8(c.Ints[i])
	case UintColumn:
		return uint8(c.Uints[i])
	case FloatColumn:
		return uint8(c.Floats[i])
	}
	return FillQC
}

// numericAt reads row i of a numeric column as a double.
func numericAt(c *Column, i int) float64 {
	switch c.Kind {
	case FloatColumn:
		return c.Floats[i]
	case IntColumn:
		return float64(c.Ints[i])
	case UintColumn:
		return float64(c.Uints[i])
	case TimeColumn:
		return epochSeconds(c.Times[i])
	}
	return FillGrid
}

// EncodeGrid writes a timeSeriesProfile dataset to ff in the gridded
// layout: time is the record dimension, depth a fixed dimension, and
// every data column a dense (time, depth) matrix with FillGrid in
// cells no observation maps to. The station position is written as
// nominal latitude and longitude scalars. Identifier columns carry no
// numeric values and stay out of the grid; the sensor and platform
// marker variables still carry the full device metadata.
func (d *Dataset) EncodeGrid(ff *os.File) error {
	if err := d.Align(); err != nil {
		return err
	}
	if d.Global.FeatureType != string(TimeSeriesProfile) {
		return fmt.Errorf("obsnc: gridding dataset: layout needs %s data, have %s",
			TimeSeriesProfile, d.Global.FeatureType)
	}
	d.autofillBounds()
	ax, err := d.gridAxes()
	if err != nil {
		return err
	}
	dropped := 0
	for _, cell := range ax.cells {
		if cell < 0 {
			dropped++
		}
	}
	if dropped > 0 {
		d.Log.Warnf("obsnc: gridding dataset: %d rows lack time or depth and were left out", dropped)
	}
	plans := d.planGrid(ax)
	h, err := d.buildGridHeader(ax, plans)
	if err != nil {
		return err
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("obsnc: gridding dataset: %v", err)
	}

	// Fixed variables first, then the record variables, which extend
	// the file one time slab at a time.
	if err := writeVar(f, roleDepth, ax.depths); err != nil {
		return err
	}
	if err := writeVar(f, roleLatitude, []float64{nominalFloat(d.Table.Column(roleLatitude))}); err != nil {
		return err
	}
	if err := writeVar(f, roleLongitude, []float64{nominalFloat(d.Table.Column(roleLongitude))}); err != nil {
		return err
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
	if err := writeVar(f, roleTime, ax.times); err != nil {
		return err
	}
	for _, name := range []string{rolePreciseLat, rolePreciseLon} {
		if !d.Table.Has(name) {
			continue
		}
		if err := writeVar(f, name, profileFloats(d.Table.Column(name), ax)); err != nil {
			return err
		}
	}
	for _, p := range plans {
		if err := writeVar(f, p.name, p.values()); err != nil {
			return err
		}
	}
	return finalize(ff)
}

// EncodeGridFile encodes the dataset in the gridded layout into the
// named file, creating or truncating it.
func (d *Dataset) EncodeGridFile(path string) (err error) {
	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("obsnc: gridding %s: %v", path, err)
	}
	defer func() {
		if cerr := ff.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("obsnc: gridding %s: %v", path, cerr)
		}
	}()
	return d.EncodeGrid(ff)
}

// buildGridHeader lays out the gridded file: the record time
// dimension and the fixed depth dimension, the four coordinate
// variables, one matrix per plan, and the marker variables.
func (d *Dataset) buildGridHeader(ax *gridAxes, plans []*gridPlan) (*cdf.Header, error) {
	h := cdf.NewHeader([]string{roleTime, roleDepth}, []int{0, len(ax.depths)})

	seen := map[string]bool{
		roleTime: true, roleDepth: true, roleLatitude: true, roleLongitude: true,
	}
	h.AddVariable(roleTime, []string{roleTime}, []float64{0})
	addAttributes(h, roleTime, d.gridCoordAttrs(roleTime))
	h.AddVariable(roleDepth, []string{roleDepth}, []float64{0})
	addAttributes(h, roleDepth, d.gridCoordAttrs(roleDepth))
	h.AddVariable(roleLatitude, []string{}, []float64{0})
	addAttributes(h, roleLatitude, d.gridCoordAttrs(roleLatitude))
	h.AddVariable(roleLongitude, []string{}, []float64{0})
	addAttributes(h, roleLongitude, d.gridCoordAttrs(roleLongitude))
	for _, name := range []string{rolePreciseLat, rolePreciseLon} {
		if !d.Table.Has(name) {
			continue
		}
		seen[name] = true
		h.AddVariable(name, []string{roleTime}, []float64{0})
		addAttributes(h, name, d.gridCoordAttrs(name))
	}
	for _, p := range plans {
		seen[p.name] = true
		h.AddVariable(p.name, []string{roleTime, roleDepth}, p.template())
		addAttributes(h, p.name, d.gridVarAttrs(p))
	}
	for _, id := range sortedIDs(d.Sensors) {
		if seen[id] {
			return nil, fmt.Errorf("obsnc: gridding dataset: sensor %s collides with another variable", id)
		}
		seen[id] = true
		rec, _ := d.Sensors.Get(id)
		h.AddVariable(id, []string{}, "")
		addAttributes(h, id, sensorAttrs(rec))
	}
	for _, id := range sortedIDs(d.Platforms) {
		if seen[id] {
			return nil, fmt.Errorf("obsnc: gridding dataset: platform %s collides with another variable", id)
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
			return nil, fmt.Errorf("obsnc: gridding dataset: %v", err)
		}
	}
	return h, nil
}

// gridCoordAttrs assembles the attributes of a coordinate variable in
// the gridded layout.
func (d *Dataset) gridCoordAttrs(name string) map[string]interface{} {
	attrs := recordAttrs(d.Variables[name])
	attrs["_FillValue"] = []float64{FillFloat}
	return attrs
}

// gridVarAttrs assembles the attributes of one matrix variable.
func (d *Dataset) gridVarAttrs(p *gridPlan) map[string]interface{} {
	attrs := recordAttrs(d.Variables[p.name])
	if p.store == storeByte {
		attrs["_FillValue"] = []uint8{FillQC}
		// Flag values must match the variable storage type.
		if fv, ok := attrs["flag_values"].([]int32); ok {
			b := make([]uint8, len(fv))
			for i, v := range fv {
				b[i] = uint8(v)
			}
			attrs["flag_values"] = b
		}
	} else {
		attrs["_FillValue"] = []float64{FillGrid}
	}
	if !strings.HasSuffix(p.name, "_QC") {
		attrs["coordinates"] = "time depth latitude longitude"
	}
	return attrs
}

// nominalFloat is the first non-null value of c, the station position
// convention for fixed platforms.
func nominalFloat(c *Column) float64 {
	if c != nil {
		for i, v := range c.Floats {
			if !c.Null[i] {
				return v
			}
		}
	}
	return FillFloat
}

// profileFloats collapses a per-row column to one value per profile,
// indexed along the time axis.
func profileFloats(c *Column, ax *gridAxes) []float64 {
	nd := len(ax.depths)
	out := make([]float64, len(ax.times))
	for i := range out {
		out[i] = FillFloat
	}
	for i := 0; i < c.Len(); i++ {
		if ax.cells[i] < 0 || c.Null[i] {
			continue
		}
		out[ax.cells[i]/nd] = c.Floats[i]
	}
	return out
}
