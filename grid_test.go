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
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
)

// profileDataset assembles two profiles of three depths each, with
// the deepest cell of the second profile never sampled.
func profileDataset(t *testing.T) *Dataset {
	t.Helper()
	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 0, 0, 6, 6)),
		NewFloatColumn("depth", []float64{0, 10, 20, 0, 10}),
		NewFloatColumn("TEMP", []float64{15.2, 14.1, 13.3, 15.4, 14.2}),
		NewFlagColumn("TEMP_QC", []int8{1, 1, 2, 1, 1}),
	), testMeta())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestGridAxes(t *testing.T) {
	d := profileDataset(t)
	ax, err := d.gridAxes()
	if err != nil {
		t.Fatal(err)
	}
	if len(ax.times) != 2 {
		t.Errorf("time axis = %v; want 2 profiles", ax.times)
	}
	if got, want := ax.depths, []float64{0, 10, 20}; !reflect.DeepEqual(got, want) {
		t.Errorf("depth axis = %v; want %v", got, want)
	}
	if got, want := ax.cells, []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("cells = %v; want %v", got, want)
	}
}

func TestGridAxesNullRows(t *testing.T) {
	depth := NewFloatColumn("depth", []float64{0, 0})
	depth.Null[1] = true
	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 0)),
		depth,
		NewFloatColumn("TEMP", []float64{15.2, 14.1}),
	), testMeta())
	if err != nil {
		t.Fatal(err)
	}
	ax, err := d.gridAxes()
	if err != nil {
		t.Fatal(err)
	}
	if ax.cells[1] != -1 {
		t.Errorf("cells = %v; a row without depth cannot be placed", ax.cells)
	}
}

func TestPlanGridLastRowWins(t *testing.T) {
	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 0)),
		NewFloatColumn("depth", []float64{10, 10}),
		NewFloatColumn("TEMP", []float64{14.8, 15.1}),
	), testMeta())
	if err != nil {
		t.Fatal(err)
	}
	d.Log = quietLogger()
	ax, err := d.gridAxes()
	if err != nil {
		t.Fatal(err)
	}
	plans := d.planGrid(ax)
	var temp *gridPlan
	for _, p := range plans {
		if p.name == "TEMP" {
			temp = p
		}
	}
	if temp == nil {
		t.Fatal("no TEMP plan")
	}
	if got := temp.grid.Get(0, 0); got != 15.1 {
		t.Errorf("cell = %v; the later row should win", got)
	}
}

func TestEncodeGrid(t *testing.T) {
	d := profileDataset(t)
	path := filepath.Join(t.TempDir(), "profile.nc")
	if err := d.EncodeGridFile(path); err != nil {
		t.Fatal(err)
	}

	ff, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		t.Fatal(err)
	}
	h := f.Header

	if got, _ := h.GetAttribute("", "featureType").(string); got != "timeSeriesProfile" {
		t.Errorf("featureType = %q; want timeSeriesProfile", got)
	}
	if got, want := h.Dimensions("TEMP"), []string{"time", "depth"}; !reflect.DeepEqual(got, want) {
		t.Errorf("TEMP dimensions = %v; want %v", got, want)
	}

	read := func(v string, n int) interface{} {
		t.Helper()
		r := f.Reader(v, nil, nil)
		buf := r.Zero(n)
		if _, err := r.Read(buf); err != nil && err != io.EOF {
			t.Fatalf("reading %s: %v", v, err)
		}
		return buf
	}

	if got, want := read("depth", 3), []float64{0, 10, 20}; !reflect.DeepEqual(got, want) {
		t.Errorf("depth = %v; want %v", got, want)
	}
	if got, want := read("TEMP", 6), []float64{15.2, 14.1, 13.3, 15.4, 14.2, FillGrid}; !reflect.DeepEqual(got, want) {
		t.Errorf("TEMP grid = %v; want %v", got, want)
	}
	if got, want := read("TEMP_QC", 6), []uint8{1, 1, 2, 1, 1, FillQC}; !reflect.DeepEqual(got, want) {
		t.Errorf("TEMP_QC grid = %v; want %v", got, want)
	}
	if got := read("latitude", 1).([]float64); got[0] != 39.21 {
		t.Errorf("latitude = %v; want the station constant", got)
	}
	times := read("time", 2).([]float64)
	if times[0] != float64(testHours(0)[0].Unix()) || times[1] != float64(testHours(6)[0].Unix()) {
		t.Errorf("time axis = %v; want the profile epochs", times)
	}

	fv, _ := h.GetAttribute("TEMP", "_FillValue").([]float64)
	if len(fv) != 1 || fv[0] != FillGrid {
		t.Errorf("TEMP _FillValue = %v; want [%v]", fv, FillGrid)
	}
}

func TestEncodeGridRejectsTimeSeries(t *testing.T) {
	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 1)),
		NewFloatColumn("TEMP", []float64{14.8, 15.1}),
	), testMeta())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.EncodeGridFile(filepath.Join(t.TempDir(), "flat.nc")); err == nil {
		t.Error("the gridded layout should reject a plain time series")
	}
}
