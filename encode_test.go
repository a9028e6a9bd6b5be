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
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/cdf"
)

// roundTripDataset assembles a dataset exercising every column
// storage: timestamps, floats, flags, integers, unsigned integers
// and strings, with a null cell in most of them.
func roundTripDataset(t *testing.T) *Dataset {
	t.Helper()
	meta := testMeta()
	meta.Variables["PSAL"] = &VariableRecord{LongName: "sea water practical salinity", Units: "psu"}
	meta.Variables["note"] = &VariableRecord{LongName: "observer note"}
	meta.Variables["count"] = &VariableRecord{LongName: "scan count", Units: "1"}
	meta.Variables["serial"] = &VariableRecord{LongName: "message serial number", Units: "1"}

	temp := NewFloatColumn("TEMP", []float64{14.8, 15.1, 0, 15.4})
	temp.Null[2] = true
	psal := NewFloatColumn("PSAL", []float64{38.1, 38.2, 38.2, 0})
	psal.Null[3] = true
	note := NewStringColumn("note", []string{"calm", "", "swell", "calm"})
	note.Null[1] = true
	count := NewIntColumn("count", []int64{12, -3, 7, 0})
	count.Null[3] = true

	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 1, 2, 3)),
		temp,
		NewFlagColumn("TEMP_QC", []int8{1, 1, 9, 1}),
		psal,
		note,
		count,
		NewUintColumn("serial", []uint64{101, 102, 103, 104}),
	), meta)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := roundTripDataset(t)
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	d.AutofillCoverage(now)

	path := filepath.Join(t.TempDir(), "obs.nc")
	if err := d.EncodeFile(path); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if got.Table.Len() != 4 {
		t.Fatalf("rows = %d; want 4", got.Table.Len())
	}
	g := got.Global
	if g.Title != d.Global.Title || g.Summary != d.Global.Summary ||
		g.Institution != d.Global.Institution || g.License != d.Global.License {
		t.Errorf("global record = %+v; want %+v", g, d.Global)
	}
	if g.FeatureType != "timeSeries" {
		t.Errorf("featureType = %q; want timeSeries", g.FeatureType)
	}
	if g.LatMin != 39.21 || g.DepthMax != 12.5 {
		t.Errorf("coverage = %+v; want the platform constants", g)
	}
	if !g.TimeStart.Equal(testHours(0)[0]) || !g.TimeEnd.Equal(testHours(3)[0]) {
		t.Errorf("time coverage = %v..%v", g.TimeStart, g.TimeEnd)
	}
	if !g.Created.Equal(now) || !g.Modified.Equal(now) {
		t.Errorf("stamps = %v/%v; want %v", g.Created, g.Modified, now)
	}

	tc := got.Table.Column("time")
	for i, want := range testHours(0, 1, 2, 3) {
		if !tc.Times[i].Equal(want) {
			t.Errorf("time[%d] = %v; want %v", i, tc.Times[i], want)
		}
	}
	temp := got.Table.Column("TEMP")
	if temp.Floats[0] != 14.8 || !temp.Null[2] {
		t.Errorf("TEMP = %v null %v", temp.Floats, temp.Null)
	}
	// Flag 9 and the flag fill value share a byte, so it comes back
	// as a null flag.
	qc := got.Table.Column("TEMP_QC")
	if qc.Kind != FlagColumn || qc.Flags[0] != 1 || !qc.Null[2] {
		t.Errorf("TEMP_QC = %v null %v", qc.Flags, qc.Null)
	}
	note := got.Table.Column("note")
	if !reflect.DeepEqual(note.Strings, []string{"calm", "", "swell", "calm"}) || !note.Null[1] {
		t.Errorf("note = %q null %v", note.Strings, note.Null)
	}
	count := got.Table.Column("count")
	if count.Kind != IntColumn || count.Ints[1] != -3 || !count.Null[3] {
		t.Errorf("count = %v null %v", count.Ints, count.Null)
	}
	serial := got.Table.Column("serial")
	if serial.Kind != UintColumn || !reflect.DeepEqual(serial.Uints, []uint64{101, 102, 103, 104}) {
		t.Errorf("serial = %v; want the unsigned values back", serial.Uints)
	}

	temprec := got.Variables["TEMP"]
	if temprec.LongName != "sea water temperature" || temprec.Units != "degC" {
		t.Errorf("TEMP record = %+v", temprec)
	}
	if !reflect.DeepEqual(temprec.Ancillary, []string{"TEMP_QC"}) {
		t.Errorf("TEMP ancillary = %v; want [TEMP_QC]", temprec.Ancillary)
	}
	sensor, ok := got.Sensors.Get("sbe37")
	if !ok || sensor.Model != "SBE 37-IM" || sensor.SerialNumber != "10231" {
		t.Errorf("sensor = %+v; want the encoded record back", sensor)
	}
	platform, ok := got.Platforms.Get("buoy1")
	if !ok || platform.Name != "Albatross Bay buoy" || platform.Latitude != 39.21 {
		t.Errorf("platform = %+v; want the encoded record back", platform)
	}
}

func TestEncodeDeterminism(t *testing.T) {
	d := roundTripDataset(t)
	d.AutofillCoverage(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	dir := t.TempDir()
	first := filepath.Join(dir, "first.nc")
	second := filepath.Join(dir, "second.nc")
	if err := d.EncodeFile(first); err != nil {
		t.Fatal(err)
	}
	if err := d.EncodeFile(second); err != nil {
		t.Fatal(err)
	}
	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding the same dataset twice should produce identical bytes")
	}

	// Decoding and re-encoding is stable too.
	decoded, err := DecodeFile(first)
	if err != nil {
		t.Fatal(err)
	}
	third := filepath.Join(dir, "third.nc")
	if err := decoded.EncodeFile(third); err != nil {
		t.Fatal(err)
	}
	c, err := os.ReadFile(third)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, c) {
		t.Error("re-encoding a decoded file should reproduce it")
	}
}

func TestPlanColumn(t *testing.T) {
	cases := []struct {
		name     string
		col      *Column
		store    storageKind
		dims     []string
		width    int
		compress bool
	}{
		{"TEMP", NewFloatColumn("TEMP", []float64{14.8}), storeDouble, []string{"obs"}, 0, true},
		{"time", NewTimeColumn("time", testHours(0)), storeEpoch, []string{"obs"}, 0, true},
		{"count", NewIntColumn("count", []int64{3}), storeInt, []string{"obs"}, 0, true},
		{"serial", NewUintColumn("serial", []uint64{101}), storeUintBits, []string{"obs"}, 0, true},
		{"TEMP_QC", NewFlagColumn("TEMP_QC", []int8{1}), storeByte, []string{"obs"}, 0, true},
		{"rank_QC", NewIntColumn("rank_QC", []int64{2}), storeByte, []string{"obs"}, 0, true},
		{"note", NewStringColumn("note", []string{"calm", "swell"}), storeChar, []string{"obs", "note_strlen"}, 5, false},
		{"blank", NewStringColumn("blank", []string{""}), storeChar, []string{"obs", "blank_strlen"}, 1, false},
	}
	for _, c := range cases {
		p, err := planColumn(c.name, c.col)
		if err != nil {
			t.Errorf("%s: %v", c.name, err)
			continue
		}
		if p.store != c.store {
			t.Errorf("%s: store = %v; want %v", c.name, p.store, c.store)
		}
		if !reflect.DeepEqual(p.dims, c.dims) {
			t.Errorf("%s: dims = %v; want %v", c.name, p.dims, c.dims)
		}
		if p.width != c.width {
			t.Errorf("%s: width = %d; want %d", c.name, p.width, c.width)
		}
		if p.compress != c.compress {
			t.Errorf("%s: compress = %v; want %v", c.name, p.compress, c.compress)
		}
	}
}

func TestPlanColumnRejectsTextFlags(t *testing.T) {
	_, err := planColumn("TEMP_QC", NewStringColumn("TEMP_QC", []string{"good"}))
	var ute *UnsupportedColumnTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("err = %v; want an unsupported column type error", err)
	}
	if ute.Column != "TEMP_QC" || ute.Kind != StringColumn {
		t.Errorf("err = %+v", ute)
	}
}

func TestEncodeMetadataFile(t *testing.T) {
	meta := testMeta()
	path := filepath.Join(t.TempDir(), "site.nc")
	if err := EncodeMetadataFile(meta, path); err != nil {
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
	if got, _ := h.GetAttribute("", "title").(string); got != "Albatross Bay mooring" {
		t.Errorf("title = %q", got)
	}
	if got, _ := h.GetAttribute("sbe37", "sensor_model").(string); got != "SBE 37-IM" {
		t.Errorf("sensor_model = %q", got)
	}
	lat, _ := h.GetAttribute("buoy1", "platform_deployment_latitude").([]float64)
	if len(lat) != 1 || lat[0] != 39.21 {
		t.Errorf("platform latitude attribute = %v; want [39.21]", lat)
	}

	r := f.Reader("latitude", nil, nil)
	buf := r.Zero(1)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if vals, ok := buf.([]float64); !ok || vals[0] != 39.21 {
		t.Errorf("latitude scalar = %v; want 39.21", buf)
	}
}

func TestEncodeMetadataNeedsOnePlatform(t *testing.T) {
	meta := testMeta()
	meta.Platforms.Add("buoy2", &PlatformRecord{Name: "second buoy"})
	err := EncodeMetadataFile(meta, filepath.Join(t.TempDir(), "site.nc"))
	if err == nil {
		t.Error("two platforms should not encode as a metadata-only file")
	}
}
