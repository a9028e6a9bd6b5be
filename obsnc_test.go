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
	"reflect"
	"testing"
)

func TestIDMap(t *testing.T) {
	m := NewIDMap[int]()
	if !m.Add("zulu", 1) {
		t.Error("adding a new identifier should succeed")
	}
	if !m.Add("alpha", 2) {
		t.Error("adding a second identifier should succeed")
	}
	if m.Add("zulu", 3) {
		t.Error("adding a duplicate identifier should be rejected")
	}
	if got := m.IDs(); !reflect.DeepEqual(got, []string{"zulu", "alpha"}) {
		t.Errorf("ids = %v; want insertion order [zulu alpha]", got)
	}
	if v, ok := m.Get("zulu"); !ok || v != 1 {
		t.Errorf("zulu = %v, %v; the first record should win", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("missing identifier reported as present")
	}
	if !m.Has("alpha") || m.Has("missing") {
		t.Error("Has disagrees with Get")
	}
	if m.Len() != 2 {
		t.Errorf("len = %d; want 2", m.Len())
	}
}

func TestIDMapRenameRemove(t *testing.T) {
	m := NewIDMap[int]()
	m.Add("a", 1)
	m.Add("b", 2)
	m.Add("c", 3)

	m.rename("b", "B")
	if got := m.IDs(); !reflect.DeepEqual(got, []string{"a", "B", "c"}) {
		t.Errorf("ids after rename = %v; want [a B c]", got)
	}
	if v, ok := m.Get("B"); !ok || v != 2 {
		t.Errorf("B = %v, %v", v, ok)
	}
	if m.Has("b") {
		t.Error("old identifier still present after rename")
	}
	m.rename("missing", "x")
	if m.Len() != 3 {
		t.Error("renaming a missing identifier should change nothing")
	}

	m.remove("B")
	if got := m.IDs(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("ids after remove = %v; want [a c]", got)
	}
	m.remove("missing")
	if m.Len() != 2 {
		t.Error("removing a missing identifier should change nothing")
	}
}

func TestMetadataClone(t *testing.T) {
	m := NewMetadata()
	m.Global = &GlobalRecord{
		Title:       "Albatross Bay mooring",
		Conventions: []string{"CF-1.8"},
		Extra:       map[string]interface{}{"site_code": "ALB1"},
	}
	m.Variables["TEMP"] = &VariableRecord{
		LongName:  "sea water temperature",
		Ancillary: []string{"TEMP_QC"},
		Extra:     map[string]interface{}{"comment": "hourly"},
	}
	m.Sensors.Add("sbe37", &SensorRecord{
		Model: "SBE 37-IM",
		Extra: map[string]interface{}{"sensor_mount": "mounted_on_mooring_line"},
	})
	m.Platforms.Add("buoy1", &PlatformRecord{Name: "Albatross Bay buoy", Latitude: 39.21})

	c := m.Clone()
	c.Global.Title = "changed"
	c.Global.Conventions[0] = "changed"
	c.Global.Extra["site_code"] = "changed"
	c.Variables["TEMP"].LongName = "changed"
	c.Variables["TEMP"].Ancillary[0] = "changed"
	c.Variables["TEMP"].Extra["comment"] = "changed"
	delete(c.Variables, "TEMP")
	cs, _ := c.Sensors.Get("sbe37")
	cs.Model = "changed"
	cs.Extra["sensor_mount"] = "changed"
	cp, _ := c.Platforms.Get("buoy1")
	cp.Latitude = 0

	if m.Global.Title != "Albatross Bay mooring" {
		t.Errorf("title = %q", m.Global.Title)
	}
	if m.Global.Conventions[0] != "CF-1.8" {
		t.Errorf("conventions = %v", m.Global.Conventions)
	}
	if m.Global.Extra["site_code"] != "ALB1" {
		t.Errorf("extra = %v", m.Global.Extra)
	}
	rec, ok := m.Variables["TEMP"]
	if !ok {
		t.Fatal("TEMP record deleted through the clone")
	}
	if rec.LongName != "sea water temperature" || rec.Ancillary[0] != "TEMP_QC" || rec.Extra["comment"] != "hourly" {
		t.Errorf("TEMP record = %+v", rec)
	}
	s, _ := m.Sensors.Get("sbe37")
	if s.Model != "SBE 37-IM" || s.Extra["sensor_mount"] != "mounted_on_mooring_line" {
		t.Errorf("sensor record = %+v", s)
	}
	p, _ := m.Platforms.Get("buoy1")
	if p.Latitude != 39.21 {
		t.Errorf("platform latitude = %v", p.Latitude)
	}
}

func TestMetadataCloneNil(t *testing.T) {
	var m *Metadata
	c := m.Clone()
	if c == nil || c.Global == nil || c.Variables == nil || c.Sensors == nil || c.Platforms == nil {
		t.Fatalf("cloning a nil metadata should allocate every layer; got %+v", c)
	}
}
