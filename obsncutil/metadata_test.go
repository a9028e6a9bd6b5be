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
	"reflect"
	"strings"
	"testing"
)

func TestLoadMetadata(t *testing.T) {
	meta, err := LoadMetadata("testdata/meta.json", "testdata/site.json")
	if err != nil {
		t.Fatal(err)
	}

	g := meta.Global
	if g.Title != "Albatross Bay mooring, summer deployment" {
		t.Errorf("title = %q; the first document should win", g.Title)
	}
	if g.License != "CC-BY-4.0" {
		t.Errorf("license = %q; want CC-BY-4.0", g.License)
	}
	if got := g.Extra["site_code"]; got != "ALB1" {
		t.Errorf("site_code = %v; want ALB1", got)
	}
	if got := g.Extra["project"]; got != "EMSO test site" {
		t.Errorf("project = %v; want EMSO test site", got)
	}

	temp, ok := meta.Variables["TEMP"]
	if !ok {
		t.Fatal("no TEMP variable record")
	}
	if temp.LongName != "sea water temperature" || temp.Units != "degC" {
		t.Errorf("TEMP = %+v; want long_name and units from the deployment document", temp)
	}
	if want := "https://vocab.nerc.ac.uk/collection/P01/current/TEMPPR01/"; temp.SDNParameter != want {
		t.Errorf("TEMP parameter URI = %q; want %q", temp.SDNParameter, want)
	}

	sensor, ok := meta.Sensors.Get("sbe37")
	if !ok {
		t.Fatal("no sbe37 sensor record")
	}
	if sensor.Model != "SBE 37-IM MicroCAT" || sensor.SerialNumber != "10231" {
		t.Errorf("sbe37 = %+v; want the recorded model and serial number", sensor)
	}
	if sensor.Mount != "mounted_on_mooring_line" {
		t.Errorf("sbe37 mount = %q; want mounted_on_mooring_line", sensor.Mount)
	}

	platform, ok := meta.Platforms.Get("buoy1")
	if !ok {
		t.Fatal("no buoy1 platform record")
	}
	if platform.Name != "Albatross Bay buoy" || platform.Type != "surface buoy" {
		t.Errorf("buoy1 = %+v; the site document should fill the type", platform)
	}
	if platform.Latitude != 39.21 || platform.Longitude != 2.37 || platform.Depth != 12.5 {
		t.Errorf("buoy1 position = %v,%v,%v; want 39.21,2.37,12.5",
			platform.Latitude, platform.Longitude, platform.Depth)
	}
}

func TestLoadMetadataIncomplete(t *testing.T) {
	_, err := LoadMetadata("testdata/incomplete.json")
	if err == nil {
		t.Fatal("an incomplete document should not validate")
	}
	for _, want := range []string{
		"global.summary",
		"global.institution",
		"global.license",
		"variables.TEMP.units",
		"sensors.sbe37.sensor_serial_number",
		"platforms.buoy1.platform_deployment_depth",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %s", err, want)
		}
	}
	for _, exempt := range []string{
		"variables.time",
		"variables.TEMP_QC",
		"variables.TEMP.long_name",
	} {
		if strings.Contains(err.Error(), exempt) {
			t.Errorf("error %q names %s, which is present or exempt", err, exempt)
		}
	}
}

func TestStringList(t *testing.T) {
	cases := []struct {
		in   interface{}
		want []string
	}{
		{"OceanSITES, CF-1.8", []string{"OceanSITES", "CF-1.8"}},
		{"EMSO", []string{"EMSO"}},
		{[]interface{}{"a", "b"}, []string{"a", "b"}},
	}
	for _, c := range cases {
		got, err := stringList(c.in)
		if err != nil {
			t.Fatalf("stringList(%v): %v", c.in, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("stringList(%v) = %v; want %v", c.in, got, c.want)
		}
	}
}
