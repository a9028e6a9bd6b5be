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
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeVocab serves terms and relations from fixed maps, keyed
// "vocab|id" and "vocab|id|relation|target".
type fakeVocab struct {
	terms     map[string]Term
	relations map[string][]string
}

func (f *fakeVocab) Term(ctx context.Context, vocab, id string) (Term, error) {
	t, ok := f.terms[vocab+"|"+id]
	if !ok {
		return Term{}, fmt.Errorf("no term %s in %s", id, vocab)
	}
	return t, nil
}

func (f *fakeVocab) Relations(ctx context.Context, vocab, id, relation, target string) ([]string, error) {
	return f.relations[vocab+"|"+id+"|"+relation+"|"+target], nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestHarmonizeURI(t *testing.T) {
	cases := map[string]string{
		"https://vocab.nerc.ac.uk/collection/P01/current/TEMPPR01/": "http://vocab.nerc.ac.uk/collection/P01/current/TEMPPR01/",
		"http://vocab.nerc.ac.uk/collection/L06/current/48":         "http://vocab.nerc.ac.uk/collection/L06/current/48/",
		"http://vocab.nerc.ac.uk/collection/P06/current/UPAA/":      "http://vocab.nerc.ac.uk/collection/P06/current/UPAA/",
	}
	for in, want := range cases {
		if got := HarmonizeURI(in); got != want {
			t.Errorf("HarmonizeURI(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestAutofillVocabulary(t *testing.T) {
	const (
		param = "http://vocab.nerc.ac.uk/collection/P01/current/TEMPPR01/"
		uom   = "http://vocab.nerc.ac.uk/collection/P06/current/UPAA/"
		cf    = "http://vocab.nerc.ac.uk/collection/P07/current/CFSN0335/"
		model = "http://vocab.nerc.ac.uk/collection/L22/current/TOOL0022/"
		maker = "http://vocab.nerc.ac.uk/collection/L35/current/MAN0013/"
		ptype = "http://vocab.nerc.ac.uk/collection/L06/current/48/"
	)
	v := &fakeVocab{
		terms: map[string]Term{
			"P01|" + param: {URI: param, URN: "SDN:P01::TEMPPR01", Label: " Temperature of the water body "},
			"P06|" + uom:   {URI: uom, URN: "SDN:P06::UPAA", Label: "Degrees Celsius", AltLabel: "degC"},
			"P07|" + cf:    {URI: cf, URN: "SDN:P07::CFSN0335", Label: "sea_water_temperature"},
			"L22|" + model: {URI: model, URN: "SDN:L22::TOOL0022", Label: "Sea-Bird SBE 37-IM MicroCAT"},
			"L35|" + maker: {URI: maker, URN: "SDN:L35::MAN0013", Label: "Sea-Bird Scientific"},
			"L06|" + ptype: {URI: ptype, URN: "SDN:L06::48", Label: "mooring"},
		},
		relations: map[string][]string{
			"P01|" + param + "|related|P06": {uom},
			"P01|" + param + "|broader|P07": {cf},
			"L22|" + model + "|related|L35": {maker},
		},
	}

	meta := testMeta()
	// The https spelling must harmonize to the lookup form.
	meta.Variables["TEMP"] = &VariableRecord{
		SDNParameter: "https://vocab.nerc.ac.uk/collection/P01/current/TEMPPR01/",
	}
	meta.Sensors = NewIDMap[*SensorRecord]()
	meta.Sensors.Add("sbe37", &SensorRecord{SDNModel: model})
	meta.Platforms = NewIDMap[*PlatformRecord]()
	meta.Platforms.Add("buoy1", &PlatformRecord{
		Name: "Albatross Bay buoy", Latitude: 39.21, Longitude: 2.37, Depth: 12.5,
		Extra: map[string]interface{}{"platform_type_uri": "https://vocab.nerc.ac.uk/collection/L06/current/48"},
	})

	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 1)),
		NewFloatColumn("TEMP", []float64{14.8, 15.1}),
	), meta)
	if err != nil {
		t.Fatal(err)
	}
	d.Log = quietLogger()

	if err := d.AutofillVocabulary(context.Background(), v); err != nil {
		t.Fatal(err)
	}

	temp := d.Variables["TEMP"]
	if temp.SDNParameter != param {
		t.Errorf("parameter URI = %q; want the harmonized %q", temp.SDNParameter, param)
	}
	if temp.LongName != "Temperature of the water body" {
		t.Errorf("long name = %q", temp.LongName)
	}
	if temp.Units != "degC" {
		t.Errorf("units = %q; want the alternative unit label", temp.Units)
	}
	if temp.SDNUnits != uom {
		t.Errorf("unit URI = %q; want %q", temp.SDNUnits, uom)
	}
	if temp.StandardName != "sea_water_temperature" {
		t.Errorf("standard name = %q", temp.StandardName)
	}
	if got := temp.Extra["sdn_parameter_urn"]; got != "SDN:P01::TEMPPR01" {
		t.Errorf("sdn_parameter_urn = %v", got)
	}
	if got := temp.Extra["sdn_uom_name"]; got != "Degrees Celsius" {
		t.Errorf("sdn_uom_name = %v", got)
	}

	sensor, _ := d.Sensors.Get("sbe37")
	if sensor.Model != "Sea-Bird SBE 37-IM MicroCAT" {
		t.Errorf("sensor model = %q", sensor.Model)
	}
	if sensor.Manufacturer != "Sea-Bird Scientific" {
		t.Errorf("manufacturer = %q", sensor.Manufacturer)
	}
	if got := sensor.Extra["sensor_SeaVoX_L22_code"]; got != "SDN:L22::TOOL0022" {
		t.Errorf("L22 code = %v", got)
	}
	if got := sensor.Extra["sensor_manufacturer_urn"]; got != "SDN:L35::MAN0013" {
		t.Errorf("manufacturer URN = %v", got)
	}

	platform, _ := d.Platforms.Get("buoy1")
	if platform.Type != "mooring" {
		t.Errorf("platform type = %q", platform.Type)
	}
	if got := platform.Extra["platform_type_uri"]; got != ptype {
		t.Errorf("platform type URI = %v; want the harmonized %q", got, ptype)
	}

	if got := d.Global.Extra["license_uri"]; got != "https://spdx.org/licenses/CC-BY-4.0" {
		t.Errorf("license URI = %v", got)
	}
	for _, c := range []string{"OceanSITES", "EMSO"} {
		found := false
		for _, have := range d.Global.Conventions {
			if have == c {
				found = true
			}
		}
		if !found {
			t.Errorf("conventions = %v; want %s present", d.Global.Conventions, c)
		}
	}
}

func TestAutofillVocabularyKeepsExisting(t *testing.T) {
	v := &fakeVocab{
		terms: map[string]Term{
			"P01|http://vocab.nerc.ac.uk/collection/P01/current/TEMPPR01/": {
				URN: "SDN:P01::TEMPPR01", Label: "Temperature of the water body",
			},
		},
	}
	meta := testMeta()
	meta.Variables["TEMP"].SDNParameter = "http://vocab.nerc.ac.uk/collection/P01/current/TEMPPR01/"
	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 1)),
		NewFloatColumn("TEMP", []float64{14.8, 15.1}),
	), meta)
	if err != nil {
		t.Fatal(err)
	}
	d.Log = quietLogger()

	if err := d.AutofillVocabulary(context.Background(), v); err != nil {
		t.Fatal(err)
	}
	temp := d.Variables["TEMP"]
	if temp.LongName != "sea water temperature" {
		t.Errorf("long name = %q; the written value should survive", temp.LongName)
	}
	if temp.Units != "degC" {
		t.Errorf("units = %q; the written value should survive", temp.Units)
	}
}

func TestAutofillVocabularyCanceled(t *testing.T) {
	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 1)),
		NewFloatColumn("TEMP", []float64{14.8, 15.1}),
	), testMeta())
	if err != nil {
		t.Fatal(err)
	}
	d.Log = quietLogger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.AutofillVocabulary(ctx, &fakeVocab{}); err == nil {
		t.Error("a canceled context should stop the fill")
	}
}

func TestAutofillCoverage(t *testing.T) {
	d, err := New(newTestTable(t,
		NewTimeColumn("time", testHours(0, 1, 2)),
		NewFloatColumn("TEMP", []float64{14.8, 15.1, 15.0}),
	), testMeta())
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	d.AutofillCoverage(now)

	g := d.Global
	if g.LatMin != 39.21 || g.LatMax != 39.21 {
		t.Errorf("latitude bounds = %v..%v; want 39.21..39.21", g.LatMin, g.LatMax)
	}
	if g.LonMin != 2.37 || g.LonMax != 2.37 {
		t.Errorf("longitude bounds = %v..%v; want 2.37..2.37", g.LonMin, g.LonMax)
	}
	if g.DepthMin != 12.5 || g.DepthMax != 12.5 {
		t.Errorf("depth bounds = %v..%v; want 12.5..12.5", g.DepthMin, g.DepthMax)
	}
	if !g.TimeStart.Equal(testHours(0)[0]) || !g.TimeEnd.Equal(testHours(2)[0]) {
		t.Errorf("time coverage = %v..%v", g.TimeStart, g.TimeEnd)
	}
	if !g.Created.Equal(now) || !g.Modified.Equal(now) {
		t.Errorf("stamps = %v/%v; want %v", g.Created, g.Modified, now)
	}

	// A later pass keeps the creation stamp and renews the
	// modification stamp.
	later := now.Add(24 * time.Hour)
	d.AutofillCoverage(later)
	if !d.Global.Created.Equal(now) {
		t.Errorf("created = %v; want the original %v", d.Global.Created, now)
	}
	if !d.Global.Modified.Equal(later) {
		t.Errorf("modified = %v; want %v", d.Global.Modified, later)
	}
}
