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
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/oceanmodel/obsnc"
	"github.com/oceanmodel/obsnc/vocab"
)

func TestLoadJob(t *testing.T) {
	job, err := LoadJob("testdata/job.toml")
	if err != nil {
		t.Fatal(err)
	}
	want := &Job{
		Data:         []string{"testdata/obs.csv"},
		Metadata:     []string{"testdata/meta.json", "testdata/site.json"},
		Output:       "albatross.nc",
		Autofill:     true,
		VocabFixture: "testdata/vocab.json",
	}
	if !reflect.DeepEqual(job, want) {
		t.Errorf("job = %+v; want %+v", job, want)
	}
}

func TestJobRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "albatross.nc")
	job := &Job{
		Data:         []string{"testdata/obs.csv"},
		Metadata:     []string{"testdata/meta.json", "testdata/site.json"},
		Output:       out,
		Autofill:     true,
		VocabFixture: "testdata/vocab.json",
	}
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	d, err := obsnc.DecodeFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if d.Table.Len() != 4 {
		t.Errorf("rows = %d; want 4", d.Table.Len())
	}
	if d.Global.Title != "Albatross Bay mooring, summer deployment" {
		t.Errorf("title = %q", d.Global.Title)
	}
	if d.Global.FeatureType != "timeSeries" {
		t.Errorf("featureType = %q; want timeSeries", d.Global.FeatureType)
	}
	if temp := d.Table.Column("TEMP"); temp == nil || !temp.Null[2] {
		t.Error("the missing TEMP value should decode as null")
	}
	// Flag 9 is the flag fill value, so it comes back as a null flag.
	if qc := d.Table.Column("TEMP_QC"); qc == nil || !qc.Null[2] {
		t.Error("flag 9 should decode as a null flag")
	}
	lat := d.Table.Column("latitude")
	if lat == nil {
		t.Fatal("no synthesized latitude column")
	}
	if lat.Floats[0] != 39.21 {
		t.Errorf("latitude = %v; want the platform deployment latitude", lat.Floats[0])
	}

	var buf bytes.Buffer
	if err := Inspect(&buf, out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"obs = 4", "double TEMP(obs)", "geometry: timeSeries"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("inspect output does not contain %q:\n%s", want, buf.String())
		}
	}
}

func TestJobRunGridded(t *testing.T) {
	out := filepath.Join(t.TempDir(), "profile.nc")
	job := &Job{
		Data:     []string{"testdata/profile.csv"},
		Metadata: []string{"testdata/meta.json", "testdata/site.json"},
		Output:   out,
		Gridded:  true,
	}
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Inspect(&buf, out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"time = 2 (record)",
		"depth = 3",
		"double TEMP(time, depth)",
		"geometry: timeSeriesProfile",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("inspect output does not contain %q:\n%s", want, buf.String())
		}
	}
}

func TestJobRunMetadataOnly(t *testing.T) {
	out := filepath.Join(t.TempDir(), "site.nc")
	job := &Job{
		Metadata:     []string{"testdata/meta.json", "testdata/site.json"},
		Output:       out,
		MetadataOnly: true,
	}
	if err := job.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Inspect(&buf, out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"double latitude", "char buoy1"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("inspect output does not contain %q:\n%s", want, buf.String())
		}
	}
}

func TestJobVocabulary(t *testing.T) {
	j := &Job{VocabFixture: "testdata/vocab.json"}
	v, err := j.vocabulary(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*vocab.Fixture); !ok {
		t.Errorf("vocabulary = %T; want a fixture when VocabFixture is set", v)
	}

	j = &Job{VocabCache: t.TempDir()}
	v, err = j.vocabulary(nil)
	if err != nil {
		t.Fatal(err)
	}
	c, ok := v.(*vocab.Client)
	if !ok {
		t.Fatalf("vocabulary = %T; want a live client", v)
	}
	if c.CacheDir != j.VocabCache {
		t.Errorf("cache dir = %q; want %q", c.CacheDir, j.VocabCache)
	}
}
