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
	"strings"
	"time"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
)

// A Term is one entry of a controlled vocabulary.
type Term struct {
	URI      string
	URN      string // short identifier, e.g. SDN:P01::PSLTZZ01
	Label    string // preferred label
	AltLabel string
}

// A Vocabulary resolves controlled-vocabulary terms and the relations
// between them. The vocabularies consulted during autofill are the
// SeaDataNet collections: P01 (parameters), P02 (parameter groups),
// P06 (units), P07 (CF standard names), L05 (instrument types), L06
// (platform types), L22 (instrument models) and L35 (manufacturers).
// id may be a term URI or URN. relation is one of "related",
// "broader" or "narrower"; Relations returns only the related URIs
// belonging to the target vocabulary.
type Vocabulary interface {
	Term(ctx context.Context, vocab, id string) (Term, error)
	Relations(ctx context.Context, vocab, id, relation, target string) ([]string, error)
}

// HarmonizeURI rewrites a SeaDataNet term URI into canonical lookup
// form: the http scheme and a trailing slash.
func HarmonizeURI(uri string) string {
	if strings.HasPrefix(uri, "https") {
		uri = "http" + strings.TrimPrefix(uri, "https")
	}
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri
}

// AutofillCoverage recomputes the geographic, vertical and temporal
// coverage attributes from the observation rows and stamps the
// bookkeeping dates: Created is set only when still empty, Modified
// always becomes now.
func (d *Dataset) AutofillCoverage(now time.Time) {
	d.autofillBounds()
	now = now.UTC()
	if d.Global.Created.IsZero() {
		d.Global.Created = now
	}
	d.Global.Modified = now
}

// autofillBounds recomputes the coverage bounds without touching the
// bookkeeping dates. Null cells are excluded.
func (d *Dataset) autofillBounds() {
	g := d.Global

	lat := d.Table.Column(roleLatitude)
	lon := d.Table.Column(roleLongitude)
	if lat != nil && lon != nil && lat.Kind == FloatColumn && lon.Kind == FloatColumn {
		b := geom.NewBounds()
		for i := range lat.Floats {
			if lat.Null[i] || lon.Null[i] {
				continue
			}
			b.Extend(geom.NewBoundsPoint(geom.Point{X: lon.Floats[i], Y: lat.Floats[i]}))
		}
		if !b.Empty() {
			g.LonMin, g.LonMax = b.Min.X, b.Max.X
			g.LatMin, g.LatMax = b.Min.Y, b.Max.Y
		}
	}

	if depth := d.Table.Column(roleDepth); depth != nil && depth.Kind == FloatColumn {
		if vals := nonNullFloats(depth); len(vals) > 0 {
			g.DepthMin = floats.Min(vals)
			g.DepthMax = floats.Max(vals)
		}
	}

	if tc := d.Table.Column(roleTime); tc != nil && tc.Kind == TimeColumn {
		var start, end time.Time
		for i, v := range tc.Times {
			if tc.Null[i] {
				continue
			}
			if start.IsZero() || v.Before(start) {
				start = v
			}
			if end.IsZero() || v.After(end) {
				end = v
			}
		}
		g.TimeStart, g.TimeEnd = start, end
	}
}

func nonNullFloats(c *Column) []float64 {
	out := make([]float64, 0, len(c.Floats))
	for i, v := range c.Floats {
		if !c.Null[i] {
			out = append(out, v)
		}
	}
	return out
}

// AutofillVocabulary fills missing descriptive metadata from the
// reference vocabularies. Variables carrying a parameter URI gain a
// long name, units, standard name and the URN/name companions of
// their parameter and unit terms; sensors carrying a model URI gain
// the model name, the instrument code and the manufacturer; platforms
// carrying a type URI gain the type name. Existing values are never
// overwritten. A failed lookup is logged as a warning and leaves the
// affected fields untouched; the only error returned is the
// context's.
func (d *Dataset) AutofillVocabulary(ctx context.Context, v Vocabulary) error {
	for _, name := range sortedKeys(d.Variables) {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.autofillVariable(ctx, v, name, d.Variables[name])
	}
	for _, id := range d.Sensors.IDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, _ := d.Sensors.Get(id)
		d.autofillSensor(ctx, v, id, rec)
	}
	for _, id := range d.Platforms.IDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, _ := d.Platforms.Get(id)
		d.autofillPlatform(ctx, v, id, rec)
	}
	d.autofillGlobal()
	d.Global.Conventions = ensureConvention(d.Global.Conventions, "OceanSITES")
	d.Global.Conventions = ensureConvention(d.Global.Conventions, "EMSO")
	return nil
}

// autofillGlobal derives the offline companions of the dataset-wide
// attributes: the EDMO report page from the institution code and the
// SPDX page from the license identifier, in either direction.
func (d *Dataset) autofillGlobal() {
	g := d.Global
	if g.Extra == nil {
		g.Extra = make(map[string]interface{})
	}
	if code, ok := g.Extra["institution_edmo_code"]; ok {
		fillKey(g.Extra, "institution_edmo_uri", "https://edmo.seadatanet.org/report/"+fmt.Sprint(code))
	} else if uri, _ := g.Extra["institution_edmo_uri"].(string); uri != "" {
		fillKey(g.Extra, "institution_edmo_code", uri[strings.LastIndex(uri, "/")+1:])
	}
	if g.License != "" {
		fillKey(g.Extra, "license_uri", "https://spdx.org/licenses/"+g.License)
	} else if uri, _ := g.Extra["license_uri"].(string); uri != "" {
		g.License = uri[strings.LastIndex(uri, "/")+1:]
	}
}

func (d *Dataset) autofillVariable(ctx context.Context, v Vocabulary, name string, rec *VariableRecord) {
	if rec.SDNParameter == "" {
		return
	}
	rec.SDNParameter = HarmonizeURI(rec.SDNParameter)
	param, err := v.Term(ctx, "P01", rec.SDNParameter)
	if err != nil {
		d.Log.Warnf("obsnc: autofilling %s: parameter %s not found in P01: %v", name, rec.SDNParameter, err)
		return
	}
	label := strings.TrimSpace(param.Label)
	if rec.LongName == "" {
		rec.LongName = label
	}
	if rec.Extra == nil {
		rec.Extra = make(map[string]interface{})
	}
	fillKey(rec.Extra, "sdn_parameter_urn", param.URN)
	fillKey(rec.Extra, "sdn_parameter_name", label)

	if rec.SDNUnits == "" {
		uom, err := relation(ctx, v, "P01", rec.SDNParameter, "related", "P06")
		if err != nil {
			d.Log.Warnf("obsnc: autofilling %s: no unit related to %s: %v", name, rec.SDNParameter, err)
		} else {
			rec.SDNUnits = uom
		}
	}
	if rec.SDNUnits != "" {
		rec.SDNUnits = HarmonizeURI(rec.SDNUnits)
		uom, err := v.Term(ctx, "P06", rec.SDNUnits)
		if err != nil {
			d.Log.Warnf("obsnc: autofilling %s: unit %s not found in P06: %v", name, rec.SDNUnits, err)
		} else {
			if rec.Units == "" {
				if uom.AltLabel != "" {
					rec.Units = uom.AltLabel
				} else {
					rec.Units = strings.TrimSpace(uom.Label)
				}
			}
			fillKey(rec.Extra, "sdn_uom_urn", uom.URN)
			fillKey(rec.Extra, "sdn_uom_name", strings.TrimSpace(uom.Label))
		}
	}

	if rec.StandardName == "" {
		sn, err := standardName(ctx, v, rec.SDNParameter)
		if err != nil {
			d.Log.Warnf("obsnc: autofilling %s: no standard name for %s: %v", name, rec.SDNParameter, err)
		} else {
			rec.StandardName = sn
		}
	}
}

// standardName walks from a parameter term to its CF standard name:
// directly to P07, or through the broader P02 parameter group when
// the parameter itself carries no P07 link.
func standardName(ctx context.Context, v Vocabulary, param string) (string, error) {
	uris, err := v.Relations(ctx, "P01", param, "broader", "P07")
	if err != nil {
		return "", err
	}
	if len(uris) == 0 {
		group, err := relation(ctx, v, "P01", param, "broader", "P02")
		if err != nil {
			return "", err
		}
		if uris, err = v.Relations(ctx, "P02", group, "narrower", "P07"); err != nil {
			return "", err
		}
	}
	if len(uris) != 1 {
		return "", fmt.Errorf("expected 1 standard name, got %d", len(uris))
	}
	t, err := v.Term(ctx, "P07", uris[0])
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(t.Label), nil
}

func (d *Dataset) autofillSensor(ctx context.Context, v Vocabulary, id string, rec *SensorRecord) {
	if rec.Extra == nil {
		rec.Extra = make(map[string]interface{})
	}
	if uri, _ := rec.Extra["sensor_type_uri"].(string); uri != "" {
		uri = HarmonizeURI(uri)
		rec.Extra["sensor_type_uri"] = uri
		if t, err := v.Term(ctx, "L05", uri); err != nil {
			d.Log.Warnf("obsnc: autofilling sensor %s: type %s not found in L05: %v", id, uri, err)
		} else {
			fillKey(rec.Extra, "sensor_type_urn", t.URN)
			fillKey(rec.Extra, "sensor_type_name", strings.TrimSpace(t.Label))
		}
	}

	if rec.SDNModel == "" {
		return
	}
	rec.SDNModel = HarmonizeURI(rec.SDNModel)
	model, err := v.Term(ctx, "L22", rec.SDNModel)
	if err != nil {
		d.Log.Warnf("obsnc: autofilling sensor %s: model %s not found in L22: %v", id, rec.SDNModel, err)
		return
	}
	if rec.Model == "" {
		rec.Model = strings.TrimSpace(model.Label)
	}
	fillKey(rec.Extra, "sensor_SeaVoX_L22_code", model.URN)

	maker, err := relation(ctx, v, "L22", rec.SDNModel, "related", "L35")
	if err != nil {
		d.Log.Warnf("obsnc: autofilling sensor %s: no manufacturer for %s: %v", id, rec.SDNModel, err)
		return
	}
	mt, err := v.Term(ctx, "L35", maker)
	if err != nil {
		d.Log.Warnf("obsnc: autofilling sensor %s: manufacturer %s not found in L35: %v", id, maker, err)
		return
	}
	if rec.Manufacturer == "" {
		rec.Manufacturer = strings.TrimSpace(mt.Label)
	}
	fillKey(rec.Extra, "sensor_manufacturer_uri", mt.URI)
	fillKey(rec.Extra, "sensor_manufacturer_urn", mt.URN)
}

func (d *Dataset) autofillPlatform(ctx context.Context, v Vocabulary, id string, rec *PlatformRecord) {
	uri, _ := rec.Extra["platform_type_uri"].(string)
	if uri == "" {
		return
	}
	uri = HarmonizeURI(uri)
	rec.Extra["platform_type_uri"] = uri
	t, err := v.Term(ctx, "L06", uri)
	if err != nil {
		d.Log.Warnf("obsnc: autofilling platform %s: type %s not found in L06: %v", id, uri, err)
		return
	}
	if rec.Type == "" {
		rec.Type = strings.TrimSpace(t.Label)
	}
	fillKey(rec.Extra, "platform_type_urn", t.URN)
}

// relation resolves a vocabulary relation expected to hold for
// exactly one term.
func relation(ctx context.Context, v Vocabulary, vocab, id, rel, target string) (string, error) {
	uris, err := v.Relations(ctx, vocab, id, rel, target)
	if err != nil {
		return "", err
	}
	if len(uris) != 1 {
		return "", fmt.Errorf("expected 1 %s %s term, got %d", rel, target, len(uris))
	}
	return uris[0], nil
}

// fillKey sets m[key] to value unless the key already holds a
// non-empty value.
func fillKey(m map[string]interface{}, key, value string) {
	if value == "" {
		return
	}
	if cur, ok := m[key]; ok && cur != "" {
		return
	}
	m[key] = value
}
