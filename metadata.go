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
	"strings"
	"time"
)

// A VarType is the role a column plays in the dataset.
type VarType string

const (
	VarCoordinate     VarType = "coordinate"
	VarEnvironmental  VarType = "environmental"
	VarBiological     VarType = "biological"
	VarTechnical      VarType = "technical"
	VarQualityControl VarType = "quality_control"
	VarSensor         VarType = "sensor"
	VarPlatform       VarType = "platform"
)

// timeUnits is the CF units string for encoded timestamps.
const timeUnits = "seconds since 1970-01-01 00:00:00"

// A VariableRecord describes one data or coordinate column. Fields
// beyond the fixed set, such as controlled-vocabulary URNs added by
// autofill, go in Extra.
type VariableRecord struct {
	LongName     string
	StandardName string
	SDNParameter string // controlled-vocabulary parameter URI
	SDNUnits     string // controlled-vocabulary unit URI
	Units        string
	Type         VarType
	Ancillary    []string // names of QC/STD companion columns
	Extra        map[string]interface{}
}

// A SensorRecord describes one measuring instrument.
type SensorRecord struct {
	Model        string
	SDNModel     string // controlled-vocabulary instrument URI
	Manufacturer string
	SerialNumber string
	Mount        string
	Orientation  string
	Extra        map[string]interface{}
}

// A PlatformRecord describes the structure a sensor is deployed on,
// including its nominal position.
type PlatformRecord struct {
	Name      string
	Type      string
	Latitude  float64
	Longitude float64
	Depth     float64
	Extra     map[string]interface{}
}

// A GlobalRecord holds dataset-wide attributes. Coverage bounds and
// the creation/modification stamps are recomputed by AutofillCoverage
// rather than trusted from input.
type GlobalRecord struct {
	Title       string
	Summary     string
	Institution string
	License     string
	Conventions []string
	FeatureType string // declared geometry; empty means infer

	LatMin, LatMax     float64
	LonMin, LonMax     float64
	DepthMin, DepthMax float64
	TimeStart, TimeEnd time.Time
	Created, Modified  time.Time

	Extra map[string]interface{}
}

// NormalizeID rewrites an identifier so it is usable as a NetCDF
// variable name: spaces and hyphens become underscores. "SBE 37-A"
// becomes "SBE_37_A".
func NormalizeID(id string) string {
	id = strings.ReplaceAll(id, " ", "_")
	return strings.ReplaceAll(id, "-", "_")
}

// defaultCoordinateRecord returns the stock metadata for a canonical
// coordinate name, or false if name is not a coordinate.
func defaultCoordinateRecord(name string) (*VariableRecord, bool) {
	switch name {
	case roleTime:
		return &VariableRecord{
			LongName:     "time of measurements",
			StandardName: "time",
			SDNParameter: "https://vocab.nerc.ac.uk/collection/P01/current/ELTMEP01/",
			SDNUnits:     "http://vocab.nerc.ac.uk/collection/P06/current/UTBB/",
			Units:        timeUnits,
			Type:         VarCoordinate,
		}, true
	case roleDepth:
		return &VariableRecord{
			LongName:     "depth of measurements",
			StandardName: "depth",
			SDNParameter: "https://vocab.nerc.ac.uk/collection/P01/current/ADEPZZ01/",
			SDNUnits:     "http://vocab.nerc.ac.uk/collection/P06/current/ULAA/",
			Units:        "m",
			Type:         VarCoordinate,
		}, true
	case roleLatitude:
		return &VariableRecord{
			LongName:     "latitude of measurements",
			StandardName: "latitude",
			SDNParameter: "https://vocab.nerc.ac.uk/collection/P01/current/ALATZZ01/",
			SDNUnits:     "http://vocab.nerc.ac.uk/collection/P06/current/UAAA/",
			Units:        "degrees_north",
			Type:         VarCoordinate,
		}, true
	case roleLongitude:
		return &VariableRecord{
			LongName:     "longitude of measurements",
			StandardName: "longitude",
			SDNParameter: "https://vocab.nerc.ac.uk/collection/P01/current/ALONZZ01/",
			SDNUnits:     "http://vocab.nerc.ac.uk/collection/P06/current/UAAA/",
			Units:        "degrees_east",
			Type:         VarCoordinate,
		}, true
	case rolePreciseLat:
		return &VariableRecord{
			LongName:     "precise latitude",
			StandardName: "deployment_latitude",
			SDNParameter: "https://vocab.nerc.ac.uk/collection/P01/current/ALATZZ01/",
			SDNUnits:     "http://vocab.nerc.ac.uk/collection/P06/current/UAAA/",
			Units:        "degrees_north",
			Type:         VarCoordinate,
		}, true
	case rolePreciseLon:
		return &VariableRecord{
			LongName:     "precise longitude",
			StandardName: "deployment_longitude",
			SDNParameter: "https://vocab.nerc.ac.uk/collection/P01/current/ALONZZ01/",
			SDNUnits:     "http://vocab.nerc.ac.uk/collection/P06/current/UAAA/",
			Units:        "degrees_east",
			Type:         VarCoordinate,
		}, true
	case roleSensorID:
		return &VariableRecord{
			LongName: "Identifier of the sensor that took the measurement",
			Type:     VarCoordinate,
		}, true
	case rolePlatformID:
		return &VariableRecord{
			LongName: "Platform where the sensor was deployed",
			Type:     VarCoordinate,
		}, true
	}
	return nil, false
}

// qcFlagValues and qcFlagMeanings follow the OceanSITES flagging scheme.
var (
	qcFlagValues   = []int32{0, 1, 2, 3, 4, 7, 8, 9}
	qcFlagMeanings = []string{
		"unknown", "good_data", "probably_good_data",
		"potentially_correctable_bad_data", "bad_data",
		"nominal_value", "interpolated_value", "missing_value",
	}
)

// qualityControlRecord returns the stock metadata for a QC companion
// of a variable with the given long name.
func qualityControlRecord(longName string) *VariableRecord {
	return &VariableRecord{
		LongName: longName + " quality control flags",
		Type:     VarQualityControl,
		Extra: map[string]interface{}{
			"conventions":   "OceanSITES QC Flags",
			"flag_values":   qcFlagValues,
			"flag_meanings": qcFlagMeanings,
		},
	}
}
