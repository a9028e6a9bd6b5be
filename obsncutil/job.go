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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/oceanmodel/obsnc"
	"github.com/oceanmodel/obsnc/vocab"
	"github.com/sirupsen/logrus"
)

// A Job names the inputs and output of one encoding run. The field
// names below are the keys of the TOML job file and of the
// corresponding command-line flags.
type Job struct {
	// Data lists the observation tables to load, CSV or XLSX.
	Data []string

	// Metadata lists the metadata documents to merge, in precedence
	// order: earlier documents win where they overlap later ones.
	Metadata []string

	// Output is the path of the NetCDF file to write.
	Output string

	// MetadataOnly writes a file carrying only the metadata records,
	// with no observations.
	MetadataOnly bool

	// Gridded writes dense (time, depth) matrices instead of the flat
	// observation layout. Only timeSeriesProfile data can be gridded.
	Gridded bool

	// Autofill completes variable and sensor records from their
	// controlled-vocabulary URIs before encoding.
	Autofill bool

	// VocabFixture is the path of a JSON term table to resolve
	// vocabulary lookups from instead of the NERC server.
	VocabFixture string

	// VocabCache is a directory where fetched vocabulary collections
	// are kept between runs.
	VocabCache string
}

// LoadJob reads a job description from a TOML file.
func LoadJob(path string) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obsnc: reading job %s: %v", path, err)
	}
	defer f.Close()
	j := new(Job)
	if _, err := toml.DecodeReader(f, j); err != nil {
		return nil, fmt.Errorf("obsnc: reading job %s: %v", path, err)
	}
	return j, nil
}

// Run executes the job: the metadata documents are merged and
// validated, each data file is assembled into a dataset against its
// own copy of the metadata, the datasets are merged, autofill closes
// coverage and vocabulary gaps, and the result is encoded to Output.
func (j *Job) Run(ctx context.Context, log *logrus.Logger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if j.Output == "" {
		return fmt.Errorf("obsnc: job names no output path")
	}
	meta, err := LoadMetadata(j.Metadata...)
	if err != nil {
		return err
	}
	if j.MetadataOnly {
		log.Infof("obsnc: writing metadata-only file %s", j.Output)
		return obsnc.EncodeMetadataFile(meta, j.Output)
	}
	if len(j.Data) == 0 {
		return fmt.Errorf("obsnc: job names no data files")
	}

	datasets := make([]*obsnc.Dataset, 0, len(j.Data))
	for _, path := range j.Data {
		log.Infof("obsnc: loading %s", path)
		t, err := LoadTable(path)
		if err != nil {
			return err
		}
		d, err := obsnc.New(t, meta.Clone())
		if err != nil {
			return err
		}
		d.Log = log
		datasets = append(datasets, d)
	}
	now := time.Now()
	d, err := obsnc.Merge(datasets, now)
	if err != nil {
		return err
	}
	d.Log = log

	if j.Autofill {
		v, err := j.vocabulary(log)
		if err != nil {
			return err
		}
		if err := d.AutofillVocabulary(ctx, v); err != nil {
			return err
		}
	}
	d.AutofillCoverage(now)

	if j.Gridded {
		log.Infof("obsnc: writing gridded %s", j.Output)
		return d.EncodeGridFile(j.Output)
	}
	log.Infof("obsnc: writing %s", j.Output)
	return d.EncodeFile(j.Output)
}

// vocabulary picks the term source for autofill: a local fixture when
// one is named, otherwise the NERC vocabulary server.
func (j *Job) vocabulary(log *logrus.Logger) (obsnc.Vocabulary, error) {
	if j.VocabFixture != "" {
		return vocab.LoadFixture(j.VocabFixture)
	}
	return &vocab.Client{CacheDir: j.VocabCache, Log: log}, nil
}
