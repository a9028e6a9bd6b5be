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

package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/oceanmodel/obsnc"
	"github.com/tidwall/jsonc"
)

// A Fixture serves vocabulary lookups from a local term table, for
// tests and offline runs. The document maps vocabulary names to term
// lists and relation maps:
//
//	{
//	  "P01": {
//	    "terms": [
//	      {"uri": "...", "urn": "SDN:P01::PSLTZZ01",
//	       "label": "...", "altLabel": "..."}
//	    ],
//	    "related":  {"<uri>": ["<uri>", ...]},
//	    "broader":  {},
//	    "narrower": {}
//	  }
//	}
//
// Comments and trailing commas are allowed.
type Fixture struct {
	collections map[string]*collection
}

var _ obsnc.Vocabulary = (*Fixture)(nil)

type fixtureVocab struct {
	Terms []struct {
		URI      string `json:"uri"`
		URN      string `json:"urn"`
		Label    string `json:"label"`
		AltLabel string `json:"altLabel"`
	} `json:"terms"`
	Related  map[string][]string `json:"related"`
	Broader  map[string][]string `json:"broader"`
	Narrower map[string][]string `json:"narrower"`
}

// LoadFixture reads a fixture document from path.
func LoadFixture(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: loading fixture: %v", err)
	}
	return ParseFixture(b)
}

// ParseFixture reads a fixture document from a byte slice.
func ParseFixture(b []byte) (*Fixture, error) {
	var doc map[string]*fixtureVocab
	if err := json.Unmarshal(jsonc.ToJSON(b), &doc); err != nil {
		return nil, fmt.Errorf("vocab: parsing fixture: %v", err)
	}
	f := &Fixture{collections: make(map[string]*collection)}
	for vocab, fv := range doc {
		col := newCollection(vocab)
		for _, t := range fv.Terms {
			col.add(obsnc.Term{
				URI: t.URI, URN: t.URN, Label: t.Label, AltLabel: t.AltLabel,
			}, nil, nil, nil)
		}
		addRelations(col.Related, fv.Related)
		addRelations(col.Broader, fv.Broader)
		addRelations(col.Narrower, fv.Narrower)
		f.collections[vocab] = col
	}
	return f, nil
}

func addRelations(dst, src map[string][]string) {
	for uri, rel := range src {
		dst[obsnc.HarmonizeURI(uri)] = rel
	}
}

// Term resolves id, a term URI or URN, within the named vocabulary.
func (f *Fixture) Term(ctx context.Context, vocab, id string) (obsnc.Term, error) {
	col, ok := f.collections[vocab]
	if !ok {
		return obsnc.Term{}, fmt.Errorf("vocab: no vocabulary %s in fixture", vocab)
	}
	return col.term(id)
}

// Relations returns the URIs related to id under the given relation,
// keeping only those belonging to the target vocabulary.
func (f *Fixture) Relations(ctx context.Context, vocab, id, relation, target string) ([]string, error) {
	col, ok := f.collections[vocab]
	if !ok {
		return nil, fmt.Errorf("vocab: no vocabulary %s in fixture", vocab)
	}
	return col.relations(id, relation, target)
}
