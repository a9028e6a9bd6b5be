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

// Package vocab resolves SeaDataNet controlled-vocabulary terms from
// the NERC Vocabulary Server. Whole collections are fetched as
// JSON-LD exports and held in a layered request cache, so repeated
// lookups during metadata autofill cost one HTTP round trip per
// vocabulary. Fixture serves the same lookups from a local JSON file.
package vocab

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
	"github.com/oceanmodel/obsnc"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the collection root of the NERC Vocabulary
// Server.
const DefaultBaseURL = "https://vocab.nerc.ac.uk/collection"

// vocabularies are the SeaDataNet collections the metadata autofill
// consults.
var vocabularies = map[string]bool{
	"P01": true, // parameters
	"P02": true, // parameter groups
	"P06": true, // units
	"P07": true, // CF standard names
	"L05": true, // instrument types
	"L06": true, // platform types
	"L22": true, // instrument models
	"L35": true, // manufacturers
}

func init() {
	gob.Register(&collection{})
}

// A Client looks terms up on a NERC-style vocabulary server. The
// zero value fetches from the public server, keeps fetched
// collections in memory and retries failed fetches with exponential
// backoff. Fields can only be changed before the first lookup.
type Client struct {
	// BaseURL is the collection root of the vocabulary server.
	// The default is DefaultBaseURL.
	BaseURL string

	// CacheDir, if nonempty, adds a disk layer to the fetch cache
	// so collections survive across runs.
	CacheDir string

	// HTTPClient performs the fetches. The default is
	// http.DefaultClient.
	HTTPClient *http.Client

	// RetryTimeout caps the total time spent retrying one fetch.
	// Zero means the backoff library default.
	RetryTimeout time.Duration

	// Log receives retry warnings. The default is the logrus
	// standard logger.
	Log *logrus.Logger

	cache     *requestcache.Cache
	cacheOnce sync.Once
}

var _ obsnc.Vocabulary = (*Client)(nil)

// Term resolves id, a term URI or URN, within the named vocabulary.
func (c *Client) Term(ctx context.Context, vocab, id string) (obsnc.Term, error) {
	col, err := c.collection(ctx, vocab)
	if err != nil {
		return obsnc.Term{}, err
	}
	return col.term(id)
}

// Relations returns the URIs related to id under the given relation
// ("related", "broader" or "narrower"), keeping only those belonging
// to the target vocabulary.
func (c *Client) Relations(ctx context.Context, vocab, id, relation, target string) ([]string, error) {
	col, err := c.collection(ctx, vocab)
	if err != nil {
		return nil, err
	}
	return col.relations(id, relation, target)
}

func (c *Client) collection(ctx context.Context, vocab string) (*collection, error) {
	if !vocabularies[vocab] {
		return nil, fmt.Errorf("vocab: unknown vocabulary %q", vocab)
	}
	c.cacheOnce.Do(func() {
		layers := []requestcache.CacheFunc{
			requestcache.Deduplicate(), requestcache.Memory(len(vocabularies)),
		}
		if c.CacheDir != "" {
			layers = append(layers,
				requestcache.Disk(c.CacheDir, requestcache.MarshalGob, requestcache.UnmarshalGob))
		}
		c.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			return c.fetch(ctx, request.(string))
		}, runtime.GOMAXPROCS(-1), layers...)
	})
	req := c.cache.NewRequest(ctx, vocab, vocab)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(*collection), nil
}

// fetch downloads and parses one whole collection export.
func (c *Client) fetch(ctx context.Context, vocab string) (interface{}, error) {
	url := c.collectionURL(vocab)
	var body []byte
	op := func() error {
		req, err := http.NewRequest("GET", url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient().Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("vocab: fetching %s: %s", vocab, resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	bo := backoff.NewExponentialBackOff()
	if c.RetryTimeout > 0 {
		bo.MaxElapsedTime = c.RetryTimeout
	}
	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx),
		func(err error, d time.Duration) {
			c.log().Warnf("vocab: fetching %s: %v: retrying in %v", vocab, err, d)
		})
	if err != nil {
		return nil, err
	}
	col, err := parseCollection(vocab, body)
	if err != nil {
		return nil, err
	}
	return col, nil
}

func (c *Client) collectionURL(vocab string) string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/current/?_profile=nvs&_mediatype=application/ld+json",
		strings.TrimSuffix(base, "/"), vocab)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) log() *logrus.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logrus.StandardLogger()
}

// A collection indexes the terms of one vocabulary by harmonized URI
// and by URN, with the three skos relation maps alongside. Fields are
// exported for the gob encoding of the disk cache layer.
type collection struct {
	Vocab    string
	Terms    map[string]obsnc.Term
	URNs     map[string]string
	Narrower map[string][]string
	Broader  map[string][]string
	Related  map[string][]string
}

func newCollection(vocab string) *collection {
	return &collection{
		Vocab:    vocab,
		Terms:    make(map[string]obsnc.Term),
		URNs:     make(map[string]string),
		Narrower: make(map[string][]string),
		Broader:  make(map[string][]string),
		Related:  make(map[string][]string),
	}
}

func (col *collection) add(t obsnc.Term, narrower, broader, related []string) {
	uri := obsnc.HarmonizeURI(t.URI)
	t.URI = uri
	col.Terms[uri] = t
	if t.URN != "" {
		col.URNs[t.URN] = uri
	}
	if len(narrower) > 0 {
		col.Narrower[uri] = narrower
	}
	if len(broader) > 0 {
		col.Broader[uri] = broader
	}
	if len(related) > 0 {
		col.Related[uri] = related
	}
}

// resolve maps a term URI or URN to the harmonized URI key.
func (col *collection) resolve(id string) (string, bool) {
	if uri, ok := col.URNs[id]; ok {
		return uri, true
	}
	uri := obsnc.HarmonizeURI(id)
	_, ok := col.Terms[uri]
	return uri, ok
}

func (col *collection) term(id string) (obsnc.Term, error) {
	uri, ok := col.resolve(id)
	if !ok {
		return obsnc.Term{}, fmt.Errorf("vocab: no term %q in %s", id, col.Vocab)
	}
	return col.Terms[uri], nil
}

func (col *collection) relations(id, relation, target string) ([]string, error) {
	var m map[string][]string
	switch relation {
	case "narrower":
		m = col.Narrower
	case "broader":
		m = col.Broader
	case "related":
		m = col.Related
	default:
		return nil, fmt.Errorf("vocab: unknown relation %q", relation)
	}
	uri, ok := col.resolve(id)
	if !ok {
		return nil, fmt.Errorf("vocab: no term %q in %s", id, col.Vocab)
	}
	needle := "/" + target + "/"
	var out []string
	for _, r := range m[uri] {
		if strings.Contains(r, needle) {
			out = append(out, r)
		}
	}
	return out, nil
}

// parseCollection reads the JSON-LD export of one vocabulary. Graph
// nodes without an identifier, such as the collection node itself,
// are skipped.
func parseCollection(vocab string, body []byte) (*collection, error) {
	var doc struct {
		Graph []ldNode `json:"@graph"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("vocab: parsing %s: %v", vocab, err)
	}
	col := newCollection(vocab)
	for _, n := range doc.Graph {
		if n.ID == "" || n.Identifier == "" {
			continue
		}
		t := obsnc.Term{
			URI:      n.ID,
			URN:      n.Identifier,
			Label:    string(n.PrefLabel),
			AltLabel: string(n.AltLabel),
		}
		col.add(t, n.Narrower, n.Broader, n.Related)
	}
	return col, nil
}

// An ldNode is one resource of a JSON-LD graph, restricted to the
// keys the vocabulary lookups need.
type ldNode struct {
	ID         string    `json:"@id"`
	Identifier string    `json:"identifier"`
	PrefLabel  ldLiteral `json:"prefLabel"`
	AltLabel   ldLiteral `json:"altLabel"`
	Narrower   ldRefs    `json:"narrower"`
	Broader    ldRefs    `json:"broader"`
	Related    ldRefs    `json:"related"`
}

// An ldLiteral accepts the three JSON-LD spellings of a string
// value: "x", {"@value": "x"}, and a list of either. A list keeps
// its first entry.
type ldLiteral string

func (l *ldLiteral) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = ldLiteral(s)
		return nil
	}
	var obj struct {
		Value string `json:"@value"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		*l = ldLiteral(obj.Value)
		return nil
	}
	var list []ldLiteral
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*l = list[0]
	}
	return nil
}

// ldRefs accepts the JSON-LD spellings of a set of resource
// references: "uri", {"@id": "uri"}, and a list of either.
type ldRefs []string

func (r *ldRefs) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = ldRefs{s}
		return nil
	}
	var obj struct {
		ID string `json:"@id"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		*r = ldRefs{obj.ID}
		return nil
	}
	var list []ldRefs
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	var out ldRefs
	for _, e := range list {
		out = append(out, e...)
	}
	*r = out
	return nil
}
