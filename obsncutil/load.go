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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ctessum/requestcache"
	"github.com/klauspost/compress/gzip"
	"github.com/oceanmodel/obsnc"
	"github.com/tealeg/xlsx"
)

// LoadTable reads an observation table from path, choosing the loader
// by file extension: .xlsx workbooks go through LoadXLSX, everything
// else is treated as CSV.
func LoadTable(path string) (*obsnc.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return LoadXLSX(path)
	}
	return LoadCSV(path)
}

// LoadCSV reads an observation table from a CSV file. The first row
// names the columns and every later row is one observation. Column
// kinds are inferred from the cells: timestamps (RFC 3339 or
// "2006-01-02 15:04:05"), then integers, then floating point, with
// text as the fallback. Empty cells become nulls. Files ending in
// .gz are decompressed on the fly.
func LoadCSV(path string) (*obsnc.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obsnc: reading %s: %v", path, err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("obsnc: reading %s: %v", path, err)
		}
		defer gz.Close()
		r = gz
	}
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("obsnc: reading %s: %v", path, err)
	}
	return tableFromRows(path, rows)
}

// workbookCache holds previously opened XLSX workbooks so a job
// naming the same file several times only reads it once.
var workbookCache *requestcache.Cache

var loadWorkbookOnce sync.Once

func openWorkbook(fileName string) (*xlsx.File, error) {
	loadWorkbookOnce.Do(func() {
		workbookCache = requestcache.NewCache(func(ctx context.Context, req interface{}) (interface{}, error) {
			filename := req.(string)
			f, err := xlsx.OpenFile(filename)
			if err != nil {
				return nil, fmt.Errorf("obsnc: opening %s: %v", filename, err)
			}
			return f, nil
		}, runtime.GOMAXPROCS(-1), requestcache.Memory(1000))
	})
	r := workbookCache.NewRequest(context.Background(), fileName, fileName)
	fI, err := r.Result()
	if err != nil {
		return nil, err
	}
	return fI.(*xlsx.File), nil
}

// LoadXLSX reads an observation table from the first sheet of an XLSX
// workbook. The sheet must carry the same header-plus-rows layout
// LoadCSV expects.
func LoadXLSX(path string) (*obsnc.Table, error) {
	f, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("obsnc: reading %s: workbook has no sheets", path)
	}
	s := f.Sheets[0]
	rows := make([][]string, 0, s.MaxRow)
	for i := 0; i < s.MaxRow; i++ {
		cells := make([]string, s.MaxCol)
		for j := 0; j < s.MaxCol; j++ {
			cells[j] = s.Cell(i, j).Value
		}
		rows = append(rows, cells)
	}
	for len(rows) > 0 && emptyRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	return tableFromRows(path, rows)
}

func emptyRow(cells []string) bool {
	for _, s := range cells {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// tableFromRows builds a Table from a header row plus data rows,
// inferring each column's kind from its cells.
func tableFromRows(path string, rows [][]string) (*obsnc.Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("obsnc: reading %s: need a header row and at least one data row", path)
	}
	if err := checkHeader(path, rows[0]); err != nil {
		return nil, err
	}
	t := obsnc.NewTable()
	for j, name := range rows[0] {
		name = strings.TrimSpace(name)
		if t.Has(name) {
			return nil, fmt.Errorf("obsnc: reading %s: duplicate column %s", path, name)
		}
		cells := make([]string, len(rows)-1)
		for i, row := range rows[1:] {
			if j < len(row) {
				cells[i] = strings.TrimSpace(row[j])
			}
		}
		if err := t.AddColumn(columnFromCells(name, cells)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// checkHeader rejects a first row that looks like data rather than
// column names, which usually means the header row is missing.
func checkHeader(path string, header []string) error {
	for _, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("obsnc: reading %s: empty column name in header row", path)
		}
		if _, ok := parseTimestamp(name); ok {
			return fmt.Errorf("obsnc: reading %s: header row looks like data: %q", path, name)
		}
		if _, err := strconv.ParseFloat(name, 64); err == nil {
			return fmt.Errorf("obsnc: reading %s: header row looks like data: %q", path, name)
		}
	}
	return nil
}

// timeLayouts are the accepted timestamp spellings.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05"}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// columnFromCells infers the kind of a column from its cells and
// builds it. Cells that are empty after trimming become nulls. A
// column named with a _QC suffix whose cells are small integers
// becomes a flag column.
func columnFromCells(name string, cells []string) *obsnc.Column {
	nonEmpty := 0
	for _, s := range cells {
		if s != "" {
			nonEmpty++
		}
	}
	markNulls := func(c *obsnc.Column) *obsnc.Column {
		for i, s := range cells {
			if s == "" {
				c.Null[i] = true
			}
		}
		return c
	}
	if nonEmpty == 0 {
		if strings.HasSuffix(name, "_QC") {
			return markNulls(obsnc.NewFlagColumn(name, make([]int8, len(cells))))
		}
		return markNulls(obsnc.NewStringColumn(name, cells))
	}
	if ts, ok := parseTimes(cells); ok {
		return markNulls(obsnc.NewTimeColumn(name, ts))
	}
	if ints, ok := parseInts(cells); ok {
		if strings.HasSuffix(name, "_QC") {
			if flags, ok := toFlags(ints); ok {
				return markNulls(obsnc.NewFlagColumn(name, flags))
			}
		}
		return markNulls(obsnc.NewIntColumn(name, ints))
	}
	if floats, ok := parseFloats(cells); ok {
		return markNulls(obsnc.NewFloatColumn(name, floats))
	}
	return markNulls(obsnc.NewStringColumn(name, cells))
}

func parseTimes(cells []string) ([]time.Time, bool) {
	out := make([]time.Time, len(cells))
	for i, s := range cells {
		if s == "" {
			continue
		}
		t, ok := parseTimestamp(s)
		if !ok {
			return nil, false
		}
		out[i] = t
	}
	return out, true
}

func parseInts(cells []string) ([]int64, bool) {
	out := make([]int64, len(cells))
	for i, s := range cells {
		if s == "" {
			continue
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func parseFloats(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, s := range cells {
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func toFlags(ints []int64) ([]int8, bool) {
	out := make([]int8, len(ints))
	for i, v := range ints {
		if v < 0 || v > 127 {
			return nil, false
		}
		out[i] = int8(v)
	}
	return out, true
}
