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
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/oceanmodel/obsnc"
)

// Inspect prints the dimensions, variables, attributes and sampling
// geometry of an encoded NetCDF file to w. It reads only the file
// header, so it is cheap even on large files.
func Inspect(w io.Writer, path string) error {
	ff, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("obsnc: inspecting %s: %v", path, err)
	}
	defer ff.Close()
	fi, err := ff.Stat()
	if err != nil {
		return fmt.Errorf("obsnc: inspecting %s: %v", path, err)
	}
	f, err := cdf.Open(ff)
	if err != nil {
		return fmt.Errorf("obsnc: inspecting %s: %v", path, err)
	}
	h := f.Header

	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintln(w, "dimensions:")
	lengths := h.Lengths("")
	for i, name := range h.Dimensions("") {
		if lengths[i] == 0 {
			fmt.Fprintf(w, "\t%s = %d (record)\n", name, h.NumRecs(fi.Size()))
		} else {
			fmt.Fprintf(w, "\t%s = %d\n", name, lengths[i])
		}
	}
	fmt.Fprintln(w, "variables:")
	for _, v := range h.Variables() {
		if dims := h.Dimensions(v); len(dims) == 0 {
			fmt.Fprintf(w, "\t%s %s\n", typeName(h.ZeroValue(v, 1)), v)
		} else {
			fmt.Fprintf(w, "\t%s %s(%s)\n", typeName(h.ZeroValue(v, 1)), v, strings.Join(dims, ", "))
		}
		for _, a := range h.Attributes(v) {
			fmt.Fprintf(w, "\t\t%s:%s = %s\n", v, a, attrString(h.GetAttribute(v, a)))
		}
	}
	fmt.Fprintln(w, "global attributes:")
	for _, a := range h.Attributes("") {
		fmt.Fprintf(w, "\t:%s = %s\n", a, attrString(h.GetAttribute("", a)))
	}
	if ft, ok := h.GetAttribute("", "featureType").(string); ok {
		if g, err := obsnc.ParseGeometry(ft); err == nil {
			fmt.Fprintf(w, "geometry: %s\n", g)
		}
	}
	return nil
}

func typeName(zero interface{}) string {
	switch zero.(type) {
	case []uint8:
		return "byte"
	case string:
		return "char"
	case []int16:
		return "short"
	case []int32:
		return "int"
	case []float32:
		return "float"
	case []float64:
		return "double"
	}
	return "unknown"
}

func attrString(v interface{}) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(v)
}
