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

// Command obsnc assembles tabular ocean observations and layered
// metadata into CF-compliant NetCDF files.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/oceanmodel/obsnc/obsncutil"
	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
}

func main() {
	if err := obsncutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
