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

	"github.com/lnashier/viper"
	"github.com/oceanmodel/obsnc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to obsnc.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Data",
			usage: `
              Data lists the observation tables to load, in CSV or XLSX
              form. CSV files may be gzip-compressed.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Metadata",
			usage: `
              Metadata lists the metadata documents to merge, in
              precedence order: earlier documents win where they
              overlap later ones.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Output",
			usage: `
              Output specifies the path of the NetCDF file to write.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags(), mergeCmd.Flags()},
		},
		{
			name: "MetadataOnly",
			usage: `
              MetadataOnly specifies whether to write a file carrying
              only the metadata records, with no observations.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Gridded",
			usage: `
              Gridded specifies whether to write dense (time, depth)
              matrices instead of the flat observation layout. Only
              timeSeriesProfile data can be gridded.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "Autofill",
			usage: `
              Autofill specifies whether to complete variable and
              sensor records from their controlled-vocabulary URIs
              before encoding.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "VocabFixture",
			usage: `
              VocabFixture specifies the path of a JSON term table to
              resolve vocabulary lookups from instead of the NERC
              vocabulary server.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
		{
			name: "VocabCache",
			usage: `
              VocabCache specifies a directory where fetched vocabulary
              collections are kept between runs.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{generateCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("OBSNC")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(generateCmd)
	Root.AddCommand(mergeCmd)
	Root.AddCommand(inspectCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("obsnc: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "obsnc",
	Short: "Assemble ocean observations into CF-compliant NetCDF.",
	Long: `obsnc turns tabular sensor observations and layered metadata documents
into self-describing NetCDF files following the Climate & Forecast
discrete sampling geometry conventions as practiced by the OceanSITES
and EMSO ocean observatory networks.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'OBSNC_var' where 'var' is the name of the variable to be set. Refer to
https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of obsnc.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("obsnc v%s\n", obsnc.Version)
	},
	DisableAutoGenTag: true,
}

// generateCmd runs one encoding job.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Assemble observations and metadata into a NetCDF file.",
	Long: `generate loads the observation tables and metadata documents named by
the configuration, assembles them into one dataset, completes the
coverage and vocabulary attributes, and encodes the result to Output.
With MetadataOnly it writes the metadata records alone; with Gridded
it writes dense (time, depth) matrices instead of flat observations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return jobFromConfig(Cfg).Run(context.Background(), logrus.StandardLogger())
	},
	DisableAutoGenTag: true,
}

// mergeCmd combines encoded files.
var mergeCmd = &cobra.Command{
	Use:   "merge [flags] file.nc...",
	Short: "Merge encoded files into one.",
	Long: `merge decodes the named NetCDF files, combines their observations and
metadata with first-wins precedence, recomputes the coverage
attributes and encodes the result to Output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := os.ExpandEnv(Cfg.GetString("Output"))
		if output == "" {
			return fmt.Errorf("obsnc: merge needs an Output path")
		}
		log := logrus.StandardLogger()
		inputs := make([]*obsnc.Dataset, 0, len(args))
		for _, path := range args {
			log.Infof("obsnc: decoding %s", path)
			d, err := obsnc.DecodeFile(path)
			if err != nil {
				return err
			}
			inputs = append(inputs, d)
		}
		d, err := obsnc.Merge(inputs, time.Now())
		if err != nil {
			return err
		}
		log.Infof("obsnc: writing %s", output)
		return d.EncodeFile(output)
	},
	DisableAutoGenTag: true,
}

// inspectCmd prints the structure of an encoded file.
var inspectCmd = &cobra.Command{
	Use:   "inspect file.nc",
	Short: "Print the structure of an encoded file.",
	Long: `inspect prints the dimensions, variables, attributes and sampling
geometry of an encoded NetCDF file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Inspect(cmd.OutOrStdout(), args[0])
	},
	DisableAutoGenTag: true,
}

// jobFromConfig assembles a Job from the configuration store.
func jobFromConfig(cfg *viper.Viper) *Job {
	return &Job{
		Data:         expandStringSlice(cfg.GetStringSlice("Data")),
		Metadata:     expandStringSlice(cfg.GetStringSlice("Metadata")),
		Output:       os.ExpandEnv(cfg.GetString("Output")),
		MetadataOnly: cfg.GetBool("MetadataOnly"),
		Gridded:      cfg.GetBool("Gridded"),
		Autofill:     cfg.GetBool("Autofill"),
		VocabFixture: os.ExpandEnv(cfg.GetString("VocabFixture")),
		VocabCache:   os.ExpandEnv(cfg.GetString("VocabCache")),
	}
}

// expandStringSlice expands any environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}
