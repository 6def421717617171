package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kbamps/dicomorganizer/internal/cli"
)

const usage = `dicomorganizer - catalog and anonymize DICOM directories

USAGE:
  dicomorganizer [flags] INPUT_DIR OUTPUT_DIR DROP_TAGS_FILE

ARGUMENTS:
  INPUT_DIR        Directory containing DICOM files (searched recursively,
                   DICOMDIR index files are skipped)
  OUTPUT_DIR       Directory for anonymized files; created if absent, must
                   be empty otherwise
  DROP_TAGS_FILE   Text file with one DICOM field per line, resolved as a
                   keyword (e.g. PatientBirthDate) or a hex tag (00100030)

FLAGS:
      --identifier-csv <path>   Two-column value,replacement CSV applied to
                                patient identifiers
      --salt <key>              Salt for deterministic pseudonyms when a
                                value has no CSV entry
  -w, --workers <n>             Parallel workers (default 2)
      --rate-limit <n>          Cap task starts at n per second (default
                                unlimited)
  -g, --group-by <cols>         Group the catalog by these columns
      --print-catalog           Print the metadata catalog before anonymizing
      --name-format <tpl>       Output name template, e.g.
                                '$PatientID$_$Modality$.dcm'; '$A?B$' falls
                                back to B when A is unknown
      --default-value <s>       Value substituted for fields a record does
                                not carry (default empty)
      --sequential              Run tasks one at a time, for debugging
      --no-progress             Disable the progress bar
      --retry                   Reprocess files that failed in a previous run
      --config <path>           Optional YAML config file
  -v, --verbose                 Debug logging
  -h, --help                    Show this message

Environment variables with the DICOMORGANIZER_ prefix override config file
values, e.g. DICOMORGANIZER_WORKERS=8.`

func main() {
	flags := pflag.NewFlagSet("dicomorganizer", pflag.ExitOnError)
	flags.Usage = func() { fmt.Println(usage) }

	flags.String("identifier-csv", "", "identifier replacement CSV")
	flags.String("salt", "", "pseudonym salt")
	flags.IntP("workers", "w", 2, "number of parallel workers")
	flags.Float64("rate-limit", 0, "maximum task starts per second, 0 for unlimited")
	flags.StringSliceP("group-by", "g", nil, "catalog group-by columns")
	flags.Bool("print-catalog", false, "print the metadata catalog")
	flags.String("name-format", "", "output filename template")
	flags.String("default-value", "", "default for missing fields")
	flags.Bool("sequential", false, "disable the worker pool")
	flags.Bool("no-progress", false, "disable the progress bar")
	flags.Bool("retry", false, "retry previously failed files")
	flags.String("config", "", "config file path")
	flags.BoolP("verbose", "v", false, "debug logging")
	help := flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(os.Args[1:]); err != nil {
		fail(err)
	}
	if *help {
		fmt.Println(usage)
		return
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		fail(err)
	}
	v.SetEnvPrefix("DICOMORGANIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			fail(fmt.Errorf("could not read config file: %w", err))
		}
	}

	args := flags.Args()
	if len(args) != 3 {
		fmt.Println(usage)
		os.Exit(1)
	}

	opts := cli.Options{
		InputDir:      args[0],
		OutputDir:     args[1],
		DropTagsFile:  args[2],
		IdentifierCSV: v.GetString("identifier-csv"),
		Salt:          v.GetString("salt"),
		Workers:       v.GetInt("workers"),
		RateLimit:     v.GetFloat64("rate-limit"),
		GroupBy:       v.GetStringSlice("group-by"),
		PrintCatalog:  v.GetBool("print-catalog"),
		NameFormat:    v.GetString("name-format"),
		DefaultValue:  v.GetString("default-value"),
		Sequential:    v.GetBool("sequential"),
		NoProgress:    v.GetBool("no-progress"),
		Retry:         v.GetBool("retry"),
		Verbose:       v.GetBool("verbose"),
	}

	if _, err := cli.Run(context.Background(), opts); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
