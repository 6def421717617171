package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// Options holds the validated run configuration.
type Options struct {
	InputDir      string
	OutputDir     string
	DropTagsFile  string
	IdentifierCSV string
	Workers       int
	RateLimit     float64
	GroupBy       []string
	NameFormat    string
	DefaultValue  string
	Salt          string
	Sequential    bool
	NoProgress    bool
	Retry         bool
	PrintCatalog  bool
	Verbose       bool
}

// Validate fails fast on configuration errors, before any batch work
// begins. The output directory is created when absent; a pre-existing
// non-empty one is rejected so runs never mix outputs.
func (o *Options) Validate() error {
	if o.InputDir == "" {
		return fmt.Errorf("input directory is required")
	}
	info, err := os.Stat(o.InputDir)
	if err != nil {
		return fmt.Errorf("input directory does not exist: %s", o.InputDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("input path is not a directory: %s", o.InputDir)
	}

	if o.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	absIn, _ := filepath.Abs(o.InputDir)
	absOut, _ := filepath.Abs(o.OutputDir)
	if absIn == absOut {
		return fmt.Errorf("output directory cannot be the same as the input directory")
	}
	if info, err := os.Stat(o.OutputDir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("output path is not a directory: %s", o.OutputDir)
		}
		entries, err := os.ReadDir(o.OutputDir)
		if err != nil {
			return fmt.Errorf("could not read output directory: %w", err)
		}
		if len(entries) > 0 && !o.Retry {
			return fmt.Errorf("output directory is not empty: %s", o.OutputDir)
		}
	} else if err := os.MkdirAll(o.OutputDir, 0755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	if o.DropTagsFile == "" {
		return fmt.Errorf("drop tags file is required")
	}
	if _, err := os.Stat(o.DropTagsFile); err != nil {
		return fmt.Errorf("drop tags file does not exist: %s", o.DropTagsFile)
	}

	if o.IdentifierCSV != "" {
		if _, err := os.Stat(o.IdentifierCSV); err != nil {
			return fmt.Errorf("identifier file does not exist: %s", o.IdentifierCSV)
		}
	}

	if o.Workers < 1 {
		return fmt.Errorf("number of workers (%d) must be a positive integer", o.Workers)
	}
	if o.RateLimit < 0 {
		return fmt.Errorf("rate limit (%g) cannot be negative", o.RateLimit)
	}
	return nil
}
