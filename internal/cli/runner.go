package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/kbamps/dicomorganizer/internal/anonymize"
	"github.com/kbamps/dicomorganizer/internal/catalog"
	dcm "github.com/kbamps/dicomorganizer/internal/dicom"
	"github.com/kbamps/dicomorganizer/internal/identity"
	"github.com/kbamps/dicomorganizer/internal/logging"
	"github.com/kbamps/dicomorganizer/internal/naming"
	"github.com/kbamps/dicomorganizer/internal/track"
)

// Run executes the full organize-and-anonymize workflow: build the
// metadata catalog, optionally group and print it, then anonymize every
// cataloged file into the output directory.
func Run(ctx context.Context, opts Options) (*anonymize.Stats, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Config{
		Dir:     filepath.Join(opts.OutputDir, "logs"),
		Verbose: opts.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("could not set up logging: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting anonymization",
		zap.String("input", opts.InputDir),
		zap.String("output", opts.OutputDir),
		zap.String("drop_tags", opts.DropTagsFile),
		zap.Int("workers", opts.Workers))

	dropFields, badLines, err := dcm.LoadDropFields(opts.DropTagsFile)
	if err != nil {
		return nil, err
	}
	for _, bad := range badLines {
		log.Error("error processing drop tag", zap.Error(bad))
	}

	var ids *identity.Map
	if opts.IdentifierCSV != "" {
		ids, err = identity.Load(opts.IdentifierCSV, opts.Salt)
		if err != nil {
			return nil, err
		}
		log.Info("loaded identifier map", zap.Int("entries", ids.Len()))
	} else if opts.Salt != "" {
		ids = identity.NewMap(opts.Salt)
	}

	// Extract the clear fields too, so the printed catalog shows what is
	// about to be dropped and the name template can use any of them.
	builder := &catalog.Builder{
		Dir:        opts.InputDir,
		Fields:     dcm.MergeFields(dcm.DefaultFields, dropFields),
		Default:    opts.DefaultValue,
		Workers:    opts.Workers,
		RateLimit:  opts.RateLimit,
		Sequential: opts.Sequential,
		NoProgress: opts.NoProgress,
		Log:        log,
	}
	table, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		fmt.Printf("No DICOM files found in %s\n", opts.InputDir)
		return &anonymize.Stats{}, nil
	}

	var view catalog.View = table
	if len(opts.GroupBy) > 0 {
		grouped, err := table.GroupBy(opts.GroupBy...)
		if err != nil {
			return nil, err
		}
		view = grouped
	}
	if opts.PrintCatalog {
		if err := catalog.Render(os.Stdout, view); err != nil {
			return nil, err
		}
	}

	tracker := track.New(filepath.Join(opts.OutputDir, ".progress.json"), log)
	if opts.Retry {
		tracker.ClearFailed()
	}

	clearFields := dropFields
	if len(clearFields) == 0 {
		clearFields = dcm.DefaultClearFields
	}

	tasks := buildTasks(opts, table)
	outputs, stats := anonymize.Run(ctx, anonymize.Config{
		ClearFields: clearFields,
		Identifiers: ids,
		Workers:     opts.Workers,
		RateLimit:   opts.RateLimit,
		Sequential:  opts.Sequential,
		NoProgress:  opts.NoProgress,
		Log:         log,
		Tracker:     tracker,
	}, tasks)

	printSummary(opts, stats, len(outputs), tracker)
	return stats, nil
}

// buildTasks derives one anonymization task per catalog row. Without a
// name format the input's path relative to the input directory is kept,
// so sibling files with equal basenames never collide.
func buildTasks(opts Options, table *catalog.Table) []anonymize.Task {
	tasks := make([]anonymize.Task, 0, table.Len())
	for _, row := range table.Rows {
		var out string
		if opts.NameFormat != "" && row.Err == "" {
			out = filepath.Join(opts.OutputDir, naming.Expand(opts.NameFormat, row.Fields))
		} else {
			rel, err := filepath.Rel(opts.InputDir, row.Path)
			if err != nil {
				rel = filepath.Base(row.Path)
			}
			out = filepath.Join(opts.OutputDir, rel)
		}
		tasks = append(tasks, anonymize.Task{InputPath: row.Path, OutputPath: out})
	}
	return tasks
}

func printSummary(opts Options, stats *anonymize.Stats, written int, tracker *track.Tracker) {
	fmt.Println()
	if stats.Failed > 0 {
		color.Red("Complete with errors: %d succeeded, %d failed, %d skipped",
			stats.Succeeded, stats.Failed, stats.Skipped)
	} else {
		color.Green("Complete! %d succeeded, %d failed, %d skipped",
			stats.Succeeded, stats.Failed, stats.Skipped)
	}
	// Tracker totals include prior runs, so a resumed run shows the
	// whole picture rather than just this invocation.
	success, failed := tracker.Counts()
	fmt.Printf("Recorded:      %d succeeded, %d failed\n", success, failed)
	fmt.Printf("Files written: %d\n", written)
	fmt.Printf("Output:        %s\n", opts.OutputDir)
	fmt.Printf("Logs:          %s\n", filepath.Join(opts.OutputDir, "logs"))
}
