// Package anonymize produces copies of DICOM files with sensitive fields
// cleared and patient identifiers replaced.
package anonymize

import (
	"context"
	"os"
	"path/filepath"

	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"

	"github.com/kbamps/dicomorganizer/internal/batch"
	dcm "github.com/kbamps/dicomorganizer/internal/dicom"
	"github.com/kbamps/dicomorganizer/internal/identity"
	"github.com/kbamps/dicomorganizer/internal/track"
)

// Task names one file to anonymize and where to write the result.
// OutputPath may be a directory, in which case the output filename is
// derived from the input; an explicit file path is overwritten.
type Task struct {
	InputPath  string
	OutputPath string
}

// Stats summarizes an anonymization run.
type Stats struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Config holds the anonymization settings for a run.
type Config struct {
	ClearFields []dcm.Field
	Identifiers *identity.Map
	Workers     int
	RateLimit   float64
	Sequential  bool
	NoProgress  bool
	Log         *zap.Logger
	Tracker     *track.Tracker

	// Process overrides the per-file worker, mainly for tests. When
	// nil, files go through the DICOM codec via File.
	Process func(ctx context.Context, t Task) (string, error)
}

// Apply clears the configured fields on a parsed record (element kept,
// payload emptied; clearing an absent field is a no-op) and, when an
// identifier map is given, replaces the patient ID and name with the
// mapped or pseudonymous identifier.
func Apply(ds *dcm.Dataset, clear []dcm.Field, ids *identity.Map) {
	for _, f := range clear {
		ds.Clear(f.Tag)
	}

	if ids == nil {
		return
	}
	if pid := ds.GetString(tag.PatientID); pid != "" {
		anon := ids.Pseudonym(pid)
		_ = ds.SetString(tag.PatientID, anon)
		if ds.Has(tag.PatientName) {
			_ = ds.SetString(tag.PatientName, anon)
		}
	}
}

// File anonymizes a single DICOM file and returns the written path. Any
// failure reading, mutating, or writing is returned as an error for the
// batch runner to isolate; it never aborts the run.
func File(t Task, clear []dcm.Field, ids *identity.Map) (string, error) {
	ds, err := dcm.Read(t.InputPath)
	if err != nil {
		return "", err
	}

	Apply(ds, clear, ids)

	out := t.OutputPath
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, filepath.Base(t.InputPath))
	}
	if err := ds.Save(out); err != nil {
		return "", err
	}
	return out, nil
}

// Run anonymizes all tasks over the batch runner. Files the tracker has
// already seen are skipped. Returns the written output paths (successes
// only, in task order) and run statistics.
func Run(ctx context.Context, cfg Config, tasks []Task) ([]string, *Stats) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	process := cfg.Process
	if process == nil {
		process = func(_ context.Context, t Task) (string, error) {
			return File(t, cfg.ClearFields, cfg.Identifiers)
		}
	}

	stats := &Stats{}
	pending := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if cfg.Tracker != nil && cfg.Tracker.IsProcessed(t.InputPath) {
			stats.Skipped++
			continue
		}
		pending = append(pending, t)
	}
	if stats.Skipped > 0 {
		log.Info("skipping already processed files", zap.Int("count", stats.Skipped))
	}

	opts := []batch.Option{
		batch.WithWorkers(cfg.Workers),
		batch.WithDescription("Anonymizing DICOM files"),
		batch.WithLogger(log),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, batch.WithRateLimit(cfg.RateLimit, 1))
	}
	if cfg.Sequential {
		opts = append(opts, batch.WithSequential())
	}
	if cfg.NoProgress {
		opts = append(opts, batch.WithoutProgress())
	}

	results := batch.Run(ctx, process, pending, opts...)

	outputs := batch.Values(results)
	for i, res := range results {
		if res.Absent() {
			stats.Failed++
			if cfg.Tracker != nil {
				cfg.Tracker.MarkError(pending[i].InputPath, res.Err.Error())
			}
			continue
		}
		stats.Succeeded++
		if cfg.Tracker != nil {
			cfg.Tracker.MarkSuccess(pending[i].InputPath, res.Value)
		}
	}

	log.Info("anonymization finished",
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped))
	return outputs, stats
}
