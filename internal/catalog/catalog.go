// Package catalog builds a row-per-file table of DICOM metadata and
// supports filtering and grouping it.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kbamps/dicomorganizer/internal/batch"
	dcm "github.com/kbamps/dicomorganizer/internal/dicom"
)

// PathColumn is the column holding each row's source file path.
const PathColumn = "filename"

// ErrColumn is the column holding the error marker for rows whose file
// could be identified as DICOM but failed to read or decode.
const ErrColumn = "error"

// Row is one catalog entry. Either Fields is populated, or Err carries
// the read failure for this file.
type Row struct {
	Path   string
	Fields map[string]string
	Err    string
}

// Get returns the row's value for a column, "" when the row does not
// carry it.
func (r Row) Get(col string) string {
	switch col {
	case PathColumn:
		return r.Path
	case ErrColumn:
		return r.Err
	default:
		return r.Fields[col]
	}
}

// View is the result of catalog operations: either a flat *Table or a
// *Grouped partition. Consumers must handle both explicitly.
type View interface {
	view()
}

// Table is a flat, ordered catalog.
type Table struct {
	Columns []string
	Rows    []Row
}

func (*Table) view() {}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Errored returns the number of rows carrying an error marker.
func (t *Table) Errored() int {
	n := 0
	for _, r := range t.Rows {
		if r.Err != "" {
			n++
		}
	}
	return n
}

// Filter returns a new table holding the rows for which pred is true.
// The receiver is not modified.
func (t *Table) Filter(pred func(Row) bool) *Table {
	out := &Table{Columns: t.Columns}
	for _, r := range t.Rows {
		if pred(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Grouped is a catalog partitioned by equality of one or more columns.
// Keys preserves first-seen group order.
type Grouped struct {
	By     []string
	Keys   []string
	Groups map[string]*Table
}

func (*Grouped) view() {}

// GroupBy partitions the table by equality of the given columns. Asking
// for a column the table does not have is an input error reported before
// any partitioning happens.
func (t *Table) GroupBy(cols ...string) (*Grouped, error) {
	var missing []string
	for _, col := range cols {
		if !contains(t.Columns, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("group by %q not found in catalog, available columns: %s",
			strings.Join(missing, ","), strings.Join(t.Columns, ", "))
	}

	g := &Grouped{By: cols, Groups: make(map[string]*Table)}
	for _, r := range t.Rows {
		parts := make([]string, len(cols))
		for i, col := range cols {
			parts[i] = r.Get(col)
		}
		key := strings.Join(parts, "|")

		sub, ok := g.Groups[key]
		if !ok {
			sub = &Table{Columns: t.Columns}
			g.Groups[key] = sub
			g.Keys = append(g.Keys, key)
		}
		sub.Rows = append(sub.Rows, r)
	}
	return g, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ReadFunc reads one candidate file into a row. Returning (nil, nil)
// excludes the file silently (not a DICOM record); a row with Err set
// records a read failure; an error or panic is isolated by the runner.
type ReadFunc func(ctx context.Context, path string) (*Row, error)

// Builder assembles a catalog from a directory tree.
type Builder struct {
	Dir        string
	Fields     []dcm.Field
	Default    string // substituted for fields a record does not carry
	Workers    int
	RateLimit  float64
	Sequential bool
	NoProgress bool
	Log        *zap.Logger

	// Read overrides the per-file reader, mainly for tests. When nil,
	// records are read through the DICOM codec.
	Read ReadFunc
}

// Build walks the directory and extracts the configured fields from each
// candidate file in parallel. One unreadable file never aborts the build.
func (b *Builder) Build(ctx context.Context) (*Table, error) {
	fields := b.Fields
	if len(fields) == 0 {
		fields = dcm.DefaultFields
	}
	log := b.Log
	if log == nil {
		log = zap.NewNop()
	}
	readFn := b.Read
	if readFn == nil {
		readFn = recordReader(fields, b.Default)
	}

	paths, err := dcm.FindFiles(b.Dir)
	if err != nil {
		return nil, fmt.Errorf("could not walk %s: %w", b.Dir, err)
	}

	opts := []batch.Option{
		batch.WithWorkers(b.Workers),
		batch.WithDescription("Reading DICOM files"),
		batch.WithLogger(log),
	}
	if b.RateLimit > 0 {
		opts = append(opts, batch.WithRateLimit(b.RateLimit, 1))
	}
	if b.Sequential {
		opts = append(opts, batch.WithSequential())
	}
	if b.NoProgress {
		opts = append(opts, batch.WithoutProgress())
	}

	results := batch.Run(ctx, readFn, paths, opts...)

	table := &Table{Columns: append(dcm.Keywords(fields), PathColumn)}
	errored := false
	for _, res := range results {
		if res.Absent() || res.Value == nil {
			continue
		}
		row := *res.Value
		if row.Err != "" {
			errored = true
		}
		table.Rows = append(table.Rows, row)
	}
	if errored {
		table.Columns = append(table.Columns, ErrColumn)
	}

	log.Info("catalog built",
		zap.Int("candidates", len(paths)),
		zap.Int("rows", table.Len()),
		zap.Int("errored", table.Errored()))
	return table, nil
}

func recordReader(fields []dcm.Field, def string) ReadFunc {
	return func(_ context.Context, path string) (*Row, error) {
		if !dcm.LooksLikeDicom(path) {
			return nil, nil
		}
		ds, err := dcm.ReadMetadata(path)
		if err != nil {
			return &Row{Path: path, Err: err.Error()}, nil
		}
		return &Row{Path: path, Fields: ds.ExtractFields(fields, def)}, nil
	}
}
