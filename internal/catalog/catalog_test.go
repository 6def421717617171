package catalog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"

	dcm "github.com/kbamps/dicomorganizer/internal/dicom"
)

var testFields = []dcm.Field{
	{Keyword: "PatientID", Tag: tag.PatientID},
	{Keyword: "Modality", Tag: tag.Modality},
}

// fakeReader serves canned rows keyed by file basename. Files without an
// entry are treated as non-DICOM and excluded.
func fakeReader(rows map[string]*Row) ReadFunc {
	return func(_ context.Context, path string) (*Row, error) {
		row, ok := rows[filepath.Base(path)]
		if !ok {
			return nil, nil
		}
		if row != nil {
			r := *row
			r.Path = path
			return &r, nil
		}
		return nil, errors.New("unreadable")
	}
}

func seedDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestBuild_ExcludesNonConformingFiles(t *testing.T) {
	dir := seedDir(t, "a.dcm", "b.dcm", "c.dcm", "notes.txt")

	b := &Builder{
		Dir:        dir,
		Fields:     testFields,
		Workers:    4,
		NoProgress: true,
		Read: fakeReader(map[string]*Row{
			"a.dcm": {Fields: map[string]string{"PatientID": "P1", "Modality": "CT"}},
			"b.dcm": {Fields: map[string]string{"PatientID": "P1", "Modality": "US"}},
			"c.dcm": {Fields: map[string]string{"PatientID": "P2", "Modality": "CT"}},
			// notes.txt has no entry: silently excluded
		}),
	}

	table, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", table.Len())
	}
	want := []string{"PatientID", "Modality", PathColumn}
	if strings.Join(table.Columns, ",") != strings.Join(want, ",") {
		t.Errorf("columns = %v, want %v", table.Columns, want)
	}
}

func TestBuild_ErrorRowsCarryMarker(t *testing.T) {
	dir := seedDir(t, "ok.dcm", "broken.dcm")

	b := &Builder{
		Dir:        dir,
		Fields:     testFields,
		NoProgress: true,
		Read: fakeReader(map[string]*Row{
			"ok.dcm":     {Fields: map[string]string{"PatientID": "P1", "Modality": "CT"}},
			"broken.dcm": {Err: "could not parse DICOM: truncated"},
		}),
	}

	table, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	if table.Errored() != 1 {
		t.Fatalf("expected 1 errored row, got %d", table.Errored())
	}
	if !contains(table.Columns, ErrColumn) {
		t.Errorf("error column missing from %v", table.Columns)
	}
}

func TestBuild_TaskFailureIsIsolated(t *testing.T) {
	dir := seedDir(t, "good.dcm", "panic.dcm")

	b := &Builder{
		Dir:        dir,
		Fields:     testFields,
		NoProgress: true,
		Read: fakeReader(map[string]*Row{
			"good.dcm":  {Fields: map[string]string{"PatientID": "P1", "Modality": "CT"}},
			"panic.dcm": nil, // reader returns an error for this one
		}),
	}

	table, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected failing file to be dropped, got %d rows", table.Len())
	}
	if filepath.Base(table.Rows[0].Path) != "good.dcm" {
		t.Errorf("unexpected surviving row %q", table.Rows[0].Path)
	}
}

func TestBuild_EmptyDirectory(t *testing.T) {
	b := &Builder{Dir: t.TempDir(), Fields: testFields, NoProgress: true}
	table, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d rows", table.Len())
	}
}

func sampleTable() *Table {
	return &Table{
		Columns: []string{"PatientID", "Modality", PathColumn},
		Rows: []Row{
			{Path: "/d/1.dcm", Fields: map[string]string{"PatientID": "P1", "Modality": "CT"}},
			{Path: "/d/2.dcm", Fields: map[string]string{"PatientID": "P2", "Modality": "US"}},
			{Path: "/d/3.dcm", Fields: map[string]string{"PatientID": "P1", "Modality": "US"}},
		},
	}
}

func TestTable_Filter(t *testing.T) {
	table := sampleTable()

	filtered := table.Filter(func(r Row) bool { return r.Get("Modality") == "US" })

	if filtered.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", filtered.Len())
	}
	for _, r := range filtered.Rows {
		if r.Get("Modality") != "US" {
			t.Errorf("row %s survived filter with modality %q", r.Path, r.Get("Modality"))
		}
	}
	if table.Len() != 3 {
		t.Error("filter must not modify the source table")
	}
}

func TestTable_GroupBy(t *testing.T) {
	table := sampleTable()

	grouped, err := table.GroupBy("PatientID")
	if err != nil {
		t.Fatal(err)
	}
	if len(grouped.Keys) != 2 {
		t.Fatalf("expected 2 groups, got %v", grouped.Keys)
	}
	if grouped.Keys[0] != "P1" || grouped.Keys[1] != "P2" {
		t.Errorf("group order not first-seen: %v", grouped.Keys)
	}
	if grouped.Groups["P1"].Len() != 2 || grouped.Groups["P2"].Len() != 1 {
		t.Errorf("unexpected partition sizes")
	}
}

func TestTable_GroupByMissingColumn(t *testing.T) {
	table := sampleTable()

	_, err := table.GroupBy("PatientID", "NoSuchColumn")
	if err == nil {
		t.Fatal("expected error for unknown group-by column")
	}
	if !strings.Contains(err.Error(), "NoSuchColumn") {
		t.Errorf("error does not name the missing column: %v", err)
	}
}

func TestView_TaggedVariant(t *testing.T) {
	var v View = sampleTable()
	if _, ok := v.(*Table); !ok {
		t.Fatal("flat table must satisfy View")
	}

	grouped, err := sampleTable().GroupBy("Modality")
	if err != nil {
		t.Fatal(err)
	}
	v = grouped
	if _, ok := v.(*Grouped); !ok {
		t.Fatal("grouped table must satisfy View")
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleTable()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"PatientID", "P1", "US", "/d/2.dcm"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered table missing %q:\n%s", want, out)
		}
	}
	// Headers must come out verbatim so they can be fed back to
	// --group-by. Auto-formatting would print "PATIENT ID".
	if strings.Contains(out, "PATIENT ID") {
		t.Errorf("header was auto-formatted:\n%s", out)
	}

	buf.Reset()
	grouped, _ := sampleTable().GroupBy("PatientID")
	if err := Render(&buf, grouped); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "PatientID = P1") {
		t.Errorf("grouped render missing group header:\n%s", buf.String())
	}
}
