package catalog

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Render prints a catalog view. Grouped views print one table per group,
// preceded by the group key.
func Render(w io.Writer, v View) error {
	switch view := v.(type) {
	case *Table:
		return renderTable(w, view)
	case *Grouped:
		for _, key := range view.Keys {
			fmt.Fprintf(w, "%s = %s (%d files)\n",
				strings.Join(view.By, ","), key, view.Groups[key].Len())
			if err := renderTable(w, view.Groups[key]); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
		return nil
	default:
		return fmt.Errorf("unknown catalog view %T", v)
	}
}

// renderTable prints headers verbatim: column names double as --group-by
// arguments, so "PatientID" must not render as "PATIENT ID".
func renderTable(w io.Writer, t *Table) error {
	table := tablewriter.NewTable(w, tablewriter.WithHeaderAutoFormat(tw.Off))

	header := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}
	table.Header(header...)

	for _, row := range t.Rows {
		cells := make([]any, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = row.Get(col)
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}
	return table.Render()
}
