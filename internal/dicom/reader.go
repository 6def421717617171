// Package dicom wraps the suyashkumar/dicom codec behind the small
// surface the organizer needs: reading records, extracting named fields,
// clearing fields in place, and writing records back out.
package dicom

import (
	"fmt"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Dataset wraps a parsed DICOM record together with its source path.
type Dataset struct {
	Data     dicom.Dataset
	FilePath string
}

// Read parses a complete DICOM file, pixel data included.
func Read(path string) (*Dataset, error) {
	return read(path)
}

// ReadMetadata parses a DICOM file stopping before pixel data. This is
// the variant the catalog uses; field extraction never needs pixels.
func ReadMetadata(path string) (*Dataset, error) {
	return read(path, dicom.SkipPixelData())
}

func read(path string, opts ...dicom.ParseOption) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	ds, err := dicom.Parse(file, info.Size(), nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	return &Dataset{Data: ds, FilePath: path}, nil
}

// Has reports whether the record carries the given tag.
func (d *Dataset) Has(t tag.Tag) bool {
	_, err := d.Data.FindElementByTag(t)
	return err == nil
}

// GetString returns the first string value for a tag, or "" if the tag
// is missing or empty.
func (d *Dataset) GetString(t tag.Tag) string {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return ""
	}

	value := elem.Value.GetValue()
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case []string:
		if len(v) > 0 {
			return v[0]
		}
		return ""
	case string:
		return v
	}

	return fmt.Sprintf("%v", value)
}

// ExtractFields reads the given fields from the record, keyed by field
// keyword. A field the record does not carry yields def instead of an
// error.
func (d *Dataset) ExtractFields(fields []Field, def string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if !d.Has(f.Tag) {
			out[f.Keyword] = def
			continue
		}
		out[f.Keyword] = d.GetString(f.Tag)
	}
	return out
}
