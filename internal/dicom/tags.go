package dicom

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Field is a resolved DICOM attribute: the keyword used as a catalog
// column name and the numeric tag used to address the element.
type Field struct {
	Keyword string
	Tag     tag.Tag
}

// DefaultFields are the attributes extracted into the catalog when no
// custom field list is given.
var DefaultFields = []Field{
	{"PatientName", tag.PatientName},
	{"PatientID", tag.PatientID},
	{"StudyID", tag.StudyID},
	{"StudyDate", tag.StudyDate},
	{"SOPInstanceUID", tag.SOPInstanceUID},
	{"SeriesInstanceUID", tag.SeriesInstanceUID},
	{"Modality", tag.Modality},
	{"BurnedInAnnotation", tag.BurnedInAnnotation},
	{"SOPClassUID", tag.SOPClassUID},
	{"StudyInstanceUID", tag.StudyInstanceUID},
}

// DefaultClearFields are the attributes emptied during anonymization when
// no drop-tags file is given.
var DefaultClearFields = []Field{
	{"PatientBirthDate", tag.PatientBirthDate},
	{"PatientAge", tag.PatientAge},
	{"InstitutionName", tag.InstitutionName},
	{"StationName", tag.StationName},
	{"StudyID", tag.StudyID},
	{"AccessionNumber", tag.AccessionNumber},
	{"SeriesDescription", tag.SeriesDescription},
	{"StudyDescription", tag.StudyDescription},
}

// ResolveField resolves a field identifier to a Field. Known DICOM
// keywords are tried first; otherwise the text is treated as a base-16
// numeric tag, accepting "00100020", "0010,0020" and "(0010,0020)".
func ResolveField(text string) (Field, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Field{}, fmt.Errorf("empty field identifier")
	}

	if info, err := tag.FindByName(text); err == nil {
		return Field{Keyword: info.Name, Tag: info.Tag}, nil
	}

	hex := strings.NewReplacer("(", "", ")", "", ",", "", "0x", "", "0X", "").Replace(text)
	raw, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Field{}, fmt.Errorf("%q is neither a known DICOM keyword nor a hex tag", text)
	}

	t := tag.Tag{Group: uint16(raw >> 16), Element: uint16(raw & 0xFFFF)}
	keyword := fmt.Sprintf("%04X%04X", t.Group, t.Element)
	if info, err := tag.Find(t); err == nil {
		keyword = info.Name
	}
	return Field{Keyword: keyword, Tag: t}, nil
}

// LoadDropFields reads a drop-tags file: one field identifier per line,
// blank lines ignored. Unresolvable lines are returned as errors alongside
// the fields that did resolve, so the caller can report them without
// discarding the rest of the file.
func LoadDropFields(path string) ([]Field, []error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open drop tags file: %w", err)
	}
	defer file.Close()

	var fields []Field
	var bad []error

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		f, err := ResolveField(line)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		fields = append(fields, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("could not read drop tags file: %w", err)
	}
	return fields, bad, nil
}

// Keywords returns the keyword names of a field list in order.
func Keywords(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Keyword
	}
	return out
}

// MergeFields appends extras to base, skipping keywords already present.
func MergeFields(base, extras []Field) []Field {
	seen := make(map[string]bool, len(base))
	out := make([]Field, 0, len(base)+len(extras))
	for _, f := range base {
		seen[f.Keyword] = true
		out = append(out, f)
	}
	for _, f := range extras {
		if !seen[f.Keyword] {
			seen[f.Keyword] = true
			out = append(out, f)
		}
	}
	return out
}
