// Package naming expands output filename templates from catalog fields.
//
// A template contains $Field$ placeholders, e.g.
// "$PatientID$_$Modality$.dcm". A placeholder may list fallbacks
// separated by '?': $SeriesDescription?StudyDescription$ takes the first
// field with a known value. Unknown values render as "UNKNOWN".
package naming

import (
	"regexp"
	"strings"
)

const unknown = "UNKNOWN"

var placeholder = regexp.MustCompile(`\$([^$]+)\$`)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Expand substitutes every $Field$ placeholder in format with the
// sanitized field value, then replaces remaining spaces with underscores.
func Expand(format string, fields map[string]string) string {
	out := placeholder.ReplaceAllStringFunc(format, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "$"), "$")
		return Sanitize(resolve(name, fields))
	})
	return strings.ReplaceAll(out, " ", "_")
}

// resolve picks the value for a placeholder, walking '?' fallbacks until
// one field has a known value.
func resolve(name string, fields map[string]string) string {
	value := unknown
	for _, candidate := range strings.Split(name, "?") {
		if v, ok := fields[candidate]; ok && v != "" && v != unknown {
			value = v
			break
		}
	}
	return value
}

// Sanitize makes a string safe as a filename component: invalid
// characters become underscores, Windows reserved device names get a
// trailing underscore, leading/trailing dots and spaces are trimmed.
func Sanitize(name string) string {
	const invalid = `<>:"/\|?*`
	for _, ch := range invalid {
		name = strings.ReplaceAll(name, string(ch), "_")
	}

	name = strings.Trim(name, ". ")

	if reservedNames[strings.ToUpper(name)] {
		name += "_"
	}
	return name
}
