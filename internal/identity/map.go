// Package identity maps original patient identifiers to replacements,
// either from an operator-supplied table or by deterministic salted
// hashing.
package identity

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Map holds value-to-replacement pairs plus a salt for the hashed
// fallback used when a value has no explicit entry.
type Map struct {
	replacements map[string]string
	salt         string
}

// NewMap returns an empty identifier map with the given salt.
func NewMap(salt string) *Map {
	return &Map{replacements: make(map[string]string), salt: salt}
}

// Load reads a two-column value,replacement CSV file.
func Load(path, salt string) (*Map, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open identifier file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("could not parse identifier file: %w", err)
	}

	m := NewMap(salt)
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("identifier file line %d: expected 2 columns, got %d", i+1, len(rec))
		}
		m.replacements[strings.TrimSpace(rec[0])] = strings.TrimSpace(rec[1])
	}
	return m, nil
}

// Len returns the number of explicit entries.
func (m *Map) Len() int { return len(m.replacements) }

// Replace returns the explicit replacement for value, if one exists.
func (m *Map) Replace(value string) (string, bool) {
	r, ok := m.replacements[strings.TrimSpace(value)]
	return r, ok
}

// Pseudonym returns the replacement for value: the explicit entry when
// present, otherwise a deterministic salted pseudonym. Equal inputs give
// equal pseudonyms across runs with the same salt.
func (m *Map) Pseudonym(value string) string {
	if r, ok := m.Replace(value); ok {
		return r
	}
	return "ANON-" + hashIdentity(NormalizeName(value), m.salt)
}

var nonAlphaNum = regexp.MustCompile(`[^A-Z0-9\s]`)

// NormalizeName canonicalizes a patient name for matching: "SMITH^JOHN",
// "John Smith" and "smith, john" all normalize identically.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}

	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "^", " ")
	name = strings.ReplaceAll(name, ",", " ")
	name = nonAlphaNum.ReplaceAllString(name, "")

	parts := strings.Fields(name)
	sort.Strings(parts)
	return strings.Join(parts, "")
}

func hashIdentity(normalized, salt string) string {
	sum := sha256.Sum256([]byte(normalized + "|" + salt))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:12])
}
