// Package directory maps a complaint's city and category to the department
// official who must act on it.
//
// The directory is loaded once at startup and is read-only afterwards, so
// Resolve is safe for concurrent use without locking. Loading fails fast on
// malformed input; resolution never fails and falls back to the default
// contact on a miss.
package directory

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	apperrors "civicnotify/internal/errors"
)

//go:embed departments.json
var embeddedDepartments []byte

// DepartmentContact is the routing target for one (city, category) pair.
type DepartmentContact struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Category string `json:"category"`
}

type file struct {
	Default     *DepartmentContact  `json:"default"`
	Departments []DepartmentContact `json:"departments"`
}

// Directory is the static routing table.
type Directory struct {
	entries  map[string]DepartmentContact
	fallback DepartmentContact
}

func key(city, category string) string {
	return strings.ToLower(strings.TrimSpace(city)) + "/" + strings.ToLower(strings.TrimSpace(category))
}

// Load parses a directory document.
//
// fallback, when non-nil, replaces the document's default contact.
// Returns a ConfigurationError on malformed JSON, duplicate keys
// (compared case-insensitively), missing fields, or no default contact.
func Load(data []byte, fallback *DepartmentContact) (*Directory, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperrors.NewConfigurationError("parse department directory", err)
	}

	d := &Directory{entries: make(map[string]DepartmentContact, len(f.Departments))}

	for i, dep := range f.Departments {
		if strings.TrimSpace(dep.City) == "" || strings.TrimSpace(dep.Category) == "" {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("department #%d: city and category are required", i+1), nil)
		}
		if strings.TrimSpace(dep.Name) == "" || strings.TrimSpace(dep.Address) == "" {
			return nil, apperrors.NewConfigurationError(
				fmt.Sprintf("department %s/%s: name and address are required", dep.City, dep.Category), nil)
		}
		k := key(dep.City, dep.Category)
		if _, dup := d.entries[k]; dup {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("duplicate department for %s/%s", dep.City, dep.Category), nil)
		}
		d.entries[k] = dep
	}

	switch {
	case fallback != nil:
		d.fallback = *fallback
	case f.Default != nil:
		d.fallback = *f.Default
	}
	if strings.TrimSpace(d.fallback.Name) == "" || strings.TrimSpace(d.fallback.Address) == "" {
		return nil, apperrors.NewConfigurationError("a default department contact with name and address is required", nil)
	}

	return d, nil
}

// LoadFile loads the directory from path, or the embedded table when path is empty.
func LoadFile(path string, fallback *DepartmentContact) (*Directory, error) {
	if path == "" {
		log.Println("📋 Using embedded department directory")
		return Load(embeddedDepartments, fallback)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("read department directory "+path, err)
	}
	log.Printf("📋 Loaded department directory from %s", path)
	return Load(data, fallback)
}

// Resolve returns the department for a complaint.
//
// routed is false when the default contact was used; the miss is logged.
func (d *Directory) Resolve(city, category string) (contact DepartmentContact, routed bool) {
	if c, ok := d.entries[key(city, category)]; ok {
		return c, true
	}

	log.Printf("⚠️  %v, routing to default contact %s", apperrors.NewRoutingMiss(city, category), d.fallback.Name)
	fb := d.fallback
	fb.City, fb.Category = city, category
	return fb, false
}

// Default returns the fallback contact.
func (d *Directory) Default() DepartmentContact {
	return d.fallback
}

// Entries returns all registered departments sorted by city, then category.
func (d *Directory) Entries() []DepartmentContact {
	out := make([]DepartmentContact, 0, len(d.entries))
	for _, c := range d.entries {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !strings.EqualFold(out[i].City, out[j].City) {
			return strings.ToLower(out[i].City) < strings.ToLower(out[j].City)
		}
		return strings.ToLower(out[i].Category) < strings.ToLower(out[j].Category)
	})
	return out
}

// Cities returns the distinct configured cities.
func (d *Directory) Cities() []string {
	seen := make(map[string]bool)
	var cities []string
	for _, c := range d.Entries() {
		k := strings.ToLower(c.City)
		if !seen[k] {
			seen[k] = true
			cities = append(cities, c.City)
		}
	}
	return cities
}

// placeholderNumbers are test numbers shipped with the sample directory.
// A contact whose digits contain one still needs a real number.
var placeholderNumbers = []string{"9676227890", "9848191129", "9876543"}

// IsPlaceholder reports whether c routes to a known test number.
func IsPlaceholder(c DepartmentContact) bool {
	var digits strings.Builder
	for _, r := range c.Address {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	for _, p := range placeholderNumbers {
		if strings.Contains(digits.String(), p) {
			return true
		}
	}
	return false
}

// Placeholders returns the registered departments still on a test number.
func (d *Directory) Placeholders() []DepartmentContact {
	var out []DepartmentContact
	for _, c := range d.Entries() {
		if IsPlaceholder(c) {
			out = append(out, c)
		}
	}
	return out
}
