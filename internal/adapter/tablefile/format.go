// Package tablefile reads and writes the tabular files exchanged between pipeline stages.
//
// A file's Format is resolved once from its extension at the boundary; everything past that
// point works on a Table.
package tablefile

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a supported table file encoding.
type Format int

const (
	// CSV is a comma-separated file with a header row (.csv, .txt).
	CSV Format = iota + 1
	// JSON is an array of records keyed by column name (.json).
	JSON
)

func (f Format) String() string {
	switch f {
	case CSV:
		return "csv"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Ext returns the extension written for the format, with the leading dot.
func (f Format) Ext() string {
	return "." + f.String()
}

// ParseFormat resolves a configured format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	default:
		return 0, fmt.Errorf("unsupported table format %q", name)
	}
}

// FormatOf resolves the format of a path from its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return CSV, nil
	case ".json":
		return JSON, nil
	default:
		return 0, fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
	}
}
