package tablefile

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// Column describes a table column. Numeric columns are written as JSON numbers, with an empty
// cell written as null.
type Column struct {
	Name    string
	Numeric bool
}

// Table is an in-memory table of string cells. An empty cell is a missing value.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// Names returns the column names in order.
func (t Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Read decodes a table in the given format.
func Read(r io.Reader, f Format) (Table, error) {
	switch f {
	case CSV:
		return readCSV(r)
	case JSON:
		return readJSON(r)
	default:
		return Table{}, fmt.Errorf("read table: unsupported format %v", f)
	}
}

// Write encodes a table in the given format.
func Write(w io.Writer, f Format, t Table) error {
	switch f {
	case CSV:
		return writeCSV(w, t)
	case JSON:
		return writeJSON(w, t)
	default:
		return fmt.Errorf("write table: unsupported format %v", f)
	}
}

// ReadFile reads a table, resolving the format from the extension.
func ReadFile(path string) (Table, error) {
	f, err := FormatOf(path)
	if err != nil {
		return Table{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	t, err := Read(bufio.NewReader(file), f)
	if err != nil {
		return Table{}, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// WriteFile writes a table, creating parent directories and resolving the format from the
// extension.
func WriteFile(path string, t Table) (err error) {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	w := bufio.NewWriter(file)
	if err := Write(w, f, t); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Flush()
}

// LoadDir reads every file directly inside dir and combines them into one table whose columns
// are the union of the files' columns. A file that cannot be read is logged and skipped. An
// empty combination fails with *domain.EmptyResultError.
func LoadDir(dir string, logger *slog.Logger) (Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Table{}, fmt.Errorf("list %s: %w", dir, err)
	}

	var tables []Table
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		t, err := ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		logger.Info("loaded file", "path", path, "rows", len(t.Rows))
		tables = append(tables, t)
	}

	combined := Combine(tables...)
	if len(combined.Rows) == 0 {
		logger.Warn("combined table is empty", "dir", dir)
		return Table{}, &domain.EmptyResultError{Stage: "load " + dir}
	}
	return combined, nil
}

// Combine concatenates tables. Columns keep first-seen order; cells of columns a table lacks
// are empty.
func Combine(tables ...Table) Table {
	var out Table
	pos := make(map[string]int)
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := pos[c.Name]; !ok {
				pos[c.Name] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}
	for _, t := range tables {
		for _, row := range t.Rows {
			cells := make([]string, len(out.Columns))
			for i, c := range t.Columns {
				if i < len(row) {
					cells[pos[c.Name]] = row[i]
				}
			}
			out.Rows = append(out.Rows, cells)
		}
	}
	return out
}

func readCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	t := Table{Columns: make([]Column, len(header))}
	for i, h := range header {
		t.Columns[i] = Column{Name: h}
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read record: %w", err)
		}
		if len(rec) != len(header) {
			line, _ := cr.FieldPos(0)
			return Table{}, &domain.MalformedInputError{
				Field:  "row",
				Reason: fmt.Sprintf("line %d has %d fields, header has %d", line, len(rec), len(header)),
			}
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func readJSON(r io.Reader) (Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return Table{}, fmt.Errorf("decode records: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)

	t := Table{Columns: make([]Column, len(names))}
	for i, n := range names {
		t.Columns[i] = Column{Name: n}
	}
	for _, rec := range records {
		row := make([]string, len(names))
		for i, n := range names {
			switch v := rec[n].(type) {
			case nil:
			case string:
				row[i] = v
			case json.Number:
				row[i] = v.String()
				t.Columns[i].Numeric = true
			case bool:
				row[i] = strconv.FormatBool(v)
			default:
				b, _ := json.Marshal(v)
				row[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func writeJSON(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	keys := make([][]byte, len(t.Columns))
	for i, c := range t.Columns {
		k, err := json.Marshal(c.Name)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	bw.WriteByte('[')
	for r, row := range t.Rows {
		if r > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString("\n{")
		for i, c := range t.Columns {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.Write(keys[i])
			bw.WriteByte(':')
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			switch {
			case c.Numeric && cell == "":
				bw.WriteString("null")
			case c.Numeric && isNumber(cell):
				bw.WriteString(cell)
			default:
				v, err := json.Marshal(cell)
				if err != nil {
					return err
				}
				bw.Write(v)
			}
		}
		bw.WriteByte('}')
	}
	bw.WriteString("\n]\n")
	return bw.Flush()
}

func isNumber(s string) bool {
	return json.Valid([]byte(s)) && s[0] != '"' && s[0] != '[' && s[0] != '{' && s != "true" && s != "false" && s != "null"
}
