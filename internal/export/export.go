// Package export encodes result records as JSON or CSV, keeping record order
// and the key order of each record.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv, case-insensitively. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

func (f Format) Extension() string {
	return string(f)
}

// Write encodes records in the given format.
func Write(w io.Writer, f Format, records []entity.Record) error {
	if f == FormatCSV {
		return WriteCSV(w, records)
	}
	return WriteJSON(w, records)
}

func WriteJSON(w io.Writer, records []entity.Record) error {
	if records == nil {
		records = []entity.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func ReadJSON(r io.Reader) ([]entity.Record, error) {
	var records []entity.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json export: %w", err)
	}
	return records, nil
}

// Columns is the union of record keys in first-seen order.
func Columns(records []entity.Record) []string {
	seen := map[string]bool{}
	var cols []string
	for _, rec := range records {
		for _, k := range rec.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// WriteCSV writes a header row followed by one row per record. Missing keys
// become empty cells and nested values are written as JSON.
func WriteCSV(w io.Writer, records []entity.Record) error {
	cols := Columns(records)
	cw := csv.NewWriter(w)
	if len(cols) > 0 {
		if err := cw.Write(cols); err != nil {
			return err
		}
	}
	row := make([]string, len(cols))
	for _, rec := range records {
		for i, col := range cols {
			v, ok := rec.Get(col)
			if !ok {
				row[i] = ""
				continue
			}
			cell, err := cellString(v)
			if err != nil {
				return fmt.Errorf("column %q: %w", col, err)
			}
			row[i] = cell
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a file produced by WriteCSV. Every value comes back as a
// string; empty cells are kept as empty strings.
func ReadCSV(r io.Reader) ([]entity.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv export: %w", err)
	}
	if len(rows) == 0 {
		return []entity.Record{}, nil
	}
	header := rows[0]
	out := make([]entity.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var rec entity.Record
		for i, col := range header {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			rec.Set(col, v)
		}
		out = append(out, rec)
	}
	return out, nil
}

func cellString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
