package extractor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// Lookup resolves a dot path such as "data.items.0.name" inside a decoded
// JSON value. Numeric segments index into arrays.
func Lookup(v any, path string) (any, bool) {
	if path == "" || path == "." {
		return v, true
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch t := cur.(type) {
		case entity.Record:
			next, ok := t.Get(seg)
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			cur = t[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func (p *Plan) extractJSON(doc *Document) ([]entity.Record, error) {
	root, err := doc.JSON()
	if err != nil {
		return nil, err
	}
	target, ok := Lookup(root, p.recordsPath)
	if !ok || target == nil {
		return nil, nil
	}

	items, isList := target.([]any)
	if !isList {
		items = []any{target}
	}
	records := make([]entity.Record, 0, len(items))
	for _, item := range items {
		if len(p.fields) == 0 {
			if rec, ok := item.(entity.Record); ok {
				records = append(records, rec.Clone())
			} else {
				records = append(records, entity.NewRecord("value", item))
			}
			continue
		}
		records = append(records, applyJSONFields(item, p.fields))
	}
	return records, nil
}

func applyJSONFields(item any, fields []fieldPlan) entity.Record {
	var rec entity.Record
	for _, f := range fields {
		v, ok := Lookup(item, f.path)
		if !ok {
			continue
		}
		if len(f.children) == 0 {
			rec.Set(f.name, v)
			continue
		}
		if list, isList := v.([]any); isList {
			nested := make([]any, 0, len(list))
			for _, el := range list {
				nested = append(nested, applyJSONFields(el, f.children))
			}
			rec.Set(f.name, nested)
			continue
		}
		rec.Set(f.name, applyJSONFields(v, f.children))
	}
	return rec
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (p *Plan) extractCSV(body []byte) ([]entity.Record, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(body, utf8BOM)))
	r.Comma = p.delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	headers := uniqueHeaders(header)

	var records []entity.Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		records = append(records, p.rowRecord(headers, row))
	}
	return records, nil
}
