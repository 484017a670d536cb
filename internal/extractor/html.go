package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// scalar reads one element: an attribute when attr is set, else its text.
func scalar(s *goquery.Selection, attr string) (string, bool) {
	if attr != "" {
		v, ok := s.Attr(attr)
		return strings.TrimSpace(v), ok
	}
	return cleanText(s.Text()), true
}

// applyFields builds one record from the fields relative to scope. Fields
// whose selector matches nothing are left out of the record.
func applyFields(scope *goquery.Selection, fields []fieldPlan) entity.Record {
	var rec entity.Record
	for _, f := range fields {
		matches := scope
		if f.sel != nil {
			matches = scope.FindMatcher(f.sel)
		}
		if matches.Length() == 0 {
			continue
		}

		if len(f.children) > 0 {
			if f.multiple {
				list := make([]any, 0, matches.Length())
				matches.Each(func(_ int, m *goquery.Selection) {
					list = append(list, applyFields(m, f.children))
				})
				rec.Set(f.name, list)
			} else {
				rec.Set(f.name, applyFields(matches.First(), f.children))
			}
			continue
		}

		if f.multiple {
			list := make([]any, 0, matches.Length())
			matches.Each(func(_ int, m *goquery.Selection) {
				if v, ok := scalar(m, f.attr); ok {
					list = append(list, v)
				}
			})
			rec.Set(f.name, list)
			continue
		}
		if v, ok := scalar(matches.First(), f.attr); ok {
			rec.Set(f.name, v)
		}
	}
	return rec
}

func (p *Plan) extractContainers(doc *goquery.Document) []entity.Record {
	var records []entity.Record
	doc.FindMatcher(p.root).Each(func(_ int, s *goquery.Selection) {
		records = append(records, applyFields(s, p.fields))
	})
	return records
}

func (p *Plan) extractLists(doc *goquery.Document) []entity.Record {
	var records []entity.Record
	doc.FindMatcher(p.root).Find("li").Each(func(_ int, li *goquery.Selection) {
		if len(p.fields) == 0 {
			records = append(records, entity.NewRecord("item", cleanText(li.Text())))
			return
		}
		records = append(records, applyFields(li, p.fields))
	})
	return records
}

// extractTables treats the first row of each matched table as its header.
func (p *Plan) extractTables(doc *goquery.Document) []entity.Record {
	var records []entity.Record
	doc.FindMatcher(p.root).Each(func(_ int, table *goquery.Selection) {
		var headers []string
		ownRows(table).Each(func(_ int, row *goquery.Selection) {
			cells := row.ChildrenFiltered("th, td")
			if cells.Length() == 0 {
				return
			}
			if headers == nil {
				headers = headerNames(cells)
				return
			}
			values := make([]string, 0, cells.Length())
			cells.Each(func(_ int, c *goquery.Selection) {
				values = append(values, cleanText(c.Text()))
			})
			records = append(records, p.rowRecord(headers, values))
		})
	})
	return records
}

// ownRows returns the rows of scope in document order, leaving out rows of
// tables nested inside it. A scope that is not itself a table may hold one
// level of table.
func ownRows(scope *goquery.Selection) *goquery.Selection {
	depth := 0
	if goquery.NodeName(scope) != "table" {
		depth = 1
	}
	return scope.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.ParentsUntilSelection(scope).Filter("table").Length() <= depth
	})
}

func headerNames(cells *goquery.Selection) []string {
	raw := make([]string, 0, cells.Length())
	cells.Each(func(_ int, c *goquery.Selection) {
		raw = append(raw, cleanText(c.Text()))
	})
	return uniqueHeaders(raw)
}

// uniqueHeaders names blank headers column_N and suffixes repeated ones with
// _2, _3 and so on, skipping any name another header already carries.
func uniqueHeaders(raw []string) []string {
	names := make([]string, len(raw))
	reserved := make(map[string]bool, len(raw))
	for i, h := range raw {
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		names[i] = h
		reserved[h] = true
	}

	taken := make(map[string]bool, len(names))
	for i, h := range names {
		name := h
		for n := 2; taken[name] || (name != h && reserved[name]); n++ {
			name = fmt.Sprintf("%s_%d", h, n)
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

// rowRecord maps cell values onto headers, honouring the optional column
// selection. Cells missing from a short row stay absent.
func (p *Plan) rowRecord(headers, values []string) entity.Record {
	var rec entity.Record
	if len(p.columns) == 0 {
		for i, h := range headers {
			if i < len(values) {
				rec.Set(h, values[i])
			}
		}
		return rec
	}
	for _, col := range p.columns {
		for i, h := range headers {
			if h == col.header {
				if i < len(values) {
					rec.Set(col.name, values[i])
				}
				break
			}
		}
	}
	return rec
}
