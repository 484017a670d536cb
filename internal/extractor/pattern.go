package extractor

import (
	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// extractPatterns yields a single record holding, per field, the distinct
// matches in order of first appearance. No matches at all yields no record.
func (p *Plan) extractPatterns(doc *Document) ([]entity.Record, error) {
	text := string(doc.Raw.Body)
	if doc.LooksLikeHTML() {
		h, err := doc.HTML()
		if err != nil {
			return nil, err
		}
		scope := h.Find("body")
		if scope.Length() == 0 {
			scope = h.Selection
		}
		scope = scope.Clone()
		scope.Find("script, style, noscript").Remove()
		text = scope.Text()
	}

	var rec entity.Record
	for _, pf := range p.patterns {
		matches := pf.re.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		seen := make(map[string]bool, len(matches))
		values := make([]any, 0, len(matches))
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			values = append(values, m)
		}
		rec.Set(pf.name, values)
	}
	if rec.Len() == 0 {
		return nil, nil
	}
	return []entity.Record{rec}, nil
}
