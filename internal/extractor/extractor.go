package extractor

import (
	"fmt"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// Extract runs the plan against one document and returns its records in
// document order. A root selector matching nothing yields no records and no error.
func (p *Plan) Extract(doc *Document) ([]entity.Record, error) {
	switch p.mode {
	case entity.ModeContainer, entity.ModeTable, entity.ModeList:
		h, err := doc.HTML()
		if err != nil {
			return nil, err
		}
		switch p.mode {
		case entity.ModeContainer:
			return p.extractContainers(h), nil
		case entity.ModeTable:
			return p.extractTables(h), nil
		default:
			return p.extractLists(h), nil
		}
	case entity.ModeJSON:
		return p.extractJSON(doc)
	case entity.ModeCSV:
		return p.extractCSV(doc.Raw.Body)
	case entity.ModePattern:
		return p.extractPatterns(doc)
	}
	return nil, fmt.Errorf("unknown extraction mode %q", p.mode)
}

// Extract compiles cfg and applies it to raw in one step.
func Extract(raw *entity.RawDocument, cfg entity.ExtractionConfig) ([]entity.Record, error) {
	plan, err := Compile(cfg)
	if err != nil {
		return nil, err
	}
	return plan.Extract(NewDocument(raw))
}
