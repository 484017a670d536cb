package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

// Built-in pattern shorthands usable as a pattern-mode selector.
var builtinPatterns = map[string]string{
	"@email": `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`,
	"@phone": `(\+\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`,
	"@url":   `https?://(?:[-\w.]|(?:%[\da-fA-F]{2}))+(?:/[^\s"'<>]*)?`,
}

// Plan is an ExtractionConfig resolved into compiled selectors. It is built
// once when a job is submitted and shared read-only by every page of a run.
type Plan struct {
	mode   entity.ExtractionMode
	root   cascadia.Selector // container, table or list element
	fields []fieldPlan

	// table mode: header text -> output name, in output order
	columns []column

	// json mode
	recordsPath string

	// csv mode
	delimiter rune

	// pattern mode
	patterns []patternField
}

type fieldPlan struct {
	name     string
	sel      cascadia.Selector // nil selects the enclosing element itself
	path     string            // json mode
	attr     string
	multiple bool
	children []fieldPlan
}

type column struct {
	header string
	name   string
}

type patternField struct {
	name string
	re   *regexp.Regexp
}

func (p *Plan) Mode() entity.ExtractionMode {
	return p.mode
}

func configError(field string, err error) error {
	return &repository.ExtractionError{Field: field, Err: err}
}

func compileSelector(field, sel string) (cascadia.Selector, error) {
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, configError(field, fmt.Errorf("selector %q: %w", sel, err))
	}
	return compiled, nil
}

// Compile validates cfg and resolves it into a Plan. Malformed selectors or
// patterns are rejected here so they can never fail a running job.
func Compile(cfg entity.ExtractionConfig) (*Plan, error) {
	p := &Plan{mode: cfg.Mode}
	var err error

	switch cfg.Mode {
	case entity.ModeContainer:
		if strings.TrimSpace(cfg.Container) == "" {
			return nil, configError("", errors.New("container mode requires a container selector"))
		}
		if len(cfg.Fields) == 0 {
			return nil, configError("", errors.New("container mode requires at least one field"))
		}
		if p.root, err = compileSelector("container", cfg.Container); err != nil {
			return nil, err
		}
		if p.fields, err = compileHTMLFields(cfg.Fields, ""); err != nil {
			return nil, err
		}

	case entity.ModeTable:
		if strings.TrimSpace(cfg.Table) == "" {
			return nil, configError("", errors.New("table mode requires a table selector"))
		}
		if p.root, err = compileSelector("table", cfg.Table); err != nil {
			return nil, err
		}
		if p.columns, err = compileColumns(cfg.Fields); err != nil {
			return nil, err
		}

	case entity.ModeList:
		if strings.TrimSpace(cfg.List) == "" {
			return nil, configError("", errors.New("list mode requires a list selector"))
		}
		if p.root, err = compileSelector("list", cfg.List); err != nil {
			return nil, err
		}
		if p.fields, err = compileHTMLFields(cfg.Fields, ""); err != nil {
			return nil, err
		}

	case entity.ModeJSON:
		if p.fields, err = compileJSONFields(cfg.Fields, ""); err != nil {
			return nil, err
		}
		p.recordsPath = strings.TrimSpace(cfg.RecordsPath)

	case entity.ModeCSV:
		p.delimiter = ','
		if cfg.Delimiter != "" {
			r, size := utf8.DecodeRuneInString(cfg.Delimiter)
			if size != len(cfg.Delimiter) || r == '"' || r == '\n' || r == '\r' {
				return nil, configError("", fmt.Errorf("invalid csv delimiter %q", cfg.Delimiter))
			}
			p.delimiter = r
		}
		if p.columns, err = compileColumns(cfg.Fields); err != nil {
			return nil, err
		}

	case entity.ModePattern:
		if len(cfg.Fields) == 0 {
			return nil, configError("", errors.New("pattern mode requires at least one field"))
		}
		seen := map[string]bool{}
		for _, f := range cfg.Fields {
			if f.Name == "" || seen[f.Name] {
				return nil, configError(f.Name, errors.New("field names must be unique and non-empty"))
			}
			seen[f.Name] = true
			expr := f.Selector
			if builtin, ok := builtinPatterns[expr]; ok {
				expr = builtin
			}
			if expr == "" {
				return nil, configError(f.Name, errors.New("empty pattern"))
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, configError(f.Name, fmt.Errorf("pattern %q: %w", f.Selector, err))
			}
			p.patterns = append(p.patterns, patternField{name: f.Name, re: re})
		}

	default:
		return nil, configError("", fmt.Errorf("unknown extraction mode %q", cfg.Mode))
	}
	return p, nil
}

func compileHTMLFields(fields []entity.FieldSelector, parent string) ([]fieldPlan, error) {
	out := make([]fieldPlan, 0, len(fields))
	seen := map[string]bool{}
	for _, f := range fields {
		qualified := f.Name
		if parent != "" {
			qualified = parent + "." + f.Name
		}
		if f.Name == "" || seen[f.Name] {
			return nil, configError(qualified, errors.New("field names must be unique and non-empty"))
		}
		seen[f.Name] = true

		fp := fieldPlan{name: f.Name, attr: f.Attr, multiple: f.Multiple}
		if strings.TrimSpace(f.Selector) != "" {
			sel, err := compileSelector(qualified, f.Selector)
			if err != nil {
				return nil, err
			}
			fp.sel = sel
		}
		if len(f.Fields) > 0 {
			children, err := compileHTMLFields(f.Fields, qualified)
			if err != nil {
				return nil, err
			}
			fp.children = children
		}
		out = append(out, fp)
	}
	return out, nil
}

func compileJSONFields(fields []entity.FieldSelector, parent string) ([]fieldPlan, error) {
	out := make([]fieldPlan, 0, len(fields))
	seen := map[string]bool{}
	for _, f := range fields {
		qualified := f.Name
		if parent != "" {
			qualified = parent + "." + f.Name
		}
		if f.Name == "" || seen[f.Name] {
			return nil, configError(qualified, errors.New("field names must be unique and non-empty"))
		}
		seen[f.Name] = true
		if f.Multiple {
			return nil, configError(qualified, errors.New("multiple is not supported in json mode; a path that holds an array yields the whole array"))
		}
		path := f.Selector
		if path == "" {
			path = f.Name
		}
		fp := fieldPlan{name: f.Name, path: path}
		if len(f.Fields) > 0 {
			children, err := compileJSONFields(f.Fields, qualified)
			if err != nil {
				return nil, err
			}
			fp.children = children
		}
		out = append(out, fp)
	}
	return out, nil
}

func compileColumns(fields []entity.FieldSelector) ([]column, error) {
	var cols []column
	seen := map[string]bool{}
	for _, f := range fields {
		header := f.Selector
		if header == "" {
			header = f.Name
		}
		if f.Name == "" || seen[f.Name] {
			return nil, configError(f.Name, errors.New("field names must be unique and non-empty"))
		}
		seen[f.Name] = true
		cols = append(cols, column{header: header, name: f.Name})
	}
	return cols, nil
}

// ValidateSelector compiles a standalone CSS selector, such as a pagination
// control, with the same rules as field selectors.
func ValidateSelector(name, sel string) (cascadia.Selector, error) {
	return compileSelector(name, sel)
}
