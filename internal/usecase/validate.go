package usecase

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/extractor"
	"github.com/ghazaziz76/data-scraper/pkg/utils"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJobSpec, fmt.Sprintf(format, args...))
}

// ValidateSpec checks the type-dependent field rules and compiles the
// extraction plan. Any spec it accepts can be executed without config errors.
func ValidateSpec(spec *entity.JobSpec, renderEnabled bool) (*extractor.Plan, error) {
	if !spec.Type.Valid() {
		return nil, invalid("unknown job type %q", spec.Type)
	}
	if spec.RateLimitSeconds < 0 {
		return nil, invalid("rateLimitSeconds must be >= 0")
	}
	if spec.EmptyPolicy != "" && !spec.EmptyPolicy.Valid() {
		return nil, invalid("emptyPolicy must be accept, warn or fail")
	}
	if spec.Render && spec.Type != entity.JobTypeWebScraper {
		return nil, invalid("render is only supported for web_scraper jobs")
	}
	if spec.Render && !renderEnabled {
		return nil, invalid("render was requested but headless rendering is disabled")
	}

	mode := spec.Extraction.Mode
	src := spec.Source
	switch spec.Type {
	case entity.JobTypeWebScraper:
		if !utils.IsHTTP(src.URL) {
			return nil, invalid("web_scraper requires an absolute http(s) source.url")
		}
		if !mode.IsHTML() && mode != entity.ModePattern {
			return nil, invalid("web_scraper supports container, table, list or pattern extraction, got %q", mode)
		}
	case entity.JobTypeFileProcessor:
		if strings.TrimSpace(src.FilePath) == "" {
			return nil, invalid("file_processor requires source.filePath")
		}
		if spec.Pagination != nil {
			return nil, invalid("file_processor jobs cannot paginate")
		}
	case entity.JobTypeAPIConnector:
		if !utils.IsHTTP(src.URL) {
			return nil, invalid("api_connector requires an absolute http(s) source.url")
		}
		if mode != entity.ModeJSON && mode != entity.ModePattern {
			return nil, invalid("api_connector supports json or pattern extraction, got %q", mode)
		}
		switch strings.ToUpper(src.Method) {
		case "", http.MethodGet, http.MethodPost:
		default:
			return nil, invalid("api_connector method must be GET or POST")
		}
	case entity.JobTypeBatchProcessor:
		if len(src.Sources) == 0 {
			return nil, invalid("batch_processor requires at least one entry in source.sources")
		}
		for i, u := range src.Sources {
			if !utils.IsHTTP(u) {
				return nil, invalid("source.sources[%d] is not an absolute http(s) URL", i)
			}
		}
		if spec.Pagination != nil {
			return nil, invalid("batch_processor jobs cannot paginate; each source is one page")
		}
		if mode == entity.ModeCSV {
			return nil, invalid("batch_processor does not support csv extraction")
		}
	}

	if pg := spec.Pagination; pg != nil {
		set := 0
		for _, v := range []string{pg.NextSelector, pg.NextField, pg.PageParam} {
			if strings.TrimSpace(v) != "" {
				set++
			}
		}
		if set != 1 {
			return nil, invalid("pagination needs exactly one of nextSelector, nextField or pageParam")
		}
		if pg.MaxPages < 0 || pg.StartPage < 0 {
			return nil, invalid("pagination maxPages and startPage must be >= 0")
		}
		if pg.NextSelector != "" {
			if !mode.IsHTML() && mode != entity.ModePattern {
				return nil, invalid("pagination.nextSelector requires an HTML document")
			}
			if _, err := extractor.ValidateSelector("pagination.nextSelector", pg.NextSelector); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidJobSpec, err)
			}
		}
		if pg.NextField != "" && mode != entity.ModeJSON {
			return nil, invalid("pagination.nextField requires json extraction")
		}
	}

	plan, err := extractor.Compile(spec.Extraction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJobSpec, err)
	}
	return plan, nil
}
