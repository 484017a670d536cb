package paginator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/extractor"
	"github.com/ghazaziz76/data-scraper/internal/repository"
	"github.com/ghazaziz76/data-scraper/pkg/utils"
)

// stallLimit is the number of consecutive empty pages taken as end of data.
const stallLimit = 2

// Page is one fetched and extracted page.
type Page struct {
	Number  int
	URL     string
	Records []entity.Record
	// Total is the cumulative record count including this page.
	Total int
}

// PageError aborts pagination. Records is the count gathered before the failing page.
type PageError struct {
	Page    int
	Records int
	Err     error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d (after %d records): %v", e.Page, e.Records, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

type Options struct {
	DefaultMaxPages int
	MaxPagesCap     int
	// Gate is consulted before every page fetch. A non-nil error stops
	// pagination and is yielded unchanged.
	Gate   func() error
	Logger *zap.Logger
}

// Paginator drives a fetcher and an extraction plan across the pages of one
// job source. Pages are fetched strictly in order.
type Paginator struct {
	spec     *entity.JobSpec
	plan     *extractor.Plan
	fetcher  repository.DocumentFetcher
	next     cascadia.Selector
	maxPages int
	gate     func() error
	logger   *zap.Logger
}

func New(spec *entity.JobSpec, plan *extractor.Plan, f repository.DocumentFetcher, opts Options) (*Paginator, error) {
	p := &Paginator{
		spec:    spec,
		plan:    plan,
		fetcher: f,
		gate:    opts.Gate,
		logger:  opts.Logger,
	}
	if p.gate == nil {
		p.gate = func() error { return nil }
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	switch {
	case spec.Type == entity.JobTypeBatchProcessor:
		p.maxPages = len(spec.Source.Sources)
	case spec.Pagination == nil:
		p.maxPages = 1
	default:
		pg := spec.Pagination
		if pg.NextSelector != "" {
			sel, err := extractor.ValidateSelector("pagination.nextSelector", pg.NextSelector)
			if err != nil {
				return nil, err
			}
			p.next = sel
		}
		p.maxPages = pg.MaxPages
		if p.maxPages <= 0 {
			p.maxPages = opts.DefaultMaxPages
		}
		if opts.MaxPagesCap > 0 && p.maxPages > opts.MaxPagesCap {
			p.maxPages = opts.MaxPagesCap
		}
		if p.maxPages <= 0 {
			p.maxPages = 1
		}
	}
	return p, nil
}

// MaxPages is the most pages a run of this job can fetch.
func (p *Paginator) MaxPages() int {
	return p.maxPages
}

func (p *Paginator) paginated() bool {
	return p.spec.Type != entity.JobTypeBatchProcessor && p.spec.Pagination != nil
}

func (p *Paginator) baseTarget(rawURL string) entity.FetchTarget {
	src := p.spec.Source
	return entity.FetchTarget{
		URL:     rawURL,
		Method:  src.Method,
		Headers: src.Headers,
		Body:    src.Body,
		Render:  p.spec.Render,
		WaitFor: src.WaitFor,
	}
}

func (p *Paginator) firstTarget() (entity.FetchTarget, error) {
	src := p.spec.Source
	switch p.spec.Type {
	case entity.JobTypeFileProcessor:
		return entity.FetchTarget{FilePath: src.FilePath}, nil
	case entity.JobTypeBatchProcessor:
		if len(src.Sources) == 0 {
			return entity.FetchTarget{}, errors.New("batch job has no sources")
		}
		return p.baseTarget(src.Sources[0]), nil
	}
	if p.paginated() && p.spec.Pagination.PageParam != "" {
		u, err := utils.WithQueryParam(src.URL, p.spec.Pagination.PageParam, strconv.Itoa(p.startPage()))
		if err != nil {
			return entity.FetchTarget{}, err
		}
		return p.baseTarget(u), nil
	}
	return p.baseTarget(src.URL), nil
}

func (p *Paginator) startPage() int {
	if p.spec.Pagination.StartPage > 0 {
		return p.spec.Pagination.StartPage
	}
	return 1
}

// Pages returns the lazy page sequence. Each call starts again from page one.
func (p *Paginator) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		target, err := p.firstTarget()
		if err != nil {
			yield(Page{Number: 1}, &PageError{Page: 1, Err: err})
			return
		}

		visited := map[string]bool{}
		total, empties := 0, 0
		for n := 1; n <= p.maxPages; n++ {
			if p.paginated() {
				key := target.URL
				if visited[key] {
					p.logger.Info("next page already visited, stopping", zap.String("url", key), zap.Int("page", n))
					return
				}
				visited[key] = true
			}
			if err := p.gate(); err != nil {
				yield(Page{Number: n, Total: total}, err)
				return
			}

			raw, err := p.fetcher.Fetch(ctx, target)
			if err != nil {
				yield(Page{Number: n, Total: total}, &PageError{Page: n, Records: total, Err: err})
				return
			}
			doc := extractor.NewDocument(raw)
			records, err := p.plan.Extract(doc)
			if err != nil {
				yield(Page{Number: n, Total: total}, &PageError{Page: n, Records: total, Err: err})
				return
			}

			total += len(records)
			if len(records) == 0 {
				empties++
			} else {
				empties = 0
			}
			pageURL := target.URL
			if pageURL == "" {
				pageURL = target.FilePath
			}
			next, hasNext := p.nextTarget(n, doc)
			if !yield(Page{Number: n, URL: pageURL, Records: records, Total: total}, nil) {
				return
			}

			if p.paginated() && empties >= stallLimit {
				p.logger.Info("pagination stalled on consecutive empty pages, stopping",
					zap.Int("page", n), zap.Int("records", total))
				return
			}
			if !hasNext {
				return
			}
			target = next
		}
	}
}

// Records flattens Pages into the record sequence.
func (p *Paginator) Records(ctx context.Context) iter.Seq2[entity.Record, error] {
	return func(yield func(entity.Record, error) bool) {
		for page, err := range p.Pages(ctx) {
			if err != nil {
				yield(entity.Record{}, err)
				return
			}
			for _, rec := range page.Records {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func (p *Paginator) nextTarget(n int, doc *extractor.Document) (entity.FetchTarget, bool) {
	if p.spec.Type == entity.JobTypeBatchProcessor {
		if n < len(p.spec.Source.Sources) {
			return p.baseTarget(p.spec.Source.Sources[n]), true
		}
		return entity.FetchTarget{}, false
	}
	if !p.paginated() {
		return entity.FetchTarget{}, false
	}

	pg := p.spec.Pagination
	var ref string
	switch {
	case p.next != nil:
		h, err := doc.HTML()
		if err != nil {
			return entity.FetchTarget{}, false
		}
		ref = nextLink(h, p.next)
	case pg.NextField != "":
		v, err := doc.JSON()
		if err != nil {
			return entity.FetchTarget{}, false
		}
		if s, ok := lookupString(v, pg.NextField); ok {
			ref = s
		}
	case pg.PageParam != "":
		u, err := utils.WithQueryParam(p.spec.Source.URL, pg.PageParam, strconv.Itoa(p.startPage()+n))
		if err != nil {
			return entity.FetchTarget{}, false
		}
		return p.baseTarget(u), true
	}
	if ref == "" {
		return entity.FetchTarget{}, false
	}
	abs, err := utils.ToAbsoluteURL(doc.URL(), ref)
	if err != nil {
		p.logger.Warn("ignoring unparsable next link", zap.String("href", ref), zap.Error(err))
		return entity.FetchTarget{}, false
	}
	return p.baseTarget(abs), true
}

func lookupString(v any, path string) (string, bool) {
	got, ok := extractor.Lookup(v, path)
	if !ok {
		return "", false
	}
	s, ok := got.(string)
	return strings.TrimSpace(s), ok && strings.TrimSpace(s) != ""
}

// nextLink returns the href of the next-page control, or "" when the control
// is missing, disabled or does not point anywhere.
func nextLink(doc *goquery.Document, sel cascadia.Selector) string {
	ctrl := doc.FindMatcher(sel).First()
	if ctrl.Length() == 0 || disabled(ctrl) || disabled(ctrl.Closest("li")) {
		return ""
	}
	href, ok := ctrl.Attr("href")
	if !ok {
		href, _ = ctrl.Find("a[href]").First().Attr("href")
	}
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	return href
}

func disabled(s *goquery.Selection) bool {
	if s.Length() == 0 {
		return false
	}
	if _, ok := s.Attr("disabled"); ok {
		return true
	}
	if v, _ := s.Attr("aria-disabled"); strings.EqualFold(v, "true") {
		return true
	}
	return s.HasClass("disabled")
}
