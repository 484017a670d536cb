package paginator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/extractor"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

type fakeSite struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeSite) Fetch(_ context.Context, target entity.FetchTarget) (*entity.RawDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, target.URL)
	body, ok := f.pages[target.URL]
	if !ok {
		return nil, &repository.FetchError{URL: target.URL, StatusCode: 404}
	}
	return &entity.RawDocument{URL: target.URL, Body: []byte(body)}, nil
}

// listing renders a page with the given item names and an optional next link.
func listing(next string, items ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, it := range items {
		fmt.Fprintf(&b, `<div class="item"><span class="name">%s</span></div>`, it)
	}
	if next != "" {
		b.WriteString(next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func webSpec(pagination *entity.PaginationConfig) *entity.JobSpec {
	return &entity.JobSpec{
		ID:     "job-1",
		Type:   entity.JobTypeWebScraper,
		Source: entity.Source{URL: "http://site/p1"},
		Extraction: entity.ExtractionConfig{
			Mode:      entity.ModeContainer,
			Container: ".item",
			Fields:    []entity.FieldSelector{{Name: "name", Selector: ".name"}},
		},
		Pagination: pagination,
	}
}

func newPaginator(t *testing.T, spec *entity.JobSpec, site *fakeSite, gate func() error) *Paginator {
	t.Helper()
	plan, err := extractor.Compile(spec.Extraction)
	require.NoError(t, err)
	p, err := New(spec, plan, site, Options{DefaultMaxPages: 10, MaxPagesCap: 50, Gate: gate, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, p *Paginator) ([]string, []Page, error) {
	t.Helper()
	var names []string
	var pages []Page
	for page, err := range p.Pages(context.Background()) {
		if err != nil {
			return names, pages, err
		}
		pages = append(pages, page)
		for _, r := range page.Records {
			v, _ := r.Get("name")
			names = append(names, v.(string))
		}
	}
	return names, pages, nil
}

func TestPages_NoPaginationFetchesOnce(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://site/p1": listing(`<a class="next" href="/p2">next</a>`, "A", "B"),
	}}
	names, _, err := collect(t, newPaginator(t, webSpec(nil), site, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)
	assert.Len(t, site.calls, 1)
}

func TestPages_RespectsMaxPages(t *testing.T) {
	site := &fakeSite{pages: map[string]string{}}
	for i := 1; i <= 10; i++ {
		site.pages[fmt.Sprintf("http://site/p%d", i)] = listing(fmt.Sprintf(`<a class="next" href="/p%d">next</a>`, i+1), fmt.Sprint(i))
	}
	spec := webSpec(&entity.PaginationConfig{NextSelector: "a.next", MaxPages: 3})
	names, pages, err := collect(t, newPaginator(t, spec, site, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, names)
	assert.Len(t, site.calls, 3)
	assert.Equal(t, 3, pages[2].Total)
}

func TestPages_StopsOnTwoEmptyPages(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://site/p1": listing(`<a class="next" href="/p2">n</a>`, "A"),
		"http://site/p2": listing(`<a class="next" href="/p3">n</a>`, "B"),
		"http://site/p3": listing(`<a class="next" href="/p4">n</a>`),
		"http://site/p4": listing(`<a class="next" href="/p5">n</a>`),
		"http://site/p5": listing(`<a class="next" href="/p6">n</a>`, "E"),
	}}
	spec := webSpec(&entity.PaginationConfig{NextSelector: "a.next"})
	names, _, err := collect(t, newPaginator(t, spec, site, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)
	assert.Len(t, site.calls, 4)
}

func TestPages_SingleEmptyPageDoesNotStall(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://site/p1": listing(`<a class="next" href="/p2">n</a>`, "A"),
		"http://site/p2": listing(`<a class="next" href="/p3">n</a>`),
		"http://site/p3": listing("", "C"),
	}}
	spec := webSpec(&entity.PaginationConfig{NextSelector: "a.next"})
	names, _, err := collect(t, newPaginator(t, spec, site, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, names)
}

func TestPages_DisabledNextStops(t *testing.T) {
	for name, ctrl := range map[string]string{
		"attr":      `<a class="next" href="/p2" disabled>n</a>`,
		"aria":      `<a class="next" href="/p2" aria-disabled="true">n</a>`,
		"class":     `<a class="next disabled" href="/p2">n</a>`,
		"parent li": `<ul><li class="disabled"><a class="next" href="/p2">n</a></li></ul>`,
		"no href":   `<a class="next" href="#">n</a>`,
	} {
		t.Run(name, func(t *testing.T) {
			site := &fakeSite{pages: map[string]string{
				"http://site/p1": listing(ctrl, "A"),
				"http://site/p2": listing("", "B"),
			}}
			spec := webSpec(&entity.PaginationConfig{NextSelector: "a.next"})
			names, _, err := collect(t, newPaginator(t, spec, site, nil))
			require.NoError(t, err)
			assert.Equal(t, []string{"A"}, names)
		})
	}
}

func TestPages_ResolvesRelativeAndGuardsLoops(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://site/p1":      listing(`<a class="next" href="list/p2">n</a>`, "A"),
		"http://site/list/p2": listing(`<a class="next" href="/p1">n</a>`, "B"),
	}}
	spec := webSpec(&entity.PaginationConfig{NextSelector: "a.next"})
	names, _, err := collect(t, newPaginator(t, spec, site, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)
	assert.Equal(t, []string{"http://site/p1", "http://site/list/p2"}, site.calls)
}

func TestPages_ErrorCarriesPartialCount(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://site/p1": listing(`<a class="next" href="/missing">n</a>`, "A", "B"),
	}}
	spec := webSpec(&entity.PaginationConfig{NextSelector: "a.next"})
	_, _, err := collect(t, newPaginator(t, spec, site, nil))

	var pe *PageError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Page)
	assert.Equal(t, 2, pe.Records)
	assert.True(t, errors.Is(err, repository.ErrPermanentFetch))
}

func TestPages_GateStopsBeforeFetch(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://site/p1": listing(`<a class="next" href="/p2">n</a>`, "A"),
		"http://site/p2": listing("", "B"),
	}}
	errStop := errors.New("stop requested")
	calls := 0
	gate := func() error {
		calls++
		if calls > 1 {
			return errStop
		}
		return nil
	}
	spec := webSpec(&entity.PaginationConfig{NextSelector: "a.next"})
	names, _, err := collect(t, newPaginator(t, spec, site, gate))
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, []string{"A"}, names)
	assert.Len(t, site.calls, 1)
}

func TestPages_BatchSourcesInOrder(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://a/1": listing("", "A1"),
		"http://b/1": listing(""),
		"http://c/1": listing(""),
		"http://d/1": listing("", "D1"),
	}}
	spec := webSpec(nil)
	spec.Type = entity.JobTypeBatchProcessor
	spec.Source = entity.Source{Sources: []string{"http://a/1", "http://b/1", "http://c/1", "http://d/1"}}

	p := newPaginator(t, spec, site, nil)
	assert.Equal(t, 4, p.MaxPages())
	names, _, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "D1"}, names)
}

func TestPages_JSONNextField(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://api/items":          `{"items":[{"name":"A"}],"next":"/items?cursor=2"}`,
		"http://api/items?cursor=2": `{"items":[{"name":"B"}],"next":null}`,
	}}
	spec := &entity.JobSpec{
		Type:       entity.JobTypeAPIConnector,
		Source:     entity.Source{URL: "http://api/items"},
		Extraction: entity.ExtractionConfig{Mode: entity.ModeJSON, RecordsPath: "items"},
		Pagination: &entity.PaginationConfig{NextField: "next"},
	}
	names, _, err := collect(t, newPaginator(t, spec, site, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)
}

func TestPages_PageParam(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://api/items?page=1": `{"items":[{"name":"A"}]}`,
		"http://api/items?page=2": `{"items":[{"name":"B"}]}`,
		"http://api/items?page=3": `{"items":[]}`,
		"http://api/items?page=4": `{"items":[]}`,
	}}
	spec := &entity.JobSpec{
		Type:       entity.JobTypeAPIConnector,
		Source:     entity.Source{URL: "http://api/items"},
		Extraction: entity.ExtractionConfig{Mode: entity.ModeJSON, RecordsPath: "items"},
		Pagination: &entity.PaginationConfig{PageParam: "page"},
	}
	names, _, err := collect(t, newPaginator(t, spec, site, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)
	assert.Len(t, site.calls, 4)
}

func TestRecords_Flattens(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"http://site/p1": listing(`<a class="next" href="/p2">n</a>`, "A"),
		"http://site/p2": listing("", "B", "C"),
	}}
	p := newPaginator(t, webSpec(&entity.PaginationConfig{NextSelector: "a.next"}), site, nil)

	var names []string
	for rec, err := range p.Records(context.Background()) {
		require.NoError(t, err)
		v, _ := rec.Get("name")
		names = append(names, v.(string))
		if len(names) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"A", "B"}, names)
}

func TestNew_RejectsBadNextSelector(t *testing.T) {
	spec := webSpec(&entity.PaginationConfig{NextSelector: "a[", MaxPages: 2})
	plan, err := extractor.Compile(spec.Extraction)
	require.NoError(t, err)
	_, err = New(spec, plan, &fakeSite{}, Options{})
	assert.True(t, errors.Is(err, repository.ErrExtractionConfig))
}
