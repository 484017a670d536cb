package fetcher

import (
	"context"
	"errors"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

var errRenderDisabled = errors.New("rendering is disabled on this server")

// Router dispatches a target to the transport that can serve it.
type Router struct {
	HTTP    repository.DocumentFetcher
	Browser repository.DocumentFetcher
	File    repository.DocumentFetcher
}

func (r *Router) Fetch(ctx context.Context, target entity.FetchTarget) (*entity.RawDocument, error) {
	switch {
	case target.FilePath != "":
		if r.File == nil {
			return nil, &repository.FetchError{URL: target.FilePath, Err: errors.New("file sources are not configured")}
		}
		return r.File.Fetch(ctx, target)
	case target.Render:
		if r.Browser == nil {
			return nil, &repository.FetchError{URL: target.URL, Err: errRenderDisabled}
		}
		return r.Browser.Fetch(ctx, target)
	default:
		return r.HTTP.Fetch(ctx, target)
	}
}
