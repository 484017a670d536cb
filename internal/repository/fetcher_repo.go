package repository

import (
	"context"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// DocumentFetcher retrieves raw content for a single target. Failures are
// reported as *FetchError so callers can tell transient from permanent ones.
type DocumentFetcher interface {
	Fetch(ctx context.Context, target entity.FetchTarget) (*entity.RawDocument, error)
}
