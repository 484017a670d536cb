package repository

import (
	"context"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// ProgressNotifier receives best-effort progress updates.
type ProgressNotifier interface {
	NotifyProgress(ctx context.Context, event entity.ProgressEvent) error
}
