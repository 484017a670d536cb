package filesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

var errOutsideRoot = errors.New("path escapes the configured file root")

// FileSource serves file_processor targets from a directory tree.
type FileSource struct {
	root         string
	maxBodyBytes int64
}

func NewFileSource(root string, maxBodyBytes int64) (*FileSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &FileSource{root: abs, maxBodyBytes: maxBodyBytes}, nil
}

// Resolve maps a job's file path onto the root, rejecting paths that leave it.
func (s *FileSource) Resolve(path string) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.root, path)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return full, nil
}

// Fetch reads the file. Every failure is permanent: files do not heal on retry.
func (s *FileSource) Fetch(ctx context.Context, target entity.FetchTarget) (*entity.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.Resolve(target.FilePath)
	if err != nil {
		return nil, &repository.FetchError{URL: target.FilePath, Err: err}
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &repository.FetchError{URL: target.FilePath, Err: fmt.Errorf("file not found: %w", err)}
		}
		return nil, &repository.FetchError{URL: target.FilePath, Err: err}
	}
	if info.IsDir() {
		return nil, &repository.FetchError{URL: target.FilePath, Err: errors.New("path is a directory")}
	}
	if info.Size() > s.maxBodyBytes {
		return nil, &repository.FetchError{URL: target.FilePath, Err: fmt.Errorf("file exceeds %d bytes", s.maxBodyBytes)}
	}

	start := time.Now()
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, &repository.FetchError{URL: target.FilePath, Err: err}
	}
	return &entity.RawDocument{
		URL:         "file://" + filepath.ToSlash(full),
		FinalURL:    "file://" + filepath.ToSlash(full),
		StatusCode:  200,
		ContentType: mime.TypeByExtension(filepath.Ext(full)),
		Body:        data,
		FetchedAt:   time.Now(),
		Duration:    time.Since(start),
	}, nil
}
