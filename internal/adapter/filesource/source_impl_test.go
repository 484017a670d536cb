package filesource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghazaziz76/data-scraper/internal/entity"
	"github.com/ghazaziz76/data-scraper/internal/repository"
)

func TestFileSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("a,b\n1,2\n"), 0o600))

	src, err := NewFileSource(dir, 1<<20)
	require.NoError(t, err)

	doc, err := src.Fetch(context.Background(), entity.FetchTarget{FilePath: "data.csv"})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(doc.Body))
	assert.Contains(t, doc.URL, "data.csv")
}

func TestFileSource_Errors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte("0123456789"), 0o600))
	src, err := NewFileSource(dir, 5)
	require.NoError(t, err)

	for _, path := range []string{"missing.csv", "../outside.csv", "big.txt", "."} {
		_, err := src.Fetch(context.Background(), entity.FetchTarget{FilePath: path})
		assert.True(t, errors.Is(err, repository.ErrPermanentFetch), path)
	}
}
