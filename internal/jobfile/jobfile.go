// Package jobfile reads job definitions submitted at startup.
package jobfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

type document struct {
	Jobs []entity.JobSpec `yaml:"jobs"`
}

// Load reads a YAML file of the form `jobs: [...]`.
func Load(path string) ([]entity.JobSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open job file: %w", err)
	}
	defer f.Close()
	specs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// Parse rejects unknown keys so typos in selectors or modes fail loudly.
func Parse(r io.Reader) ([]entity.JobSpec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode job file: %w", err)
	}
	return doc.Jobs, nil
}
