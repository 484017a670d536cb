package entity

import "time"

// FetchTarget is one request the fetcher performs.
type FetchTarget struct {
	URL      string
	Method   string
	Headers  map[string]string
	Body     string
	FilePath string
	Render   bool
	WaitFor  string
}

// RawDocument is the unparsed content returned for a FetchTarget.
type RawDocument struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Duration    time.Duration
}
