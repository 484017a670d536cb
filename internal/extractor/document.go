package extractor

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/ghazaziz76/data-scraper/internal/entity"
)

// Document wraps a fetched body and parses it on demand, once per
// representation. It is used by a single worker and is not safe for
// concurrent use.
type Document struct {
	Raw *entity.RawDocument

	html    *goquery.Document
	htmlErr error
	json    any
	jsonErr error
	parsedH bool
	parsedJ bool
}

func NewDocument(raw *entity.RawDocument) *Document {
	return &Document{Raw: raw}
}

// URL is the address the body was finally served from.
func (d *Document) URL() string {
	if d.Raw.FinalURL != "" {
		return d.Raw.FinalURL
	}
	return d.Raw.URL
}

func (d *Document) HTML() (*goquery.Document, error) {
	if !d.parsedH {
		d.parsedH = true
		d.html, d.htmlErr = goquery.NewDocumentFromReader(bytes.NewReader(d.Raw.Body))
		if d.htmlErr != nil {
			d.htmlErr = fmt.Errorf("failed to parse HTML from %s: %w", d.URL(), d.htmlErr)
		}
	}
	return d.html, d.htmlErr
}

// JSON decodes the body preserving object key order.
func (d *Document) JSON() (any, error) {
	if !d.parsedJ {
		d.parsedJ = true
		d.json, d.jsonErr = entity.DecodeJSON(d.Raw.Body)
		if d.jsonErr != nil {
			d.jsonErr = fmt.Errorf("failed to parse JSON from %s: %w", d.URL(), d.jsonErr)
		}
	}
	return d.json, d.jsonErr
}

// LooksLikeHTML guesses from the content type, then from the first byte.
func (d *Document) LooksLikeHTML() bool {
	ct := d.Raw.ContentType
	if bytes.Contains([]byte(ct), []byte("html")) {
		return true
	}
	trimmed := bytes.TrimSpace(d.Raw.Body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}
