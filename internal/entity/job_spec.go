package entity

import "time"

// JobType selects which source fields and extraction modes a job may use.
type JobType string

const (
	JobTypeWebScraper     JobType = "web_scraper"
	JobTypeFileProcessor  JobType = "file_processor"
	JobTypeAPIConnector   JobType = "api_connector"
	JobTypeBatchProcessor JobType = "batch_processor"
)

// JobTypes lists every job type in scheduling order.
var JobTypes = []JobType{
	JobTypeWebScraper,
	JobTypeFileProcessor,
	JobTypeAPIConnector,
	JobTypeBatchProcessor,
}

func (t JobType) Valid() bool {
	for _, jt := range JobTypes {
		if t == jt {
			return true
		}
	}
	return false
}

// ExtractionMode tags the variant of an ExtractionConfig.
type ExtractionMode string

const (
	ModeContainer ExtractionMode = "container"
	ModeTable     ExtractionMode = "table"
	ModeList      ExtractionMode = "list"
	ModeJSON      ExtractionMode = "json"
	ModeCSV       ExtractionMode = "csv"
	ModePattern   ExtractionMode = "pattern"
)

// IsHTML reports whether the mode works on a parsed HTML document.
func (m ExtractionMode) IsHTML() bool {
	return m == ModeContainer || m == ModeTable || m == ModeList
}

// EmptyPolicy decides what a run does when extraction yields no records.
type EmptyPolicy string

const (
	EmptyAccept EmptyPolicy = "accept"
	EmptyWarn   EmptyPolicy = "warn"
	EmptyFail   EmptyPolicy = "fail"
)

func (p EmptyPolicy) Valid() bool {
	return p == EmptyAccept || p == EmptyWarn || p == EmptyFail
}

type FieldSelector struct {
	Name     string          `json:"name" yaml:"name"`
	Selector string          `json:"selector" yaml:"selector"`
	Attr     string          `json:"attr,omitempty" yaml:"attr,omitempty"`
	Multiple bool            `json:"multiple,omitempty" yaml:"multiple,omitempty"`
	Fields   []FieldSelector `json:"fields,omitempty" yaml:"fields,omitempty"`
}

type ExtractionConfig struct {
	Mode        ExtractionMode  `json:"mode" yaml:"mode"`
	Container   string          `json:"container,omitempty" yaml:"container,omitempty"`
	Table       string          `json:"table,omitempty" yaml:"table,omitempty"`
	List        string          `json:"list,omitempty" yaml:"list,omitempty"`
	RecordsPath string          `json:"recordsPath,omitempty" yaml:"recordsPath,omitempty"`
	Delimiter   string          `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	Fields      []FieldSelector `json:"fields,omitempty" yaml:"fields,omitempty"`
}

type PaginationConfig struct {
	NextSelector string `json:"nextSelector,omitempty" yaml:"nextSelector,omitempty"`
	NextField    string `json:"nextField,omitempty" yaml:"nextField,omitempty"`
	PageParam    string `json:"pageParam,omitempty" yaml:"pageParam,omitempty"`
	StartPage    int    `json:"startPage,omitempty" yaml:"startPage,omitempty"`
	MaxPages     int    `json:"maxPages,omitempty" yaml:"maxPages,omitempty"`
}

type Source struct {
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	Method   string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body     string            `json:"body,omitempty" yaml:"body,omitempty"`
	FilePath string            `json:"filePath,omitempty" yaml:"filePath,omitempty"`
	Sources  []string          `json:"sources,omitempty" yaml:"sources,omitempty"`
	WaitFor  string            `json:"waitFor,omitempty" yaml:"waitFor,omitempty"`
}

// JobSpec is the immutable definition of an extraction task.
type JobSpec struct {
	ID               string            `json:"id" yaml:"-"`
	Name             string            `json:"name" yaml:"name"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Type             JobType           `json:"type" yaml:"type"`
	Source           Source            `json:"source" yaml:"source"`
	Extraction       ExtractionConfig  `json:"extraction" yaml:"extraction"`
	Pagination       *PaginationConfig `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	RateLimitSeconds float64           `json:"rateLimitSeconds" yaml:"rateLimitSeconds"`
	Render           bool              `json:"render,omitempty" yaml:"render,omitempty"`
	EmptyPolicy      EmptyPolicy       `json:"emptyPolicy,omitempty" yaml:"emptyPolicy,omitempty"`
	CreatedAt        time.Time         `json:"createdAt" yaml:"-"`
}
