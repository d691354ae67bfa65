package importer

import "time"

// FieldType selects the casting rule applied when a supplier value is
// assigned to a template field.
type FieldType string

// Field types supported by template definitions.
const (
	FieldTypeText       FieldType = "text"
	FieldTypeNumber     FieldType = "number"
	FieldTypeFeetInches FieldType = "feet-inches"
	FieldTypeRangeLb    FieldType = "range-lb"
	FieldTypeRangeOz    FieldType = "range-oz"
	FieldTypeCurrency   FieldType = "currency"
)

// TemplateField is one target field in an import template.
type TemplateField struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Synonyms []string  `json:"synonyms,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Storage  string    `json:"storage,omitempty"`
}

// Template is a named schema that scraped attributes are mapped onto.
type Template struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Fields []TemplateField `json:"fields"`
}

// CoreFields carries the identity attributes every extractor tries to fill
// regardless of the template.
type CoreFields struct {
	SKU          string `json:"sku,omitempty"`
	Price        string `json:"price,omitempty"`
	Title        string `json:"title,omitempty"`
	Availability string `json:"availability,omitempty"`
}

// RawRecord is one product or variant extracted from a supplier page, prior
// to template mapping. Immutable after creation.
type RawRecord struct {
	SourceURL  string              `json:"source_url"`
	Attributes map[string][]string `json:"attributes"`
	Core       CoreFields          `json:"core"`
	Images     []string            `json:"images,omitempty"`
}

// Attribute returns the first value recorded for label, or "".
func (r RawRecord) Attribute(label string) string {
	vals := r.Attributes[label]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// AliasSource records how an alias entry was learned.
type AliasSource string

// Alias sources.
const (
	AliasSourceAuto   AliasSource = "auto"
	AliasSourceManual AliasSource = "manual"
)

// AliasEntry maps a normalized supplier label directly to a template field
// key, bypassing fuzzy matching. Keyed by (template, normalized label).
type AliasEntry struct {
	Label      string      `json:"label"`
	FieldKey   string      `json:"field_key"`
	Source     AliasSource `json:"source"`
	Confidence float64     `json:"confidence"`
}

// Match is the outcome of resolving one template field against one supplier
// candidate label.
type Match struct {
	Key         string   `json:"key"`
	SourceLabel string   `json:"source_label"`
	RawValue    string   `json:"raw_value"`
	CastValue   any      `json:"cast_value"`
	Score       float64  `json:"score"`
	Why         []string `json:"why"`
}

// MatchResult groups the matches from one matcher pass with the leftovers on
// both sides.
type MatchResult struct {
	Matches      []Match  `json:"matches"`
	Unmapped     []string `json:"unmapped"`
	SourceUnused []string `json:"source_unused"`
}

// Range is the cast form of range-lb / range-oz values.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Money is the cast form of currency values.
type Money struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
}

// Axes carries up to three variant option dimensions (length/power/action)
// alongside the mapped field values.
type Axes struct {
	O1 string `json:"o1,omitempty"`
	O2 string `json:"o2,omitempty"`
	O3 string `json:"o3,omitempty"`
}

// UnmatchedLabel reports a supplier attribute no template field claimed.
type UnmatchedLabel struct {
	Label  string `json:"label"`
	Sample string `json:"sample"`
}

// CompletionStatus grades a mapped record by how many required fields are
// still missing.
type CompletionStatus string

// Completion grades: complete (0 missing), partial (1-2), severe (3+).
const (
	CompletionComplete CompletionStatus = "complete"
	CompletionPartial  CompletionStatus = "partial"
	CompletionSevere   CompletionStatus = "severe"
)

// MapResult is the output of one template mapping pass over a RawRecord.
type MapResult struct {
	FieldValues     map[string]any    `json:"field_values"`
	MappedFrom      map[string]string `json:"mapped_from"`
	Unmatched       []UnmatchedLabel  `json:"unmatched"`
	Axes            Axes              `json:"axes"`
	MissingRequired []string          `json:"missing_required,omitempty"`
	Status          CompletionStatus  `json:"status"`
}

// NormalizedItem is the canonical form handed to dedupe and the create sink.
type NormalizedItem struct {
	Title     string    `json:"title"`
	SKU       string    `json:"sku,omitempty"`
	Vendor    string    `json:"vendor,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	Images    []string  `json:"images,omitempty"`
	DedupeKey string    `json:"dedupe_key"`
	Warnings  []string  `json:"warnings,omitempty"`
	Raw       RawRecord `json:"raw"`
}

// DedupeAction is the per-item decision within one batch.
type DedupeAction string

// Dedupe actions.
const (
	DedupeCreate DedupeAction = "create"
	DedupeSkip   DedupeAction = "skip (duplicate-in-batch)"
)

// DedupeOutcome pairs an item with its batch decision.
type DedupeOutcome struct {
	Item   NormalizedItem `json:"item"`
	Action DedupeAction   `json:"action"`
}

// JobStatus represents the lifecycle state of an import job.
type JobStatus string

// Job status values persisted in the job store. Transitions are monotonic
// along queued -> running -> {completed, failed, cancelled}.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether s admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobCounts tracks per-job progress. Values only ever increase.
type JobCounts struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// ImportParams captures the per-run knobs requested by the client. Zero
// values defer to the configured defaults.
type ImportParams struct {
	TemplateID      string   `json:"template_id"`
	ScraperID       string   `json:"scraper_id,omitempty"`
	URLs            []string `json:"urls"`
	SkipSuccessful  bool     `json:"skip_successful,omitempty"`
	TimeoutSeconds  int      `json:"timeout_seconds,omitempty"`
	MaxPageBytes    int      `json:"max_page_bytes,omitempty"`
	TokensPerSecond float64  `json:"tokens_per_second,omitempty"`
	BucketCapacity  int      `json:"bucket_capacity,omitempty"`
}

// ImportJob is the metadata persisted for each submitted import.
type ImportJob struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Params    ImportParams `json:"params"`
	Counts    JobCounts    `json:"counts"`
	Log       []string     `json:"log,omitempty"`
}

// MappingSnapshot records the mapping inputs one run actually used: the
// alias memory as of the run and the variant axes it resolved. Keyed by run
// (job or preview) ID.
type MappingSnapshot struct {
	RunID      string            `json:"run_id"`
	TemplateID string            `json:"template_id"`
	ScraperID  string            `json:"scraper_id,omitempty"`
	Aliases    map[string]string `json:"aliases,omitempty"`
	Axes       Axes              `json:"axes"`
}

// CreateStatus is the downstream sink's verdict for one item.
type CreateStatus string

// Create sink statuses.
const (
	CreateStatusCreated CreateStatus = "created"
	CreateStatusError   CreateStatus = "error"
)

// CreateResult is returned by the downstream create sink per item.
type CreateResult struct {
	Status CreateStatus `json:"status"`
	ID     string       `json:"id,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// FetchRequest captures everything needed to politely fetch a page. Zero
// MaxBytes/Timeout/rate parameters fall back to the fetcher's configured
// defaults; positive rate parameters re-tune the origin's token bucket.
type FetchRequest struct {
	URL             string
	MaxBytes        int
	Timeout         time.Duration
	TokensPerSecond float64
	BucketCapacity  int
}

// FetchResult is returned by a Fetcher implementation. A robots block is not
// an error: Disallowed is set and Body is empty.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
	Truncated  bool
	Disallowed bool
	Duration   time.Duration
}
