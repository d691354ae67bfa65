package importer

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// JobStore persists import job metadata. Log lines are append-only.
type JobStore interface {
	CreateJob(ctx context.Context, job ImportJob) error
	GetJob(ctx context.Context, jobID string) (ImportJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counts JobCounts) error
	AppendLog(ctx context.Context, jobID string, line string) error
}

// AliasStore persists learned label->field overrides per template.
type AliasStore interface {
	GetAlias(ctx context.Context, templateID, label string) (AliasEntry, error)
	UpsertAlias(ctx context.Context, templateID string, entry AliasEntry) error
	ListAliases(ctx context.Context, templateID string) ([]AliasEntry, error)
}

// TemplateStore reads template definitions and keeps one mapping snapshot
// per run for auditability.
type TemplateStore interface {
	GetTemplate(ctx context.Context, templateID string) (Template, error)
	SaveMappingSnapshot(ctx context.Context, snapshot MappingSnapshot) error
	GetMappingSnapshot(ctx context.Context, runID string) (MappingSnapshot, error)
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CreateSink accepts one normalized item and creates it downstream. Called
// sequentially per job to respect dedupe ordering.
type CreateSink interface {
	CreateItem(ctx context.Context, item NormalizedItem) (CreateResult, error)
}

// Fetcher fetches a URL politely: robots evaluation and throttling happen
// before the request goes out.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResult, error)
}

// Renderer executes JavaScript and returns the rendered document, for
// supplier catalogs that build their attribute grid client-side.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
