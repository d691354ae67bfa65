// Package job runs imports end to end: fetch, extract, map, normalize,
// dedupe, create. One goroutine per enqueued job, cooperative cancellation
// at phase checkpoints.
package job

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rodforge/supplier-import/internal/extract"
	"github.com/rodforge/supplier-import/internal/fetch/headless"
	"github.com/rodforge/supplier-import/internal/importer"
	"github.com/rodforge/supplier-import/internal/mapping"
	"github.com/rodforge/supplier-import/internal/metrics"
	"github.com/rodforge/supplier-import/internal/normalize"
	"github.com/rodforge/supplier-import/internal/textnorm"
)

// Config controls orchestrator behavior.
type Config struct {
	Topic       string
	BlobPrefix  string
	ContentType string
}

// Deps collects the orchestrator's collaborators. Blobs, Publisher,
// Renderer and Detector are optional; the rest are required.
type Deps struct {
	Jobs      importer.JobStore
	Aliases   importer.AliasStore
	Templates importer.TemplateStore
	Blobs     importer.BlobStore
	Publisher importer.Publisher
	Sink      importer.CreateSink
	Fetcher   importer.Fetcher
	Renderer  importer.Renderer
	Detector  *headless.Heuristic
	Clock     importer.Clock
	IDs       importer.IDGenerator
	Logger    *zap.Logger
}

// Orchestrator owns the run registry and drives job execution.
type Orchestrator struct {
	deps Deps
	cfg  Config

	mu   sync.Mutex
	runs map[string]*run

	// URLs completed by earlier jobs in this process; consulted when a
	// run asks to skip already-imported pages. Process-local, like the
	// rate limiter buckets.
	importedMu sync.RWMutex
	imported   map[string]struct{}
}

// run is the in-memory handle for one executing job.
type run struct {
	cancelled atomic.Bool
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Jobs == nil:
		return nil, fmt.Errorf("job store is required")
	case deps.Templates == nil:
		return nil, fmt.Errorf("template store is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Sink == nil:
		return nil, fmt.Errorf("create sink is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "imports"
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		runs:     make(map[string]*run),
		imported: make(map[string]struct{}),
	}, nil
}

// Enqueue persists a queued job and schedules its execution. Returns the
// job id immediately.
func (o *Orchestrator) Enqueue(ctx context.Context, params importer.ImportParams) (string, error) {
	if params.TemplateID == "" {
		return "", fmt.Errorf("template id is required")
	}
	if len(params.URLs) == 0 {
		return "", fmt.Errorf("at least one url is required")
	}

	id, err := o.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("new job id: %w", err)
	}
	job := importer.ImportJob{
		ID:        id,
		Status:    importer.JobStatusQueued,
		Submitted: o.deps.Clock.Now(),
		Params:    params,
		Counts:    importer.JobCounts{Total: len(params.URLs)},
	}
	if err := o.deps.Jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	o.appendLog(ctx, id, "job queued")

	r := &run{}
	o.mu.Lock()
	o.runs[id] = r
	o.mu.Unlock()

	// The run outlives the enqueue request.
	go o.execute(context.Background(), id, params, r)
	return id, nil
}

// GetStatus returns the latest persisted snapshot of a job. Safe to call
// while the job is running.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (importer.ImportJob, error) {
	return o.deps.Jobs.GetJob(ctx, jobID)
}

// Cancel requests cooperative cancellation. Terminal jobs report
// alreadyFinished without mutation; jobs missing from the run registry but
// live in the store are cancelled out of band.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (alreadyFinished bool, err error) {
	job, err := o.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return true, nil
	}

	o.mu.Lock()
	r, registered := o.runs[jobID]
	o.mu.Unlock()

	if registered {
		r.cancelled.Store(true)
		o.appendLog(ctx, jobID, "cancellation requested")
		return false, nil
	}

	// Out-of-band: the store says queued/running but no run owns it.
	o.appendLog(ctx, jobID, "cancelled out of band")
	if err := o.deps.Jobs.UpdateJobStatus(ctx, jobID, importer.JobStatusCancelled, "", job.Counts); err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	metrics.ObserveJob(string(importer.JobStatusCancelled))
	return false, nil
}

// execute drives one job to a terminal state.
func (o *Orchestrator) execute(ctx context.Context, jobID string, params importer.ImportParams, r *run) {
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()
	defer o.unregister(jobID)

	logger := o.deps.Logger.With(zap.String("job_id", jobID))
	counts := importer.JobCounts{Total: len(params.URLs)}

	fail := func(reason string) {
		o.appendLog(ctx, jobID, "job failed: "+reason)
		o.persist(ctx, jobID, importer.JobStatusFailed, reason, counts)
		logger.Warn("job failed", zap.String("reason", reason))
	}

	o.persist(ctx, jobID, importer.JobStatusRunning, "", counts)
	o.appendLog(ctx, jobID, "job started")

	template, err := o.deps.Templates.GetTemplate(ctx, params.TemplateID)
	if err != nil {
		fail(fmt.Sprintf("load template %s: %v", params.TemplateID, err))
		return
	}
	aliases := o.aliasSnapshot(ctx, params.TemplateID)
	plan := extract.Lookup(params.ScraperID)

	pages, firstErr := o.fetchPhase(ctx, jobID, params, plan, &counts, logger)
	if firstErr != "" {
		fail(firstErr)
		return
	}

	// Checkpoint: before selector application.
	if r.cancelled.Load() {
		o.finishCancelled(ctx, jobID, counts)
		return
	}

	items, axes := o.mapPhase(ctx, jobID, template, aliases, plan, pages, &counts)
	o.saveSnapshot(ctx, jobID, params, aliases, axes)

	// Checkpoint: before the create phase.
	if r.cancelled.Load() {
		o.finishCancelled(ctx, jobID, counts)
		return
	}

	o.createPhase(ctx, jobID, normalize.Dedupe(items), &counts)

	o.appendLog(ctx, jobID, fmt.Sprintf("job completed: %d created, %d skipped, %d errors",
		counts.Created, counts.Skipped, counts.Errors))
	o.persist(ctx, jobID, importer.JobStatusCompleted, "", counts)
	o.markImported(pages)
	metrics.ObserveJob(string(importer.JobStatusCompleted))
	o.publishCompletion(ctx, jobID, importer.JobStatusCompleted, counts)
}

// markImported remembers the page URLs of a completed job so later runs
// with the skip-successful flag can pass over them.
func (o *Orchestrator) markImported(pages []page) {
	o.importedMu.Lock()
	defer o.importedMu.Unlock()
	for _, p := range pages {
		o.imported[p.url] = struct{}{}
	}
}

func (o *Orchestrator) alreadyImported(url string) bool {
	o.importedMu.RLock()
	defer o.importedMu.RUnlock()
	_, ok := o.imported[url]
	return ok
}

// page pairs a fetched body with its source URL.
type page struct {
	url  string
	body []byte
}

// fetchPhase retrieves every job URL, following discovered links when the
// plan asks for it. A robots block or fetch failure on the first URL aborts
// the job; later failures are logged and skipped.
func (o *Orchestrator) fetchPhase(
	ctx context.Context,
	jobID string,
	params importer.ImportParams,
	plan extract.Plan,
	counts *importer.JobCounts,
	logger *zap.Logger,
) ([]page, string) {
	var pages []page
	for i, url := range params.URLs {
		if params.SkipSuccessful && o.alreadyImported(url) {
			counts.Skipped++
			o.appendLog(ctx, jobID, "skipping previously imported "+url)
			o.persist(ctx, jobID, importer.JobStatusRunning, "", *counts)
			continue
		}
		body, diag := o.fetchOne(ctx, jobID, params, url, i)
		if diag != "" {
			if i == 0 {
				return nil, diag
			}
			counts.Errors++
			o.appendLog(ctx, jobID, diag)
			o.persist(ctx, jobID, importer.JobStatusRunning, "", *counts)
			continue
		}
		if plan.Discover == nil {
			pages = append(pages, page{url: url, body: body})
			continue
		}

		links, diags := plan.Discover.DiscoverLinks(body, url)
		for _, d := range diags {
			o.appendLog(ctx, jobID, d)
		}
		o.appendLog(ctx, jobID, fmt.Sprintf("discovered %d links on %s", len(links), url))
		for _, link := range links {
			if params.SkipSuccessful && o.alreadyImported(link) {
				counts.Skipped++
				o.appendLog(ctx, jobID, "skipping previously imported "+link)
				continue
			}
			linkBody, linkDiag := o.fetchOne(ctx, jobID, params, link, -1)
			if linkDiag != "" {
				counts.Errors++
				o.appendLog(ctx, jobID, linkDiag)
				continue
			}
			pages = append(pages, page{url: link, body: linkBody})
		}
		logger.Debug("followed links", zap.String("url", url), zap.Int("links", len(links)))
	}
	return pages, ""
}

// fetchOne fetches a single URL, promoting to a headless render when the
// detector flags a script-built page. Returns a diagnostic string on
// failure, including robots refusal.
func (o *Orchestrator) fetchOne(
	ctx context.Context,
	jobID string,
	params importer.ImportParams,
	url string,
	index int,
) ([]byte, string) {
	request := importer.FetchRequest{
		URL:             url,
		MaxBytes:        params.MaxPageBytes,
		Timeout:         time.Duration(params.TimeoutSeconds) * time.Second,
		TokensPerSecond: params.TokensPerSecond,
		BucketCapacity:  params.BucketCapacity,
	}
	result, err := o.deps.Fetcher.Fetch(ctx, request)
	if err != nil {
		return nil, fmt.Sprintf("fetch %s: %v", url, err)
	}
	if result.Disallowed {
		return nil, fmt.Sprintf("robots.txt disallows %s", url)
	}
	if result.StatusCode >= 400 {
		return nil, fmt.Sprintf("fetch %s: status %d", url, result.StatusCode)
	}
	if result.Truncated {
		o.appendLog(ctx, jobID, fmt.Sprintf("truncated %s to %d bytes", url, len(result.Body)))
	}

	body := result.Body
	if o.deps.Detector != nil && o.deps.Renderer != nil &&
		o.deps.Detector.ShouldPromote(result.StatusCode, body) {
		rendered, renderErr := o.deps.Renderer.Render(ctx, url)
		if renderErr != nil {
			o.appendLog(ctx, jobID, fmt.Sprintf("headless render %s: %v", url, renderErr))
		} else {
			o.appendLog(ctx, jobID, "promoted to headless render: "+url)
			body = rendered
		}
	}

	o.archive(ctx, jobID, url, index, body)
	return body, ""
}

// archive snapshots the fetched page to the blob store, best-effort.
func (o *Orchestrator) archive(ctx context.Context, jobID, url string, index int, body []byte) {
	if o.deps.Blobs == nil {
		return
	}
	name := fmt.Sprintf("%s/%s/page-%d.html", o.cfg.BlobPrefix, jobID, index)
	if index < 0 {
		name = fmt.Sprintf("%s/%s/link-%s.html", o.cfg.BlobPrefix, jobID, metrics.SanitizeSite(url))
	}
	uri, err := o.deps.Blobs.PutObject(ctx, name, o.cfg.ContentType, body)
	if err != nil {
		o.appendLog(ctx, jobID, fmt.Sprintf("archive %s: %v", url, err))
		return
	}
	o.deps.Logger.Debug("archived page", zap.String("uri", uri))
}

// mapPhase extracts and maps every page into normalized items, advancing
// the processed count per record. Also reports the first variant axes the
// mapping resolved, for the run's snapshot.
func (o *Orchestrator) mapPhase(
	ctx context.Context,
	jobID string,
	template importer.Template,
	aliases map[string]string,
	plan extract.Plan,
	pages []page,
	counts *importer.JobCounts,
) ([]importer.NormalizedItem, importer.Axes) {
	var items []importer.NormalizedItem
	var axes importer.Axes
	for _, p := range pages {
		records, diags := plan.Strategy.Extract(p.body, p.url)
		for _, d := range diags {
			o.appendLog(ctx, jobID, fmt.Sprintf("%s: %s", p.url, d))
		}
		for _, rec := range records {
			result := mapping.MapAttributes(template.Fields, mapping.Input{
				Attributes: rec.Attributes,
				Core:       rec.Core,
			}, aliases)
			if axes == (importer.Axes{}) {
				axes = result.Axes
			}
			if len(result.MissingRequired) > 0 {
				o.appendLog(ctx, jobID, fmt.Sprintf("%s: %s (%d required fields missing)",
					rec.Core.SKU, result.Status, len(result.MissingRequired)))
			}
			counts.Processed++
			items = append(items, normalize.Items([]importer.RawRecord{rec}, normalize.Options{})...)
		}
		o.persist(ctx, jobID, importer.JobStatusRunning, "", *counts)
	}
	o.appendLog(ctx, jobID, fmt.Sprintf("mapped %d records from %d pages", counts.Processed, len(pages)))
	return items, axes
}

// saveSnapshot records the mapping inputs a run used, best-effort.
func (o *Orchestrator) saveSnapshot(
	ctx context.Context,
	runID string,
	params importer.ImportParams,
	aliases map[string]string,
	axes importer.Axes,
) {
	snapshot := importer.MappingSnapshot{
		RunID:      runID,
		TemplateID: params.TemplateID,
		ScraperID:  params.ScraperID,
		Aliases:    aliases,
		Axes:       axes,
	}
	if err := o.deps.Templates.SaveMappingSnapshot(ctx, snapshot); err != nil {
		o.deps.Logger.Warn("save mapping snapshot failed",
			zap.String("run_id", runID), zap.Error(err))
	}
}

// createPhase pushes deduped items through the create sink, sequentially.
func (o *Orchestrator) createPhase(
	ctx context.Context,
	jobID string,
	outcomes []importer.DedupeOutcome,
	counts *importer.JobCounts,
) {
	for _, outcome := range outcomes {
		if outcome.Action == importer.DedupeSkip {
			counts.Skipped++
			metrics.ObserveItem("skipped")
			o.appendLog(ctx, jobID, fmt.Sprintf("%s: %s", outcome.Item.DedupeKey, outcome.Action))
			continue
		}
		result, err := o.deps.Sink.CreateItem(ctx, outcome.Item)
		switch {
		case err != nil:
			counts.Errors++
			metrics.ObserveItem("error")
			o.appendLog(ctx, jobID, fmt.Sprintf("create %s: %v", outcome.Item.DedupeKey, err))
		case result.Status == importer.CreateStatusError:
			counts.Errors++
			metrics.ObserveItem("error")
			o.appendLog(ctx, jobID, fmt.Sprintf("create %s: %s", outcome.Item.DedupeKey, result.Error))
		default:
			counts.Created++
			metrics.ObserveItem("created")
		}
		o.persist(ctx, jobID, importer.JobStatusRunning, "", *counts)
	}
}

func (o *Orchestrator) finishCancelled(ctx context.Context, jobID string, counts importer.JobCounts) {
	o.appendLog(ctx, jobID, "job cancelled at checkpoint")
	o.persist(ctx, jobID, importer.JobStatusCancelled, "", counts)
	metrics.ObserveJob(string(importer.JobStatusCancelled))
	o.publishCompletion(ctx, jobID, importer.JobStatusCancelled, counts)
}

// aliasSnapshot loads the template's alias memory into a plain map for the
// pure mapping pass.
func (o *Orchestrator) aliasSnapshot(ctx context.Context, templateID string) map[string]string {
	if o.deps.Aliases == nil {
		return nil
	}
	entries, err := o.deps.Aliases.ListAliases(ctx, templateID)
	if err != nil {
		o.deps.Logger.Warn("list aliases failed", zap.Error(err))
		return nil
	}
	snapshot := make(map[string]string, len(entries))
	for _, entry := range entries {
		snapshot[entry.Label] = entry.FieldKey
	}
	return snapshot
}

func (o *Orchestrator) publishCompletion(ctx context.Context, jobID string, status importer.JobStatus, counts importer.JobCounts) {
	if o.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id": jobID,
		"status": status,
		"counts": counts,
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.deps.Logger.Warn("publish completion failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// persist writes the latest status and counts; failures are logged, the run
// carries on with its in-memory state.
func (o *Orchestrator) persist(ctx context.Context, jobID string, status importer.JobStatus, errText string, counts importer.JobCounts) {
	if err := o.deps.Jobs.UpdateJobStatus(ctx, jobID, status, errText, counts); err != nil {
		o.deps.Logger.Error("update job status failed",
			zap.String("job_id", jobID), zap.String("status", string(status)), zap.Error(err))
	}
	if status == importer.JobStatusFailed {
		metrics.ObserveJob(string(status))
	}
}

// appendLog writes one timestamped log line.
func (o *Orchestrator) appendLog(ctx context.Context, jobID, line string) {
	stamped := o.deps.Clock.Now().Format(time.RFC3339) + " " + line
	if err := o.deps.Jobs.AppendLog(ctx, jobID, stamped); err != nil {
		o.deps.Logger.Debug("append log failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (o *Orchestrator) unregister(jobID string) {
	o.mu.Lock()
	delete(o.runs, jobID)
	o.mu.Unlock()
}

// PreviewRecord pairs one extracted record with its template mapping.
type PreviewRecord struct {
	Raw    importer.RawRecord      `json:"raw"`
	Mapped importer.MapResult      `json:"mapped"`
	Item   importer.NormalizedItem `json:"item"`
}

// PreviewResult is the synchronous counterpart of a job run, without job
// bookkeeping. RunID keys the mapping snapshot recorded for the preview.
type PreviewResult struct {
	RunID       string          `json:"run_id,omitempty"`
	Records     []PreviewRecord `json:"records"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
}

// Preview fetches one URL and runs extraction plus mapping synchronously.
// Partial results with diagnostics are preferred over errors whenever at
// least one record could be produced.
func (o *Orchestrator) Preview(ctx context.Context, templateID, scraperID, url string) (PreviewResult, error) {
	template, err := o.deps.Templates.GetTemplate(ctx, templateID)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("load template %s: %w", templateID, err)
	}
	result, err := o.deps.Fetcher.Fetch(ctx, importer.FetchRequest{URL: url})
	if err != nil {
		return PreviewResult{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if result.Disallowed {
		return PreviewResult{}, fmt.Errorf("robots.txt disallows %s", url)
	}

	plan := extract.Lookup(scraperID)
	records, diags := plan.Strategy.Extract(result.Body, url)
	aliases := o.aliasSnapshot(ctx, templateID)

	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return PreviewResult{}, fmt.Errorf("new preview id: %w", err)
	}
	preview := PreviewResult{RunID: runID, Diagnostics: diags}
	var axes importer.Axes
	for _, rec := range records {
		mapped := mapping.MapAttributes(template.Fields, mapping.Input{
			Attributes: rec.Attributes,
			Core:       rec.Core,
		}, aliases)
		if axes == (importer.Axes{}) {
			axes = mapped.Axes
		}
		item := normalize.Items([]importer.RawRecord{rec}, normalize.Options{})[0]
		preview.Records = append(preview.Records, PreviewRecord{Raw: rec, Mapped: mapped, Item: item})
	}
	o.saveSnapshot(ctx, runID, importer.ImportParams{TemplateID: templateID, ScraperID: scraperID}, aliases, axes)
	return preview, nil
}

// CorrectAlias records a manual label correction so future runs resolve the
// label directly. The label is stored in its normalized form; alias lookups
// during mapping key on that same form, so corrections may be submitted
// exactly as the unmatched report printed them.
func (o *Orchestrator) CorrectAlias(ctx context.Context, templateID, label, fieldKey string) error {
	if o.deps.Aliases == nil {
		return fmt.Errorf("alias store is not configured")
	}
	normalized := textnorm.Normalize(label)
	if normalized == "" {
		return fmt.Errorf("label %q normalizes to nothing", label)
	}
	entry := importer.AliasEntry{
		Label:      normalized,
		FieldKey:   fieldKey,
		Source:     importer.AliasSourceManual,
		Confidence: 1.0,
	}
	return o.deps.Aliases.UpsertAlias(ctx, templateID, entry)
}
