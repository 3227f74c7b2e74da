package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vitae/internal/canonical"
	"vitae/internal/interpret"
	"vitae/internal/llm"
	"vitae/internal/logging"
	"vitae/internal/prompts"
	"vitae/internal/services"
)

// Chunk names.
const (
	ChunkProfile        = "profile"
	ChunkExperience     = "experience"
	ChunkQualifications = "qualifications"
)

// Absence reasons.
const (
	ReasonGenerationFailed = "generation_failed"
	ReasonInvalidResponse  = "invalid_response"
	ReasonPanic            = "panic"
	ReasonTemplateMissing  = "template_missing"
	ReasonNoSections       = "no_matching_sections"
	ReasonCancelled        = "cancelled"
)

const systemPrompt = "You are a precise resume parser. Respond with a single JSON object and nothing else."

type chunkSpec struct {
	name      string
	template  string
	fields    []string
	sections  []string
	mandatory bool
}

// plan is the fixed chunk partition. Field ownership is disjoint and merge
// order follows this slice.
var plan = []chunkSpec{
	{
		name:      ChunkProfile,
		template:  prompts.ExtractProfile,
		fields:    []string{canonical.FieldProfile, canonical.FieldSummary, canonical.FieldEducation, canonical.FieldLanguages},
		mandatory: true,
	},
	{
		name:     ChunkExperience,
		template: prompts.ExtractExperience,
		fields:   []string{canonical.FieldExperience, canonical.FieldProjects},
		sections: []string{canonical.FieldExperience, canonical.FieldProjects},
	},
	{
		name:     ChunkQualifications,
		template: prompts.ExtractQualifications,
		fields:   []string{canonical.FieldSkills, canonical.FieldCertifications, canonical.FieldPublications, canonical.FieldAwards},
		sections: []string{canonical.FieldSkills, canonical.FieldCertifications, canonical.FieldPublications, canonical.FieldAwards},
	},
}

// ChunkNames returns the chunk names in merge order.
func ChunkNames() []string {
	out := make([]string, len(plan))
	for i, spec := range plan {
		out[i] = spec.name
	}
	return out
}

// Input is one document to extract.
type Input struct {
	Text string
	// Sections optionally carries pre-segmented section text keyed by
	// canonical field name. When nil, sections are located in Text.
	Sections map[string]string
	// OnProgress, when set, receives this run's chunk settlements instead
	// of the orchestrator-wide callback.
	OnProgress func(Progress)
}

// ChunkRequest is one rendered sub-task.
type ChunkRequest struct {
	Chunk    string
	Text     string
	Template prompts.Template
	Prompt   string
}

// ChunkResult is either a Fragment or an Absent.
type ChunkResult interface {
	ChunkName() string
	isChunkResult()
}

// Fragment is a successful chunk restricted to the fields the chunk owns.
type Fragment struct {
	Chunk  string
	Fields map[string]any
}

func (f Fragment) ChunkName() string { return f.Chunk }
func (Fragment) isChunkResult()      {}

// Absent marks a chunk that produced nothing. Err is nil for skipped chunks.
type Absent struct {
	Chunk  string
	Reason string
	Err    error
}

func (a Absent) ChunkName() string { return a.Chunk }
func (Absent) isChunkResult()      {}

// Skipped reports whether the chunk was never issued.
func (a Absent) Skipped() bool {
	return a.Reason == ReasonTemplateMissing || a.Reason == ReasonNoSections
}

// Chunk statuses reported in metadata.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ChunkReport summarizes one chunk's outcome.
type ChunkReport struct {
	Name            string        `json:"name"`
	Status          string        `json:"status"`
	Reason          string        `json:"reason,omitempty"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       string        `json:"error_kind,omitempty"`
	TemplateVersion string        `json:"template_version,omitempty"`
	Duration        time.Duration `json:"-"`
	DurationMS      int64         `json:"duration_ms"`
}

// Metadata describes one extraction run.
type Metadata struct {
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
	FieldsFound int           `json:"fields_found"`
	Chunks      []ChunkReport `json:"chunks"`
}

// Result is the canonical record plus run metadata.
type Result struct {
	Record   canonical.Record `json:"record"`
	Metadata Metadata         `json:"metadata"`
}

// Progress is reported each time a chunk settles.
type Progress struct {
	Chunk   string
	Status  string
	Settled int
	Total   int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithProgress registers a callback invoked once per settled chunk. Calls are
// serialized.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithGenerationOptions sets the options passed on every generation call.
func WithGenerationOptions(opts llm.Options) Option {
	return func(o *Orchestrator) { o.genOpts = opts }
}

// Orchestrator runs the chunked extraction of one document at a time. It is
// safe for concurrent use; per-call state lives on the stack.
type Orchestrator struct {
	gen      llm.Generator
	catalog  *prompts.Catalog
	logger   *slog.Logger
	progress func(Progress)
	genOpts  llm.Options
}

// New validates the template catalog and returns an orchestrator. A missing
// mandatory template is a configuration error.
func New(gen llm.Generator, catalog *prompts.Catalog, opts ...Option) (*Orchestrator, error) {
	if gen == nil {
		return nil, services.Wrap(services.ErrConfiguration, "extraction", "new", "generator required", nil)
	}
	for _, spec := range plan {
		if spec.mandatory && !catalog.Has(spec.template) {
			return nil, services.WithHint(
				services.Wrap(services.ErrConfiguration, "extraction", "new",
					fmt.Sprintf("mandatory template %q missing", spec.template), prompts.ErrTemplateNotFound),
				"Restore the template or remove the override directory from extraction.template_dir",
			)
		}
	}
	o := &Orchestrator{
		gen:     gen,
		catalog: catalog,
		genOpts: llm.Options{JSON: true},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "extraction")
	return o, nil
}

// Extract runs every chunk concurrently and merges the fragments. Chunk
// failures become Absent results and never fail the run; when every chunk
// fails the record is empty. Extract fails only for empty input or
// cancellation.
func (o *Orchestrator) Extract(ctx context.Context, in Input) (Result, error) {
	if strings.TrimSpace(in.Text) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "extraction", "extract", "document text is empty", nil)
	}
	start := time.Now()
	logger := logging.WithContext(ctx, o.logger)

	sections := in.Sections
	if sections == nil {
		sections = LocateSections(in.Text)
	}

	results := make([]ChunkResult, len(plan))
	durations := make([]time.Duration, len(plan))
	versions := make([]string, len(plan))
	var (
		mu      sync.Mutex
		settled int
	)
	notify := o.progress
	if in.OnProgress != nil {
		notify = in.OnProgress
	}
	settle := func(i int, res ChunkResult) {
		results[i] = res
		if notify == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		settled++
		notify(Progress{Chunk: res.ChunkName(), Status: statusOf(res), Settled: settled, Total: len(plan)})
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(len(plan))
	for i, spec := range plan {
		tpl, err := o.catalog.Lookup(spec.template)
		if err != nil {
			settle(i, Absent{Chunk: spec.name, Reason: ReasonTemplateMissing})
			continue
		}
		versions[i] = tpl.Version
		if !spec.mandatory && !hasSectionText(sections, spec.sections) {
			settle(i, Absent{Chunk: spec.name, Reason: ReasonNoSections})
			continue
		}
		req := ChunkRequest{Chunk: spec.name, Text: in.Text, Template: tpl, Prompt: tpl.Render(in.Text)}
		eg.Go(func() error {
			chunkStart := time.Now()
			res := o.runChunk(egCtx, spec, req)
			durations[i] = time.Since(chunkStart)
			settle(i, res)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	meta := Metadata{Chunks: make([]ChunkReport, len(plan))}
	fragments := make([]map[string]any, 0, len(plan))
	issued, failed := 0, 0
	for i, res := range results {
		report := ChunkReport{
			Name:            res.ChunkName(),
			Status:          statusOf(res),
			TemplateVersion: versions[i],
			Duration:        durations[i],
			DurationMS:      durations[i].Milliseconds(),
		}
		switch r := res.(type) {
		case Fragment:
			issued++
			fragments = append(fragments, r.Fields)
		case Absent:
			report.Reason = r.Reason
			if r.Skipped() {
				logger.Info("extraction chunk skipped",
					logging.String(logging.FieldEventType, "chunk_skipped"),
					logging.String(logging.FieldChunk, r.Chunk),
					logging.String("reason", r.Reason),
				)
				break
			}
			issued++
			failed++
			report.Error = errorText(r.Err)
			report.ErrorKind = services.Kind(r.Err)
			attrs := []logging.Attr{
				logging.String(logging.FieldChunk, r.Chunk),
				logging.String("reason", r.Reason),
				logging.String(logging.FieldImpact, "fields owned by this chunk will be empty"),
			}
			logging.WarnWithContext(logger, "extraction chunk failed", "chunk_failed",
				append(attrs, logging.ErrorAttrs(r.Err)...)...)
		}
		meta.Chunks[i] = report
	}

	if issued > 0 && failed == issued {
		logging.ErrorWithContext(logger, "every extraction chunk failed", "extraction_empty",
			logging.Int("chunks_failed", failed),
			logging.String(logging.FieldImpact, "record will contain no extracted fields"),
		)
	}

	record := canonical.Canonicalize(fragments...)
	if err := canonical.Validate(record); err != nil {
		return Result{}, err
	}
	meta.Duration = time.Since(start)
	meta.DurationMS = meta.Duration.Milliseconds()
	meta.FieldsFound = record.FieldsFound()

	logger.Info("extraction completed",
		logging.String(logging.FieldEventType, "extraction_completed"),
		logging.Int("fields_found", meta.FieldsFound),
		logging.Int("chunks_ok", len(fragments)),
		logging.Int("chunks_failed", failed),
		logging.Duration("duration", meta.Duration),
	)
	return Result{Record: record, Metadata: meta}, nil
}

// runChunk issues one chunk inside a failure boundary: panics, generation
// errors and interpreter errors all become Absent.
func (o *Orchestrator) runChunk(ctx context.Context, spec chunkSpec, req ChunkRequest) (res ChunkResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "extraction chunk panicked", "chunk_panic",
				logging.String(logging.FieldChunk, spec.name),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			res = Absent{
				Chunk:  spec.name,
				Reason: ReasonPanic,
				Err: services.Wrap(services.ErrService, "extraction", "chunk "+spec.name,
					fmt.Sprintf("panic: %v", r), nil),
			}
		}
	}()

	ctx = services.WithChunk(ctx, spec.name)
	raw, err := o.gen.Generate(ctx, []llm.Message{llm.System(systemPrompt), llm.User(req.Prompt)}, o.genOpts)
	if err != nil {
		reason := ReasonGenerationFailed
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		return Absent{Chunk: spec.name, Reason: reason, Err: err}
	}
	obj, err := interpret.Object(raw)
	if err != nil {
		return Absent{Chunk: spec.name, Reason: ReasonInvalidResponse, Err: err}
	}
	return Fragment{Chunk: spec.name, Fields: restrict(obj, spec.fields)}
}

// restrict canonicalizes a raw chunk object and keeps only the fields the
// chunk owns.
func restrict(obj map[string]any, owned []string) map[string]any {
	full := canonical.Canonicalize(obj).Fragment()
	out := make(map[string]any, len(owned))
	for _, field := range owned {
		if v, ok := full[field]; ok {
			out[field] = v
		}
	}
	return out
}

func hasSectionText(sections map[string]string, names []string) bool {
	// Without any located sections there is no evidence a chunk is empty.
	if len(sections) == 0 {
		return true
	}
	for _, name := range names {
		if strings.TrimSpace(sections[name]) != "" {
			return true
		}
	}
	return false
}

func statusOf(res ChunkResult) string {
	switch r := res.(type) {
	case Fragment:
		return StatusOK
	case Absent:
		if r.Skipped() {
			return StatusSkipped
		}
		return StatusFailed
	default:
		return StatusFailed
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
