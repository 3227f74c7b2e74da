package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"vitae/internal/canonical"
	"vitae/internal/config"
	"vitae/internal/document"
	"vitae/internal/extraction"
	"vitae/internal/jobs"
	"vitae/internal/llm"
	"vitae/internal/llm/providers"
	"vitae/internal/prompts"
	"vitae/internal/services"
)

// WorkTypeExtract is the work type of résumé extraction jobs.
const WorkTypeExtract = "extract"

// ExtractPayload is the job input for WorkTypeExtract. Exactly one of Path
// or Text is set.
type ExtractPayload struct {
	Path     string            `json:"path,omitempty"`
	Text     string            `json:"text,omitempty"`
	Filename string            `json:"filename,omitempty"`
	Sections map[string]string `json:"sections,omitempty"`
}

// DocumentInfo describes the text the extraction ran on.
type DocumentInfo struct {
	Source    string `json:"source,omitempty"`
	PageCount int    `json:"page_count"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ExtractResult is the job result for WorkTypeExtract.
type ExtractResult struct {
	Record   canonical.Record    `json:"record"`
	Metadata extraction.Metadata `json:"metadata"`
	Document DocumentInfo        `json:"document"`
}

// ExtractHandler runs document-to-text and chunked extraction for one job.
type ExtractHandler struct {
	docs         document.Extractor
	orchestrator *extraction.Orchestrator
	maxPages     int
	checker      llm.HealthChecker
}

// NewExtractHandler wires the extraction handler. checker may be nil.
func NewExtractHandler(docs document.Extractor, orchestrator *extraction.Orchestrator, maxPages int, checker llm.HealthChecker) *ExtractHandler {
	return &ExtractHandler{docs: docs, orchestrator: orchestrator, maxPages: maxPages, checker: checker}
}

// BuildExtractHandler constructs the provider, template catalog,
// orchestrator, and document extractor described by cfg.
func BuildExtractHandler(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...providers.Option) (*ExtractHandler, error) {
	gen, err := providers.New(ctx, cfg, append([]providers.Option{providers.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	catalog, err := prompts.Load(cfg.Extraction.TemplateDir)
	if err != nil {
		return nil, err
	}
	orchestrator, err := extraction.New(gen, catalog, extraction.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	checker, _ := gen.(llm.HealthChecker)
	return NewExtractHandler(
		document.NewPlainText(cfg.Extraction.MaxDocumentBytes),
		orchestrator,
		cfg.Extraction.MaxPages,
		checker,
	), nil
}

// Handle implements Handler.
func (h *ExtractHandler) Handle(ctx context.Context, job *jobs.Job, progress ProgressFunc) (json.RawMessage, error) {
	var payload ExtractPayload
	decoder := json.NewDecoder(bytes.NewReader(job.Payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrValidation, "extract", "decode payload", "payload is not an extraction request", err)
	}
	result, err := h.Run(ctx, payload, progress)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, services.Wrap(services.ErrService, "extract", "encode result", "marshal extraction result", err)
	}
	return data, nil
}

// Run performs one extraction synchronously. progress may be nil.
func (h *ExtractHandler) Run(ctx context.Context, payload ExtractPayload, progress ProgressFunc) (ExtractResult, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}
	raw, source, err := readPayload(payload)
	if err != nil {
		return ExtractResult{}, err
	}

	progress(5, "Reading document")
	text, err := h.docs.Extract(ctx, raw, h.maxPages)
	if err != nil {
		return ExtractResult{}, err
	}

	progress(15, "Extracting fields")
	res, err := h.orchestrator.Extract(ctx, extraction.Input{
		Text:     text.Content,
		Sections: payload.Sections,
		OnProgress: func(p extraction.Progress) {
			if p.Total == 0 {
				return
			}
			percent := 15 + 80*float64(p.Settled)/float64(p.Total)
			progress(percent, fmt.Sprintf("Chunk %s %s (%d/%d)", p.Chunk, p.Status, p.Settled, p.Total))
		},
	})
	if err != nil {
		return ExtractResult{}, err
	}

	return ExtractResult{
		Record:   res.Record,
		Metadata: res.Metadata,
		Document: DocumentInfo{Source: source, PageCount: text.PageCount, Truncated: text.Truncated},
	}, nil
}

// HealthCheck implements HealthReporter by probing the generation provider.
func (h *ExtractHandler) HealthCheck(ctx context.Context) Health {
	if h.checker == nil {
		return Healthy(WorkTypeExtract)
	}
	if err := h.checker.HealthCheck(ctx); err != nil {
		return Unhealthy(WorkTypeExtract, err.Error())
	}
	return Healthy(WorkTypeExtract)
}

func readPayload(payload ExtractPayload) ([]byte, string, error) {
	path := strings.TrimSpace(payload.Path)
	switch {
	case path != "" && payload.Text != "":
		return nil, "", services.Wrap(services.ErrValidation, "extract", "read payload", "set either path or text, not both", nil)
	case payload.Text != "":
		source := payload.Filename
		if source == "" {
			source = "inline"
		}
		return []byte(payload.Text), source, nil
	case path != "":
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", services.Wrap(services.ErrNotFound, "extract", "read document", path, err)
		}
		if err != nil {
			return nil, "", services.Wrap(services.ErrService, "extract", "read document", path, err)
		}
		return data, path, nil
	default:
		return nil, "", services.Wrap(services.ErrValidation, "extract", "read payload", "document path or text required", nil)
	}
}
