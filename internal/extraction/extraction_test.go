package extraction_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"vitae/internal/canonical"
	"vitae/internal/extraction"
	"vitae/internal/llm"
	"vitae/internal/prompts"
	"vitae/internal/services"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const resume = `Jane Doe
jane@example.com

Experience
Acme Corp - Engineer 2020-2023

Skills
Go, SQL
`

var okResponses = map[string]string{
	extraction.ChunkProfile: `{"profile":{"name":"Jane Doe","email":"jane@example.com"},"summary":"","education":[],` +
		`"languages":["English"],"skills":["Leaked"]}`,
	extraction.ChunkExperience: "```json\n" +
		`{"experience":[{"organization":"Acme Corp","title":"Engineer","start_date":"2020","end_date":"2023"}],"projects":[]}` +
		"\n```",
	extraction.ChunkQualifications: `Here you go: {"skills":[{"category":"","items":["Go","SQL"]}],"certifications":[],` +
		`"publications":[{"title":"Repo","venue":"GitHub"}],"awards":[]} Thanks!`,
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string
	respond func(chunk string) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	chunk, _ := services.ChunkFromContext(ctx)
	f.mu.Lock()
	f.calls = append(f.calls, chunk)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(messages) != 2 || messages[0].Role != llm.RoleSystem || !opts.JSON {
		return "", errors.New("unexpected request shape")
	}
	return f.respond(chunk)
}

func (f *fakeGenerator) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func respondWith(overrides map[string]func() (string, error)) func(string) (string, error) {
	return func(chunk string) (string, error) {
		if fn, ok := overrides[chunk]; ok {
			return fn()
		}
		return okResponses[chunk], nil
	}
}

func newOrchestrator(t *testing.T, gen llm.Generator, catalog *prompts.Catalog, opts ...extraction.Option) *extraction.Orchestrator {
	t.Helper()
	if catalog == nil {
		catalog = prompts.MustLoadBuiltin()
	}
	o, err := extraction.New(gen, catalog, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestExtractMergesChunksInPlanOrder(t *testing.T) {
	gen := &fakeGenerator{respond: respondWith(nil)}
	o := newOrchestrator(t, gen, nil)

	res, err := o.Extract(context.Background(), extraction.Input{Text: resume})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := canonical.Canonicalize(map[string]any{
		"profile":    map[string]any{"name": "Jane Doe", "email": "jane@example.com"},
		"languages":  []any{"English"},
		"experience": []any{map[string]any{"organization": "Acme Corp", "title": "Engineer", "start_date": "2020", "end_date": "2023"}},
		"skills":     []any{map[string]any{"category": "", "items": []any{"Go", "SQL"}}},
	})
	if diff := cmp.Diff(want, res.Record); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	if res.Metadata.FieldsFound != 4 {
		t.Fatalf("FieldsFound = %d, want 4", res.Metadata.FieldsFound)
	}
	for i, report := range res.Metadata.Chunks {
		if report.Name != extraction.ChunkNames()[i] || report.Status != extraction.StatusOK {
			t.Fatalf("unexpected chunk report %+v", report)
		}
		if report.TemplateVersion == "" {
			t.Fatalf("chunk %s missing template version", report.Name)
		}
	}
	if diff := cmp.Diff([]string{"experience", "profile", "qualifications"}, gen.called()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractToleratesSingleChunkFailure(t *testing.T) {
	tests := []struct {
		name   string
		fail   func() (string, error)
		reason string
	}{
		{"generation error", func() (string, error) { return "", errors.New("upstream exploded") }, extraction.ReasonGenerationFailed},
		{"unparseable response", func() (string, error) { return "I cannot help with that.", nil }, extraction.ReasonInvalidResponse},
		{"panic", func() (string, error) { panic("boom") }, extraction.ReasonPanic},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{respond: respondWith(map[string]func() (string, error){
				extraction.ChunkExperience: tc.fail,
			})}
			o := newOrchestrator(t, gen, nil)

			res, err := o.Extract(context.Background(), extraction.Input{Text: resume})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if len(res.Record.Experience) != 0 {
				t.Fatalf("expected no experience, got %+v", res.Record.Experience)
			}
			if res.Record.Profile.Name != "Jane Doe" || len(res.Record.Skills) != 1 {
				t.Fatalf("surviving chunks not merged: %+v", res.Record)
			}
			report := res.Metadata.Chunks[1]
			if report.Status != extraction.StatusFailed || report.Reason != tc.reason || report.Error == "" {
				t.Fatalf("unexpected report %+v", report)
			}
		})
	}
}

func TestExtractReturnsEmptyRecordWhenEveryChunkFails(t *testing.T) {
	cause := services.Wrap(services.ErrService, "openai", "generate", "service unavailable", nil)
	gen := &fakeGenerator{respond: func(string) (string, error) { return "", cause }}
	o := newOrchestrator(t, gen, nil)

	res, err := o.Extract(context.Background(), extraction.Input{Text: resume})
	if err != nil {
		t.Fatalf("chunk failures must not fail the run: %v", err)
	}
	if diff := cmp.Diff(canonical.Canonicalize(), res.Record); diff != "" {
		t.Fatalf("expected empty record (-want +got):\n%s", diff)
	}
	if res.Record.Experience == nil || res.Record.Skills == nil {
		t.Fatalf("expected empty lists rather than nil: %+v", res.Record)
	}
	if res.Metadata.FieldsFound != 0 {
		t.Fatalf("expected no fields found, got %d", res.Metadata.FieldsFound)
	}
	for _, report := range res.Metadata.Chunks {
		if report.Status != extraction.StatusFailed || report.ErrorKind != services.KindService {
			t.Fatalf("unexpected report %+v", report)
		}
	}
}

func TestExtractEmptyDocumentFailsFast(t *testing.T) {
	gen := &fakeGenerator{respond: respondWith(nil)}
	o := newOrchestrator(t, gen, nil)

	for _, text := range []string{"", "  \n\t "} {
		_, err := o.Extract(context.Background(), extraction.Input{Text: text})
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", text, err)
		}
	}
	if calls := gen.called(); len(calls) != 0 {
		t.Fatalf("expected no generation calls, got %v", calls)
	}
}

func TestNewRequiresProfileTemplate(t *testing.T) {
	catalog := prompts.MustLoadBuiltin().Without(prompts.ExtractProfile)
	_, err := extraction.New(&fakeGenerator{}, catalog)
	if !errors.Is(err, services.ErrConfiguration) || !errors.Is(err, prompts.ErrTemplateNotFound) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExtractSkipsChunkWithoutOptionalTemplate(t *testing.T) {
	gen := &fakeGenerator{respond: respondWith(nil)}
	catalog := prompts.MustLoadBuiltin().Without(prompts.ExtractQualifications)
	o := newOrchestrator(t, gen, catalog)

	res, err := o.Extract(context.Background(), extraction.Input{Text: resume})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	report := res.Metadata.Chunks[2]
	if report.Status != extraction.StatusSkipped || report.Reason != extraction.ReasonTemplateMissing {
		t.Fatalf("unexpected report %+v", report)
	}
	if diff := cmp.Diff([]string{"experience", "profile"}, gen.called()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if len(res.Record.Skills) != 0 {
		t.Fatalf("expected no skills, got %+v", res.Record.Skills)
	}
}

func TestExtractSkipsChunksWithEmptySections(t *testing.T) {
	gen := &fakeGenerator{respond: respondWith(nil)}
	o := newOrchestrator(t, gen, nil)

	text := "Jane Doe\n\nEducation\nState University, BSc 2019\n"
	res, err := o.Extract(context.Background(), extraction.Input{Text: text})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff([]string{"profile"}, gen.called()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	for _, report := range res.Metadata.Chunks[1:] {
		if report.Status != extraction.StatusSkipped || report.Reason != extraction.ReasonNoSections {
			t.Fatalf("unexpected report %+v", report)
		}
	}
}

func TestExtractUsesPresegmentedSections(t *testing.T) {
	gen := &fakeGenerator{respond: respondWith(nil)}
	o := newOrchestrator(t, gen, nil)

	_, err := o.Extract(context.Background(), extraction.Input{
		Text:     resume,
		Sections: map[string]string{canonical.FieldSkills: "Go"},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff([]string{"profile", "qualifications"}, gen.called()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractReportsProgress(t *testing.T) {
	gen := &fakeGenerator{respond: respondWith(nil)}
	var (
		mu      sync.Mutex
		settled []int
		chunks  []string
	)
	o := newOrchestrator(t, gen, nil, extraction.WithProgress(func(p extraction.Progress) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, p.Settled)
		chunks = append(chunks, p.Chunk)
		if p.Total != 3 {
			t.Errorf("Total = %d, want 3", p.Total)
		}
	}))
	if _, err := o.Extract(context.Background(), extraction.Input{Text: resume}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, settled); diff != "" {
		t.Fatalf("settled mismatch (-want +got):\n%s", diff)
	}
	sort.Strings(chunks)
	if diff := cmp.Diff([]string{"experience", "profile", "qualifications"}, chunks); diff != "" {
		t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	gen := &fakeGenerator{respond: respondWith(nil)}
	o := newOrchestrator(t, gen, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Extract(ctx, extraction.Input{Text: resume})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLocateSections(t *testing.T) {
	text := `Jane Doe
## WORK EXPERIENCE:
Acme - Engineer
Built things

Technical Skills
Go, SQL
References
Available on request
Education
State University
Experience
Beta Inc - Lead
`
	got := extraction.LocateSections(text)
	want := map[string]string{
		canonical.FieldExperience: "Acme - Engineer\nBuilt things\n\nBeta Inc - Lead",
		canonical.FieldSkills:     "Go, SQL",
		canonical.FieldEducation:  "State University",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("LocateSections mismatch (-want +got):\n%s", diff)
	}
}
