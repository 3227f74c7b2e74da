package prompts_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vitae/internal/prompts"
	"vitae/internal/services"
)

func TestBuiltinCatalog(t *testing.T) {
	c, err := prompts.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, name := range []string{prompts.ExtractProfile, prompts.ExtractExperience, prompts.ExtractQualifications} {
		tpl, err := c.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if tpl.Source != "builtin" || tpl.Version == "" {
			t.Fatalf("unexpected template metadata %+v", tpl)
		}
		rendered := tpl.Render("RESUME TEXT")
		if strings.Contains(rendered, prompts.Placeholder) || !strings.Contains(rendered, "RESUME TEXT") {
			t.Fatalf("Render(%q) did not substitute document", name)
		}
	}
	if got := len(c.List()); got != 3 {
		t.Fatalf("List returned %d templates, want 3", got)
	}
}

func TestLookupUnknownTemplate(t *testing.T) {
	c := prompts.MustLoadBuiltin()
	_, err := c.Lookup("extract_hobbies")
	if !errors.Is(err, prompts.ErrTemplateNotFound) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if c.Without(prompts.ExtractProfile).Has(prompts.ExtractProfile) {
		t.Fatal("Without kept removed template")
	}
	if !c.Has(prompts.ExtractProfile) {
		t.Fatal("Without mutated the source catalog")
	}
}

func TestLoadDirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	override := `templates:
  - name: extract_profile
    version: "9"
    body: "Custom {{document}}"
  - name: extract_hobbies
    body: "Hobbies in {{document}}"
`
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	c, err := prompts.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tpl, err := c.Lookup(prompts.ExtractProfile)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if tpl.Version != "9" || tpl.Render("x") != "Custom x" {
		t.Fatalf("override not applied: %+v", tpl)
	}
	hobbies, err := c.Lookup("extract_hobbies")
	if err != nil {
		t.Fatalf("Lookup added template: %v", err)
	}
	if hobbies.Version != "1" {
		t.Fatalf("default version = %q, want 1", hobbies.Version)
	}
	if !c.Has(prompts.ExtractExperience) {
		t.Fatal("builtin templates should remain")
	}
}

func TestLoadRejectsInvalidTemplates(t *testing.T) {
	tests := map[string]string{
		"missing placeholder":  "templates:\n  - name: a\n    body: no placeholder\n",
		"repeated placeholder": "templates:\n  - name: a\n    body: \"{{document}} {{document}}\"\n",
		"missing name":         "templates:\n  - body: \"{{document}}\"\n",
		"malformed yaml":       "templates: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "bad.yml"), []byte(content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := prompts.Load(dir)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
	if _, err := prompts.Load(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing dir: expected configuration error, got %v", err)
	}
}
