package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"vitae/internal/services"
)

// Placeholder is replaced with the document text when a template renders.
const Placeholder = "{{document}}"

// Names of the built-in templates.
const (
	ExtractProfile        = "extract_profile"
	ExtractExperience     = "extract_experience"
	ExtractQualifications = "extract_qualifications"
)

// ErrTemplateNotFound reports a lookup of an unknown template name.
var ErrTemplateNotFound = errors.New("template not found")

//go:embed catalog.yaml
var builtinCatalog []byte

// Template is one named extraction prompt.
type Template struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Body        string `yaml:"body"`
	// Source is "builtin" or the file the template was loaded from.
	Source string `yaml:"-"`
}

// Render substitutes the document text for the placeholder.
func (t Template) Render(document string) string {
	return strings.ReplaceAll(t.Body, Placeholder, document)
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// Catalog is an immutable set of templates keyed by name.
type Catalog struct {
	templates map[string]Template
}

// Load returns the built-in catalog, with templates from dir layered on top
// when dir is non-empty. Every *.yaml and *.yml file in dir is read in name
// order; a later template replaces an earlier one with the same name.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]Template)}
	if err := c.add(builtinCatalog, "builtin"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return c, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "prompts", "read template dir", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "prompts", "read template file", path, err)
		}
		if err := c.add(data, path); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustLoadBuiltin returns the embedded catalog. It panics if the embedded
// YAML is malformed.
func MustLoadBuiltin() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("prompts: builtin catalog: %v", err))
	}
	return c
}

func (c *Catalog) add(data []byte, source string) error {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return services.Wrap(services.ErrConfiguration, "prompts", "parse catalog", source, err)
	}
	for _, tpl := range file.Templates {
		tpl.Name = strings.TrimSpace(tpl.Name)
		tpl.Version = strings.TrimSpace(tpl.Version)
		if tpl.Name == "" {
			return services.Wrap(services.ErrConfiguration, "prompts", "parse catalog", source+": template without name", nil)
		}
		if n := strings.Count(tpl.Body, Placeholder); n != 1 {
			return services.Wrap(services.ErrConfiguration, "prompts", "parse catalog",
				fmt.Sprintf("%s: template %q must contain %s exactly once (found %d)", source, tpl.Name, Placeholder, n), nil)
		}
		if tpl.Version == "" {
			tpl.Version = "1"
		}
		tpl.Source = source
		c.templates[tpl.Name] = tpl
	}
	return nil
}

// Lookup returns the named template. Unknown names yield an error matching
// both ErrTemplateNotFound and services.ErrNotFound.
func (c *Catalog) Lookup(name string) (Template, error) {
	if c != nil {
		if tpl, ok := c.templates[name]; ok {
			return tpl, nil
		}
	}
	return Template{}, services.Wrap(services.ErrNotFound, "prompts", "lookup", name, ErrTemplateNotFound)
}

// Has reports whether the catalog holds the named template.
func (c *Catalog) Has(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.templates[name]
	return ok
}

// List returns every template sorted by name.
func (c *Catalog) List() []Template {
	if c == nil {
		return nil
	}
	out := make([]Template, 0, len(c.templates))
	for _, tpl := range c.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Without returns a copy of the catalog lacking the named templates.
func (c *Catalog) Without(names ...string) *Catalog {
	out := &Catalog{templates: make(map[string]Template, len(c.templates))}
	for name, tpl := range c.templates {
		out.templates[name] = tpl
	}
	for _, name := range names {
		delete(out.templates, name)
	}
	return out
}
