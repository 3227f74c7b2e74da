package extraction

import (
	"strings"
	"unicode"

	"vitae/internal/canonical"
)

// sectionHeaders lists the header variants that open each section.
var sectionHeaders = map[string][]string{
	canonical.FieldSummary: {
		"summary", "professional summary", "career summary", "profile", "professional profile",
		"objective", "career objective", "about", "about me", "overview",
	},
	canonical.FieldExperience: {
		"experience", "work experience", "professional experience", "employment",
		"employment history", "work history", "career history", "relevant experience",
	},
	canonical.FieldEducation: {
		"education", "academic background", "academics", "education and training", "qualifications",
	},
	canonical.FieldProjects: {
		"projects", "personal projects", "key projects", "selected projects", "side projects",
	},
	canonical.FieldSkills: {
		"skills", "technical skills", "core skills", "key skills", "competencies",
		"core competencies", "technologies", "tools and technologies",
	},
	canonical.FieldCertifications: {
		"certifications", "certificates", "licenses", "licenses and certifications",
		"licenses & certifications", "credentials",
	},
	canonical.FieldPublications: {
		"publications", "papers", "research", "selected publications",
	},
	canonical.FieldLanguages: {
		"languages", "spoken languages", "language skills",
	},
	canonical.FieldAwards: {
		"awards", "honors", "honours", "awards and honors", "honors and awards", "achievements",
	},
}

// sectionTerminators are headers that end a section without opening one
// the extractor cares about.
var sectionTerminators = []string{
	"references", "interests", "hobbies", "hobbies and interests", "volunteer",
	"volunteering", "volunteer experience", "activities", "extracurricular activities",
	"contact", "contact information", "personal details", "additional information",
	"memberships", "affiliations", "courses", "training",
}

var (
	openers = buildOpeners()
	closers = buildClosers()
)

func buildOpeners() map[string]string {
	out := make(map[string]string)
	for section, variants := range sectionHeaders {
		for _, v := range variants {
			out[v] = section
		}
	}
	return out
}

func buildClosers() map[string]struct{} {
	out := make(map[string]struct{})
	for h := range openers {
		out[h] = struct{}{}
	}
	for _, h := range sectionTerminators {
		out[h] = struct{}{}
	}
	return out
}

// headerKey reduces a line to its header comparison form, or "" when the
// line is too long to be a header.
func headerKey(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > 60 {
		return ""
	}
	line = strings.TrimLeft(line, "#*=-_• \t")
	line = strings.TrimRight(line, ":*=-_ \t")
	fields := strings.FieldsFunc(strings.ToLower(line), func(r rune) bool {
		return unicode.IsSpace(r) || r == '|'
	})
	if len(fields) == 0 || len(fields) > 5 {
		return ""
	}
	return strings.Join(fields, " ")
}

// LocateSections splits text into named sections by header lines. A section
// starts at a line matching one of its header variants and runs until the
// next recognized header of any kind, or the end of the text. Sections that
// appear more than once are concatenated. Keys are canonical field names.
func LocateSections(text string) map[string]string {
	out := make(map[string]string)
	var (
		current string
		body    []string
	)
	flush := func() {
		if current == "" {
			return
		}
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if prev, ok := out[current]; ok && prev != "" {
			if content != "" {
				content = prev + "\n\n" + content
			} else {
				content = prev
			}
		}
		out[current] = content
	}

	for _, line := range strings.Split(text, "\n") {
		key := headerKey(line)
		if section, ok := openers[key]; ok {
			flush()
			current, body = section, nil
			continue
		}
		if _, ok := closers[key]; ok {
			flush()
			current, body = "", nil
			continue
		}
		if current != "" {
			body = append(body, line)
		}
	}
	flush()
	return out
}
