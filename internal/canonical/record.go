package canonical

import "encoding/json"

// Profile holds identity and contact details.
type Profile struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	Location string   `json:"location"`
	Headline string   `json:"headline"`
	Links    []string `json:"links"`
}

// Experience is one role held at one organization.
type Experience struct {
	Organization string   `json:"organization"`
	Title        string   `json:"title"`
	Location     string   `json:"location"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Description  string   `json:"description"`
	Highlights   []string `json:"highlights"`
}

type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Grade       string `json:"grade"`
}

type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	URL          string   `json:"url"`
	Technologies []string `json:"technologies"`
}

// SkillGroup is a named category of skills. Uncategorized skills use an
// empty category.
type SkillGroup struct {
	Category string   `json:"category"`
	Items    []string `json:"items"`
}

type Certification struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer"`
	Date   string `json:"date"`
	URL    string `json:"url"`
}

type Publication struct {
	Title string `json:"title"`
	Venue string `json:"venue"`
	Date  string `json:"date"`
	URL   string `json:"url"`
}

type Language struct {
	Name        string `json:"name"`
	Proficiency string `json:"proficiency"`
}

type Award struct {
	Title  string `json:"title"`
	Issuer string `json:"issuer"`
	Date   string `json:"date"`
}

// Record is the canonical extraction result. After Canonicalize every list
// is non-nil and every scalar is a plain string.
type Record struct {
	Profile        Profile         `json:"profile"`
	Summary        string          `json:"summary"`
	Experience     []Experience    `json:"experience"`
	Education      []Education     `json:"education"`
	Projects       []Project       `json:"projects"`
	Skills         []SkillGroup    `json:"skills"`
	Certifications []Certification `json:"certifications"`
	Publications   []Publication   `json:"publications"`
	Languages      []Language      `json:"languages"`
	Awards         []Award         `json:"awards"`
}

// Field names of the record's top level, in declaration order.
const (
	FieldProfile        = "profile"
	FieldSummary        = "summary"
	FieldExperience     = "experience"
	FieldEducation      = "education"
	FieldProjects       = "projects"
	FieldSkills         = "skills"
	FieldCertifications = "certifications"
	FieldPublications   = "publications"
	FieldLanguages      = "languages"
	FieldAwards         = "awards"
)

// Fields lists every top-level field name.
var Fields = []string{
	FieldProfile,
	FieldSummary,
	FieldExperience,
	FieldEducation,
	FieldProjects,
	FieldSkills,
	FieldCertifications,
	FieldPublications,
	FieldLanguages,
	FieldAwards,
}

// Fragment renders the record as a generic field map using canonical names.
// Canonicalize(r.Fragment()) returns r for any canonical r.
func (r Record) Fragment() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// FieldsFound counts top-level fields carrying data: a non-empty list, a
// non-empty summary, or a profile with any populated attribute.
func (r Record) FieldsFound() int {
	count := 0
	if !r.Profile.empty() {
		count++
	}
	if r.Summary != "" {
		count++
	}
	for _, n := range []int{
		len(r.Experience), len(r.Education), len(r.Projects), len(r.Skills),
		len(r.Certifications), len(r.Publications), len(r.Languages), len(r.Awards),
	} {
		if n > 0 {
			count++
		}
	}
	return count
}

func (p Profile) empty() bool {
	return p.Name == "" && p.Email == "" && p.Phone == "" && p.Location == "" &&
		p.Headline == "" && len(p.Links) == 0
}
