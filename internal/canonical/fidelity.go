package canonical

import "regexp"

var (
	// Generators file course and side projects under certifications.
	projectPattern = regexp.MustCompile(`(?i)\b(projects?|capstone|hackathons?|coursework|assignments?)\b`)
	// Project management credentials are real certifications.
	projectExemptPattern = regexp.MustCompile(`(?i)\bproject\s+manage`)
	// Code and demo hosts are project links, never publication venues.
	hostingVenuePattern = regexp.MustCompile(`(?i)(github|gitlab|bitbucket|vercel|netlify|heroku|demo)`)
)

// filter drops entries that fail plausibility checks. Each entry is judged
// on its own.
func filter(r Record) Record {
	r.Experience = keep(r.Experience, func(e Experience) bool {
		return e.Organization != "" && e.Title != ""
	})
	r.Education = keep(r.Education, func(e Education) bool {
		return e.Institution != ""
	})
	r.Projects = keep(r.Projects, func(p Project) bool {
		return p.Name != ""
	})
	r.Skills = keep(r.Skills, func(g SkillGroup) bool {
		return len(g.Items) > 0
	})
	r.Certifications = keep(r.Certifications, func(c Certification) bool {
		return c.Name != "" && !looksLikeProject(c.Name) && !looksLikeProject(c.Issuer)
	})
	r.Publications = keep(r.Publications, func(p Publication) bool {
		return p.Title != "" && p.Venue != "" && !hostingVenuePattern.MatchString(p.Venue)
	})
	r.Languages = keep(r.Languages, func(l Language) bool {
		return l.Name != ""
	})
	r.Awards = keep(r.Awards, func(a Award) bool {
		return a.Title != ""
	})
	return r
}

func looksLikeProject(s string) bool {
	return projectPattern.MatchString(s) && !projectExemptPattern.MatchString(s)
}

func keep[T any](items []T, ok func(T) bool) []T {
	out := items[:0:0]
	for _, item := range items {
		if ok(item) {
			out = append(out, item)
		}
	}
	return out
}
