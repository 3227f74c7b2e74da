package canonical

// Canonicalize merges raw fragments, in order, into one Record. Blank values
// become absence, alternate field names fold onto canonical ones, grouped and
// flat list shapes are flattened, implausible entries are dropped, and
// duplicate entries are merged. The result has every list non-nil and is a
// fixed point: Canonicalize(r.Fragment()) == r.
func Canonicalize(fragments ...map[string]any) Record {
	n := newNormalizer()
	acc := newAccumulator(n)
	for _, fragment := range fragments {
		pruned, ok := prune(fragment).(map[string]any)
		if !ok {
			continue
		}
		acc.add(filter(n.parseFragment(pruned)))
	}
	return acc.record()
}

// Normalize re-canonicalizes a record. It is a no-op for canonical records.
func Normalize(r Record) Record {
	return Canonicalize(r.Fragment())
}

func (n *normalizer) parseFragment(m map[string]any) Record {
	top := n.view(m)
	var r Record

	var profileView fields
	if obj, ok := top.get(topLevelAliases[FieldProfile]...).(map[string]any); ok {
		profileView = n.view(obj)
		r.Profile = n.parseProfile(profileView)
	}
	// Contact details are often emitted at the top level.
	r.Profile = mergeProfile(n, r.Profile, n.parseProfile(top))

	r.Summary = top.text(topLevelAliases[FieldSummary]...)
	if r.Summary == "" && profileView != nil {
		r.Summary = profileView.text(topLevelAliases[FieldSummary]...)
	}

	r.Experience = n.parseExperience(top.get(topLevelAliases[FieldExperience]...))
	r.Education = n.parseEducation(top.get(topLevelAliases[FieldEducation]...))
	r.Projects = n.parseProjects(top.get(topLevelAliases[FieldProjects]...))
	r.Skills = n.parseSkills(top.get(topLevelAliases[FieldSkills]...))
	r.Certifications = n.parseCertifications(top.get(topLevelAliases[FieldCertifications]...))
	r.Publications = n.parsePublications(top.get(topLevelAliases[FieldPublications]...))
	r.Languages = n.parseLanguages(top.get(topLevelAliases[FieldLanguages]...))
	r.Awards = n.parseAwards(top.get(topLevelAliases[FieldAwards]...))
	return r
}

type keyed[T any] struct {
	items []T
	index map[string]int
}

func (k *keyed[T]) add(key string, item T, merge func(dst *T, src T)) {
	if k.index == nil {
		k.index = make(map[string]int)
	}
	if i, ok := k.index[key]; ok {
		merge(&k.items[i], item)
		return
	}
	k.index[key] = len(k.items)
	k.items = append(k.items, item)
}

func (k *keyed[T]) list() []T {
	if k.items == nil {
		return []T{}
	}
	return k.items
}

// accumulator merges fragments in arrival order: scalars keep the first
// non-empty value, list entries append and collapse on identity.
type accumulator struct {
	n              *normalizer
	profile        Profile
	summary        string
	experience     keyed[Experience]
	education      keyed[Education]
	projects       keyed[Project]
	skills         keyed[SkillGroup]
	certifications keyed[Certification]
	publications   keyed[Publication]
	languages      keyed[Language]
	awards         keyed[Award]
}

func newAccumulator(n *normalizer) *accumulator {
	return &accumulator{n: n}
}

func (a *accumulator) add(r Record) {
	n := a.n
	a.profile = mergeProfile(n, a.profile, r.Profile)
	fill(&a.summary, r.Summary)

	for _, e := range r.Experience {
		a.experience.add(n.identity(e.Organization, e.Title, e.StartDate), e, func(dst *Experience, src Experience) {
			fill(&dst.Location, src.Location)
			fill(&dst.StartDate, src.StartDate)
			fill(&dst.EndDate, src.EndDate)
			fill(&dst.Description, src.Description)
			dst.Highlights = n.uniqueStrings(append(dst.Highlights, src.Highlights...))
		})
	}
	for _, e := range r.Education {
		a.education.add(n.identity(e.Institution, e.Degree), e, func(dst *Education, src Education) {
			fill(&dst.Field, src.Field)
			fill(&dst.StartDate, src.StartDate)
			fill(&dst.EndDate, src.EndDate)
			fill(&dst.Grade, src.Grade)
		})
	}
	for _, p := range r.Projects {
		a.projects.add(n.identity(p.Name), p, func(dst *Project, src Project) {
			fill(&dst.Description, src.Description)
			fill(&dst.URL, src.URL)
			dst.Technologies = n.uniqueStrings(append(dst.Technologies, src.Technologies...))
		})
	}
	for _, g := range r.Skills {
		g.Items = n.uniqueStrings(g.Items)
		a.skills.add(n.identity(g.Category), g, func(dst *SkillGroup, src SkillGroup) {
			dst.Items = n.uniqueStrings(append(dst.Items, src.Items...))
		})
	}
	for _, c := range r.Certifications {
		a.certifications.add(n.identity(c.Name, c.Issuer), c, func(dst *Certification, src Certification) {
			fill(&dst.Date, src.Date)
			fill(&dst.URL, src.URL)
		})
	}
	for _, p := range r.Publications {
		a.publications.add(n.identity(p.Title, p.Venue), p, func(dst *Publication, src Publication) {
			fill(&dst.Date, src.Date)
			fill(&dst.URL, src.URL)
		})
	}
	for _, l := range r.Languages {
		a.languages.add(n.identity(l.Name), l, func(dst *Language, src Language) {
			fill(&dst.Proficiency, src.Proficiency)
		})
	}
	for _, aw := range r.Awards {
		a.awards.add(n.identity(aw.Title, aw.Issuer), aw, func(dst *Award, src Award) {
			fill(&dst.Date, src.Date)
		})
	}
}

func (a *accumulator) record() Record {
	r := Record{
		Profile:        a.profile,
		Summary:        a.summary,
		Experience:     a.experience.list(),
		Education:      a.education.list(),
		Projects:       a.projects.list(),
		Skills:         a.skills.list(),
		Certifications: a.certifications.list(),
		Publications:   a.publications.list(),
		Languages:      a.languages.list(),
		Awards:         a.awards.list(),
	}
	if r.Profile.Links == nil {
		r.Profile.Links = []string{}
	}
	for i := range r.Experience {
		if r.Experience[i].Highlights == nil {
			r.Experience[i].Highlights = []string{}
		}
	}
	for i := range r.Projects {
		if r.Projects[i].Technologies == nil {
			r.Projects[i].Technologies = []string{}
		}
	}
	for i := range r.Skills {
		if r.Skills[i].Items == nil {
			r.Skills[i].Items = []string{}
		}
	}
	return r
}

func mergeProfile(n *normalizer, dst, src Profile) Profile {
	fill(&dst.Name, src.Name)
	fill(&dst.Email, src.Email)
	fill(&dst.Phone, src.Phone)
	fill(&dst.Location, src.Location)
	fill(&dst.Headline, src.Headline)
	if len(src.Links) > 0 {
		dst.Links = n.uniqueStrings(append(dst.Links, src.Links...))
	}
	return dst
}

func fill(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}
