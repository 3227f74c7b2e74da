package canonical

import (
	"sort"
	"strings"
)

// Alias tables map folded field names to canonical fields. The canonical
// name always comes first.
var (
	topLevelAliases = map[string][]string{
		FieldProfile:        {"profile", "contact", "contactinfo", "contactinformation", "contactdetails", "personalinfo", "personalinformation", "personaldetails", "basics", "personal"},
		FieldSummary:        {"summary", "professionalsummary", "careersummary", "objective", "careerobjective", "about", "aboutme", "overview", "bio"},
		FieldExperience:     {"experience", "workexperience", "professionalexperience", "workhistory", "employment", "employmenthistory", "positions", "jobs", "work", "career"},
		FieldEducation:      {"education", "educationhistory", "academics", "academicbackground", "academichistory", "schools"},
		FieldProjects:       {"projects", "personalprojects", "keyprojects", "selectedprojects", "sideprojects"},
		FieldSkills:         {"skills", "technicalskills", "skillset", "skillsets", "competencies", "corecompetencies", "coreskills", "expertise"},
		FieldCertifications: {"certifications", "certificates", "licenses", "licensesandcertifications", "credentials", "certs", "certification"},
		FieldPublications:   {"publications", "papers", "research", "articles", "publication"},
		FieldLanguages:      {"languages", "spokenlanguages", "languageskills", "languageproficiency"},
		FieldAwards:         {"awards", "honors", "honours", "awardsandhonors", "honorsandawards", "achievements"},
	}

	startAliases = []string{"startdate", "start", "from", "datefrom", "started", "begin"}
	endAliases   = []string{"enddate", "end", "to", "dateto", "until", "ended", "finish"}
	rangeAliases = []string{"dates", "period", "duration", "daterange", "tenure", "years"}
)

func (n *normalizer) parseProfile(f fields) Profile {
	p := Profile{
		Name:     f.text("name", "fullname"),
		Email:    f.text("email", "emailaddress", "mail"),
		Phone:    f.text("phone", "phonenumber", "mobile", "telephone", "tel", "cell"),
		Headline: f.text("headline", "currenttitle", "label", "tagline", "jobtitle", "title"),
	}
	switch loc := f.get("location", "address", "city").(type) {
	case map[string]any:
		lv := n.view(loc)
		parts := make([]string, 0, 4)
		for _, key := range []string{"city", "region", "state", "country", "countrycode"} {
			if s := lv.text(key); s != "" {
				parts = append(parts, s)
			}
		}
		p.Location = strings.Join(parts, ", ")
	default:
		p.Location = text(loc)
	}

	links := make([]string, 0, 4)
	if items, ok := f.get("links", "urls", "websites", "profiles", "socials", "sociallinks").([]any); ok {
		for _, item := range items {
			switch val := item.(type) {
			case map[string]any:
				if s := n.view(val).text("url", "link", "href"); s != "" {
					links = append(links, s)
				}
			default:
				if s := text(val); s != "" {
					links = append(links, s)
				}
			}
		}
	}
	for _, key := range []string{"linkedin", "github", "website", "portfolio", "homepage", "url"} {
		if s := f.text(key); s != "" {
			links = append(links, s)
		}
	}
	p.Links = n.uniqueStrings(links)
	return p
}

func dates(f fields) (string, string) {
	start, end := f.text(startAliases...), f.text(endAliases...)
	if start == "" && end == "" {
		if combined := f.text(rangeAliases...); combined != "" {
			return splitRange(combined)
		}
	}
	return start, end
}

func (n *normalizer) parseExperience(v any) []Experience {
	items := n.expand(objects(v, ""), []string{"roles", "positions", "titles", "jobs"}, "title")
	out := make([]Experience, 0, len(items))
	for _, item := range items {
		f := n.view(item)
		e := Experience{
			Organization: f.text("organization", "organisation", "company", "companyname", "employer", "org", "firm"),
			Title:        f.text("title", "role", "position", "jobtitle", "designation"),
			Location:     f.text("location", "city", "place"),
			Description:  f.text("description", "summary", "details", "overview"),
			Highlights:   lines(f.get("highlights", "achievements", "accomplishments", "responsibilities", "bullets", "duties")),
		}
		e.StartDate, e.EndDate = dates(f)
		out = append(out, e)
	}
	return out
}

func (n *normalizer) parseEducation(v any) []Education {
	items := n.expand(objects(v, ""), []string{"degrees", "programs", "programmes"}, "degree")
	out := make([]Education, 0, len(items))
	for _, item := range items {
		f := n.view(item)
		e := Education{
			Institution: f.text("institution", "school", "university", "college", "institute", "organization", "schoolname"),
			Degree:      f.text("degree", "qualification", "studytype", "diploma", "certificate"),
			Field:       f.text("field", "fieldofstudy", "major", "area", "discipline", "subject", "specialization"),
			Grade:       f.text("grade", "gpa", "score", "result", "classification", "honors"),
		}
		e.StartDate, e.EndDate = dates(f)
		if e.EndDate == "" {
			e.EndDate = f.text("graduationdate", "graduation", "graduationyear", "year")
		}
		out = append(out, e)
	}
	return out
}

func (n *normalizer) parseProjects(v any) []Project {
	items := objects(v, "name")
	out := make([]Project, 0, len(items))
	for _, item := range items {
		f := n.view(item)
		out = append(out, Project{
			Name:         f.text("name", "title", "projectname"),
			Description:  f.text("description", "summary", "details", "overview"),
			URL:          f.text("url", "link", "website", "repository", "repo", "github", "demo"),
			Technologies: n.uniqueStrings(terms(f.get("technologies", "techstack", "stack", "tools", "tech", "skills", "languages"))),
		})
	}
	return out
}

var (
	skillCategoryAliases = []string{"category", "name", "type", "group", "area", "title"}
	skillItemAliases     = []string{"items", "skills", "keywords", "list", "values", "technologies"}
)

// parseSkills accepts a list of groups, a flat list of skill names, a mix of
// both, a single group object, or a map of category to items.
func (n *normalizer) parseSkills(v any) []SkillGroup {
	switch val := v.(type) {
	case []any:
		out := make([]SkillGroup, 0, len(val))
		loose := -1
		for _, item := range val {
			switch entry := item.(type) {
			case map[string]any:
				f := n.view(entry)
				if items := f.get(skillItemAliases...); items != nil {
					out = append(out, SkillGroup{
						Category: f.text(skillCategoryAliases...),
						Items:    terms(items),
					})
					continue
				}
				// A single skill object such as {"name": "Go", "level": "expert"}.
				if name := f.text("name", "skill", "title"); name != "" {
					if loose < 0 {
						loose = len(out)
						out = append(out, SkillGroup{Category: "", Items: []string{}})
					}
					out[loose].Items = append(out[loose].Items, name)
				}
			default:
				names := terms(entry)
				if len(names) == 0 {
					continue
				}
				if loose < 0 {
					loose = len(out)
					out = append(out, SkillGroup{Category: "", Items: []string{}})
				}
				out[loose].Items = append(out[loose].Items, names...)
			}
		}
		return out
	case map[string]any:
		// A single group needs both a scalar category label and items;
		// otherwise every key is a category, including ones like
		// "Technologies" that double as item aliases.
		f := n.view(val)
		if items := f.get(skillItemAliases...); items != nil {
			if label, ok := f.get(skillCategoryAliases...).(string); ok && clean(label) != "" {
				return []SkillGroup{{Category: clean(label), Items: terms(items)}}
			}
		}
		categories := make([]string, 0, len(val))
		for k := range val {
			categories = append(categories, k)
		}
		sort.Strings(categories)
		out := make([]SkillGroup, 0, len(categories))
		for _, category := range categories {
			out = append(out, SkillGroup{Category: clean(category), Items: terms(val[category])})
		}
		return out
	default:
		return nil
	}
}

func (n *normalizer) parseCertifications(v any) []Certification {
	items := n.expand(objects(v, "name"), []string{"certifications", "certificates", "credentials", "items"}, "name")
	out := make([]Certification, 0, len(items))
	for _, item := range items {
		f := n.view(item)
		out = append(out, Certification{
			Name:   f.text("name", "title", "certification", "certificate", "credential"),
			Issuer: f.text("issuer", "issuingorganization", "organization", "authority", "provider", "issuedby", "by"),
			Date:   f.text("date", "issued", "issuedate", "dateissued", "year", "obtained"),
			URL:    f.text("url", "link", "credentialurl", "verification", "verificationurl"),
		})
	}
	return out
}

func (n *normalizer) parsePublications(v any) []Publication {
	items := objects(v, "title")
	out := make([]Publication, 0, len(items))
	for _, item := range items {
		f := n.view(item)
		out = append(out, Publication{
			Title: f.text("title", "name"),
			Venue: f.text("venue", "publisher", "journal", "conference", "publishedin", "publication", "source"),
			Date:  f.text("date", "year", "published", "publicationdate", "releasedate"),
			URL:   f.text("url", "link", "doi"),
		})
	}
	return out
}

func (n *normalizer) parseLanguages(v any) []Language {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Language, 0, len(list))
	for _, item := range list {
		var lang Language
		switch val := item.(type) {
		case map[string]any:
			f := n.view(val)
			lang = Language{
				Name:        f.text("name", "language"),
				Proficiency: f.text("proficiency", "level", "fluency"),
			}
		default:
			lang = splitLanguage(text(val))
		}
		if lang.Name != "" && lang.Name == strings.ToLower(lang.Name) {
			lang.Name = n.title.String(lang.Name)
		}
		out = append(out, lang)
	}
	return out
}

// splitLanguage parses "Spanish (Fluent)" and "Spanish - Fluent".
func splitLanguage(s string) Language {
	if open := strings.Index(s, "("); open > 0 && strings.HasSuffix(s, ")") {
		return Language{Name: clean(s[:open]), Proficiency: clean(s[open+1 : len(s)-1])}
	}
	for _, sep := range []string{" - ", ": ", " – "} {
		if idx := strings.Index(s, sep); idx > 0 {
			return Language{Name: clean(s[:idx]), Proficiency: clean(s[idx+len(sep):])}
		}
	}
	return Language{Name: clean(s)}
}

func (n *normalizer) parseAwards(v any) []Award {
	items := objects(v, "title")
	out := make([]Award, 0, len(items))
	for _, item := range items {
		f := n.view(item)
		out = append(out, Award{
			Title:  f.text("title", "name", "award"),
			Issuer: f.text("issuer", "awarder", "organization", "by", "from"),
			Date:   f.text("date", "year", "awarded"),
		})
	}
	return out
}
