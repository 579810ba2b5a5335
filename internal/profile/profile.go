// Package profile turns sanitized CV text into a CandidateProfile by asking an
// LLM for JSON and recovering that JSON from whatever the model replies.
package profile

import "strings"

// ApplyFor is the position the candidate targets.
type ApplyFor struct {
	JobTitle string `json:"job_title" mapstructure:"job_title"`
}

// Experience is one job, most recent first within a profile.
type Experience struct {
	JobTitle    string `json:"job_title" mapstructure:"job_title"`
	Company     string `json:"company" mapstructure:"company"`
	Description string `json:"description" mapstructure:"description"`
}

// CandidateProfile is the structured CV. Absent values are empty strings or
// empty slices, never nil. Error is set only on the sentinel returned when
// extraction could not run at all.
type CandidateProfile struct {
	Summary        string       `json:"summary" mapstructure:"summary"`
	ApplyFor       ApplyFor     `json:"apply_for" mapstructure:"apply_for"`
	Skills         []string     `json:"skills" mapstructure:"skills"`
	Languages      []string     `json:"languages" mapstructure:"languages"`
	Experiences    []Experience `json:"experiences" mapstructure:"experiences"`
	Certifications []string     `json:"certifications" mapstructure:"certifications"`
	Error          string       `json:"error,omitempty" mapstructure:"-"`
}

// Empty returns a valid profile with every field empty.
func Empty() *CandidateProfile {
	p := &CandidateProfile{}
	p.normalize()
	return p
}

// Failed returns the error sentinel profile.
func Failed(message string) *CandidateProfile {
	p := Empty()
	p.Error = message
	return p
}

// IsEmpty reports whether no field carries data.
func (p *CandidateProfile) IsEmpty() bool {
	return p.Summary == "" && p.ApplyFor.JobTitle == "" && len(p.Skills) == 0 &&
		len(p.Languages) == 0 && len(p.Experiences) == 0 && len(p.Certifications) == 0
}

func (p *CandidateProfile) normalize() {
	p.Summary = strings.TrimSpace(p.Summary)
	p.ApplyFor.JobTitle = strings.TrimSpace(p.ApplyFor.JobTitle)
	p.Skills = cleanList(p.Skills)
	p.Languages = cleanList(p.Languages)
	p.Certifications = cleanList(p.Certifications)

	experiences := make([]Experience, 0, len(p.Experiences))
	for _, e := range p.Experiences {
		e.JobTitle = strings.TrimSpace(e.JobTitle)
		e.Company = strings.TrimSpace(e.Company)
		e.Description = strings.TrimSpace(e.Description)
		if e == (Experience{}) {
			continue
		}
		experiences = append(experiences, e)
	}
	p.Experiences = experiences
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
