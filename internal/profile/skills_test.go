package profile

import (
	"math"
	"slices"
	"testing"
)

var knownSkills = []string{
	"Python", "JavaScript", "Java", "C++", "C#", "Go", "React", "Vuejs", "Nodejs",
	"SQL", "PostgreSQL", "MySQL", "Git", "Docker", "Kubernetes", "AWS", "Google Cloud", "CI/CD",
}

func TestTokenSetRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b   string
		expect float64
	}{
		{a: "python", b: "python", expect: 100},
		{a: "google", b: "google cloud", expect: 100},
		{a: "node.js", b: "nodejs", expect: 92.31},
		{a: "postgres", b: "postgresql", expect: 88.89},
		{a: "elasticsearch", b: "elastiksearsh", expect: 84.62},
		{a: "java", b: "javascript", expect: 57.14},
		{a: "", b: "go", expect: 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			t.Parallel()
			if got := TokenSetRatio(tt.a, tt.b); math.Abs(got-tt.expect) > 0.01 {
				t.Fatalf("expected %.2f, got %.2f", tt.expect, got)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	n := NewSkillNormalizer(knownSkills, 85)

	text := "Built services in Go and python on AWS. Used PostgreSQL, Docker and CI/CD. Good at C++."
	got := n.Normalize(text, []string{"Node.js", "Postgres", "Rust", "kubernetes (k8s)"})

	expect := []string{"AWS", "C++", "CI/CD", "Docker", "Go", "Kubernetes", "Nodejs", "PostgreSQL", "Python"}
	if !slices.Equal(got, expect) {
		t.Fatalf("expected %v, got %v", expect, got)
	}
}

func TestNormalizeIgnoresPartialWords(t *testing.T) {
	n := NewSkillNormalizer(knownSkills, 85)

	got := n.Normalize("Good with GitHub and MySQL; going to learn more.", nil)
	if !slices.Equal(got, []string{"MySQL"}) {
		t.Fatalf("expected only MySQL, got %v", got)
	}
}

func TestMatchThreshold(t *testing.T) {
	n := NewSkillNormalizer(knownSkills, 0)
	if _, ok := n.Match("Javanese"); ok {
		t.Fatalf("Javanese must not match any skill")
	}
	if skill, ok := n.Match(" REACT "); !ok || skill != "React" {
		t.Fatalf("expected React, got %q %v", skill, ok)
	}
}

func TestMatchDoesNotRoundUpToThreshold(t *testing.T) {
	n := NewSkillNormalizer([]string{"Elasticsearch"}, 85)
	if skill, ok := n.Match("elastiksearsh"); ok {
		t.Fatalf("a score of 84.6 must stay below 85, matched %q", skill)
	}
	if skill, ok := NewSkillNormalizer([]string{"Elasticsearch"}, 84).Match("elastiksearsh"); !ok || skill != "Elasticsearch" {
		t.Fatalf("expected Elasticsearch at threshold 84, got %q %v", skill, ok)
	}
}
