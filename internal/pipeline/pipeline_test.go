package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-intake/internal/anonymize"
	"github.com/spigell/cv-intake/internal/profile"
)

type termRecognizer map[string]anonymize.Category

func (r termRecognizer) Name() string { return "terms" }

func (r termRecognizer) Recognize(_ context.Context, text string) ([]anonymize.Span, error) {
	var spans []anonymize.Span
	for term, c := range r {
		offset := 0
		for {
			i := strings.Index(text[offset:], term)
			if i < 0 {
				break
			}
			start := offset + i
			spans = append(spans, anonymize.Span{Start: start, End: start + len(term), Category: c})
			offset = start + len(term)
		}
	}
	return spans, nil
}

type fakeExtractor struct {
	got     string
	profile *profile.CandidateProfile
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, sanitized string) (*profile.CandidateProfile, error) {
	f.got = sanitized
	return f.profile, f.err
}

func newTestPipeline(t *testing.T, log *zap.Logger, extractor *fakeExtractor) *Pipeline {
	t.Helper()

	redactor, err := anonymize.NewRedactor(nil, termRecognizer{
		"John Smith": anonymize.CategoryPerson,
		"Docker":     anonymize.CategoryOrganization,
	})
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}

	return New(log,
		NewAnonymize(redactor),
		NewWhitelist(anonymize.NewWhitelist("Docker")),
		NewExtract(extractor),
		NewSkills(profile.NewSkillNormalizer([]string{"Docker", "Python"}, 0)),
		NewLeakCheck(log),
	)
}

func TestRunSanitizesBeforeExtraction(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{profile: &profile.CandidateProfile{
		Summary: "«PERSON_1» builds images",
		Skills:  []string{"docker"},
	}}
	p := newTestPipeline(t, nil, extractor)

	state, err := p.Run(context.Background(), "John Smith ships Docker images with Python")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	expected := "«PERSON_1» ships Docker images with Python"
	if extractor.got != expected {
		t.Fatalf("expected extractor to receive %q, got %q", expected, extractor.got)
	}
	if state.Text != expected {
		t.Fatalf("expected state text %q, got %q", expected, state.Text)
	}
	if state.Map.Len() != 1 {
		t.Fatalf("expected one remaining placeholder, got %d", state.Map.Len())
	}
	if !reflect.DeepEqual(state.Profile.Skills, []string{"Docker", "Python"}) {
		t.Fatalf("unexpected skills: %v", state.Profile.Skills)
	}
	if len(state.Leaks) != 0 {
		t.Fatalf("expected no leaks, got %v", state.Leaks)
	}
}

func TestRunReportsLeaks(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	extractor := &fakeExtractor{profile: &profile.CandidateProfile{Summary: "John Smith, engineer"}}
	p := newTestPipeline(t, zap.New(core), extractor)

	state, err := p.Run(context.Background(), "John Smith ships Docker images")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !reflect.DeepEqual(state.Leaks, []string{"«PERSON_1»"}) {
		t.Fatalf("unexpected leaks: %v", state.Leaks)
	}
	if state.Profile.Summary != "John Smith, engineer" {
		t.Fatalf("expected profile to be returned as is, got %q", state.Profile.Summary)
	}

	entries := logs.FilterMessageSnippet("pii leak").All()
	if len(entries) != 1 {
		t.Fatalf("expected one leak warning, got %d", len(entries))
	}
	for _, f := range entries[0].Context {
		if strings.Contains(f.String, "John") {
			t.Fatalf("leak warning must not carry the original value: %v", f)
		}
	}
}

func TestRunExtractionFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("all models down")
	p := newTestPipeline(t, nil, &fakeExtractor{err: boom})

	state, err := p.Run(context.Background(), "John Smith")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped extractor error, got %v", err)
	}
	if state.Profile == nil || state.Profile.Error != ExtractionFailedMessage {
		t.Fatalf("expected sentinel profile, got %+v", state.Profile)
	}
}

func TestSkillsStepSkipsErrorProfiles(t *testing.T) {
	t.Parallel()

	step := NewSkills(profile.NewSkillNormalizer([]string{"Go"}, 0))
	state := &State{Text: "Go", Map: anonymize.NewMap(), Profile: profile.Failed("x")}

	stats, err := step.Apply(context.Background(), state)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if stats["skipped"] != 1 || len(state.Profile.Skills) != 0 {
		t.Fatalf("expected skills step to skip, got stats %v skills %v", stats, state.Profile.Skills)
	}
}

func TestDisableByName(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{profile: &profile.CandidateProfile{Skills: []string{"golang", "Docker"}}}
	redactor, err := anonymize.NewRedactor(nil, termRecognizer{})
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}
	steps := []Step{
		NewAnonymize(redactor),
		NewExtract(extractor),
		NewSkills(profile.NewSkillNormalizer([]string{"Go"}, 0)),
	}
	DisableByName(steps, StepSkills, "turned off")
	DisableByName(steps, StepExtract, "cannot be disabled")

	p := New(nil, steps...)
	state, err := p.Run(context.Background(), "text")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(state.Profile.Skills, []string{"golang", "Docker"}) {
		t.Fatalf("expected untouched skills, got %v", state.Profile.Skills)
	}

	expected := []Status{
		{Name: StepAnonymize, Enabled: true},
		{Name: StepExtract, Enabled: true},
		{Name: StepSkills, Enabled: false, Reason: "turned off"},
	}
	if got := p.Describe(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %+v, got %+v", expected, got)
	}
}

func TestValidateRejectsMissingDependencies(t *testing.T) {
	t.Parallel()

	p := New(nil, NewExtract(nil))
	if _, err := p.Run(context.Background(), "text"); err == nil || !strings.Contains(err.Error(), StepExtract) {
		t.Fatalf("expected validation error naming the step, got %v", err)
	}
}

func TestFindLeaksMatchesUnescapedText(t *testing.T) {
	t.Parallel()

	redactor, err := anonymize.NewRedactor(nil, termRecognizer{`O"Brien & Co`: anonymize.CategoryOrganization})
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}
	_, m, err := redactor.Redact(context.Background(), `Worked at O"Brien & Co`)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	p := &profile.CandidateProfile{Experiences: []profile.Experience{{Company: `O"Brien & Co`}}}
	leaks, err := FindLeaks(p, m)
	if err != nil {
		t.Fatalf("find leaks: %v", err)
	}
	if !reflect.DeepEqual(leaks, []string{"«ORG_1»"}) {
		t.Fatalf("unexpected leaks: %v", leaks)
	}
}
