// Package pipeline runs the CV intake steps (redaction, whitelist restore,
// profile extraction, skill normalization, leak check) over extracted text.
package pipeline

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/anonymize"
	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/profile"
)

// Step is a single stage applied to the intake state.
type Step interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, s *State) (Stats, error)
}

// State is threaded through the steps of one run.
type State struct {
	// Source is the extracted document text. It is never sent to an LLM.
	Source string
	// Text is the sanitized text once the anonymize step ran.
	Text string
	// Map holds the placeholders still redacted in Text.
	Map     *anonymize.Map
	Profile *profile.CandidateProfile
	// Leaks lists placeholders whose originals reappeared in Profile.
	Leaks []string
}

// Stats are step counters reported in the step log line.
type Stats map[string]int

// Status represents runtime information about a step.
type Status struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// Pipeline is immutable after New and safe for concurrent runs.
type Pipeline struct {
	steps  []Step
	logger *zap.Logger
}

// New creates a pipeline from ordered steps.
func New(log *zap.Logger, steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, logger: logger.OrNop(log)}
}

// DisableByName marks a step with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Step, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Validate checks every enabled step.
func (p *Pipeline) Validate() error {
	for _, step := range p.steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}

// Run executes the enabled steps in order on text. On error the partial state
// is returned together with the error of the failing step.
func (p *Pipeline) Run(ctx context.Context, text string) (*State, error) {
	s := &State{Source: text, Text: text, Map: anonymize.NewMap()}

	if err := p.Validate(); err != nil {
		return s, err
	}

	for _, step := range p.steps {
		if !step.IsEnabled() {
			p.logger.Debug("pipeline step disabled", zap.String("name", step.Name()))
			continue
		}

		stats, err := step.Apply(ctx, s)
		if err != nil {
			return s, fmt.Errorf("%s: %w", step.Name(), err)
		}

		fields := []zap.Field{zap.String("name", step.Name())}
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, zap.Int(k, stats[k]))
		}
		p.logger.Info("pipeline step", fields...)
	}

	if s.Profile == nil {
		s.Profile = profile.Empty()
	}

	return s, nil
}

// Describe returns status entries for the configured steps.
func (p *Pipeline) Describe() []Status {
	statuses := make([]Status, 0, len(p.steps))
	for _, step := range p.steps {
		status := Status{Name: step.Name(), Enabled: step.IsEnabled()}
		if r, ok := step.(interface{ Reason() string }); ok {
			status.Reason = r.Reason()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// toggle carries the enable state shared by all steps.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

func (t *toggle) Reason() string { return t.reason }
