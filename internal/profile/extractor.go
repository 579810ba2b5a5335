package profile

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

type completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor runs the CV parsing prompt through an LLM.
type Extractor struct {
	llm       completer
	logger    *zap.Logger
	maxLogLen int
}

// NewExtractor creates an Extractor.
func NewExtractor(llm completer, log *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Extractor{llm: llm, logger: logger.OrNop(log), maxLogLen: maxLogLength}
}

// BuildPrompt embeds sanitized CV text into the parsing instructions.
func BuildPrompt(sanitized string) string {
	return strings.ReplaceAll(promptTemplate, "{{CV_TEXT}}", sanitized)
}

// Extract asks the model for a profile. A reply without usable JSON yields an
// empty profile and no error; only a failed LLM call is returned as an error.
func (e *Extractor) Extract(ctx context.Context, sanitized string) (*CandidateProfile, error) {
	if e.llm == nil {
		return nil, errors.New("extractor has no llm")
	}

	prompt := BuildPrompt(sanitized)
	e.logger.Debug("profile extraction request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	raw, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("complete profile prompt: %w", err)
	}

	p, err := Parse(raw)
	if err != nil {
		e.logger.Warn("model returned malformed profile, using empty profile",
			zap.Error(err),
			zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
		)
		return Empty(), nil
	}

	e.logger.Debug("profile extracted",
		zap.Int("skills", len(p.Skills)),
		zap.Int("experiences", len(p.Experiences)),
	)
	return p, nil
}
