package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/utils"
)

const (
	defaultMaxRetries   = 1
	defaultTimeout      = 10 * time.Second
	defaultMaxLogLength = 200
)

// Config controls the fallback loop.
type Config struct {
	Models       []ModelID
	MaxRetries   int
	Timeout      time.Duration
	RetryDelay   time.Duration
	MaxLogLength int
}

// Gateway is safe for concurrent use; every call runs its own loop.
type Gateway struct {
	providers map[string]Provider
	models    []ModelID
	retries   int
	timeout   time.Duration
	delay     time.Duration
	maxLogLen int
	logger    *zap.Logger
}

// NewGateway validates cfg against the available providers.
func NewGateway(cfg Config, providers map[string]Provider, log *zap.Logger) (*Gateway, error) {
	if len(cfg.Models) == 0 {
		return nil, errors.New("at least one model is required")
	}
	for _, m := range cfg.Models {
		if _, ok := providers[m.Provider]; !ok {
			return nil, fmt.Errorf("model %s: provider %q is not configured", m, m.Provider)
		}
	}

	g := &Gateway{
		providers: providers,
		models:    append([]ModelID(nil), cfg.Models...),
		retries:   cfg.MaxRetries,
		timeout:   cfg.Timeout,
		delay:     cfg.RetryDelay,
		maxLogLen: cfg.MaxLogLength,
		logger:    logger.OrNop(log),
	}
	if g.retries <= 0 {
		g.retries = defaultMaxRetries
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.maxLogLen <= 0 {
		g.maxLogLen = defaultMaxLogLength
	}

	return g, nil
}

// Models returns the configured candidates in preference order.
func (g *Gateway) Models() []ModelID {
	return append([]ModelID(nil), g.models...)
}

// Complete sends a single user prompt.
func (g *Gateway) Complete(ctx context.Context, prompt string) (string, error) {
	return g.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// Chat tries every model in order, each up to MaxRetries times, and returns
// the first successful reply. Attempts are strictly sequential and each gets
// its own Timeout. Cancelling ctx stops the loop with ctx.Err().
func (g *Gateway) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to send")
	}

	var (
		last     error
		attempts int
	)
	for i, model := range g.models {
		provider := g.providers[model.Provider]
		log := logger.WithFields(g.logger, logger.ModelFields(model.Provider, model.Name)...)

		for attempt := 1; attempt <= g.retries; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if attempts > 0 {
				if err := utils.WaitFor(ctx, g.delay); err != nil {
					return "", err
				}
			}
			attempts++

			log.Debug("llm request",
				logger.Attempt(attempt),
				zap.Int("messages", len(messages)),
				zap.String("last_message_preview", utils.TruncateForLog(messages[len(messages)-1].Content, g.maxLogLen)),
			)

			reply, err := g.attempt(ctx, provider, model.Name, messages)
			if err == nil {
				log.Debug("llm response",
					logger.Attempt(attempt),
					zap.Int("response_length", utf8.RuneCountInString(reply)),
					zap.String("response_preview", utils.TruncateForLog(reply, g.maxLogLen)),
				)
				return reply, nil
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}

			last = err
			log.Warn("llm attempt failed",
				logger.Attempt(attempt),
				zap.Int("max_retries", g.retries),
				zap.Error(err),
			)
		}

		if i < len(g.models)-1 {
			log.Info("switching to next model", zap.Int("failed_attempts", g.retries))
		}
	}

	return "", &AllModelsExhaustedError{Attempts: attempts, Last: last}
}

func (g *Gateway) attempt(ctx context.Context, p Provider, model string, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return p.Chat(ctx, model, messages)
}
