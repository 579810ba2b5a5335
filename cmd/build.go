package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/anonymize"
	"github.com/spigell/cv-intake/internal/anonymize/ner"
	"github.com/spigell/cv-intake/internal/interview"
	"github.com/spigell/cv-intake/internal/llm"
	"github.com/spigell/cv-intake/internal/llm/gemini"
	"github.com/spigell/cv-intake/internal/llm/openrouter"
	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/pipeline"
	"github.com/spigell/cv-intake/internal/profile"
	"github.com/spigell/cv-intake/internal/secrets"
	"github.com/spigell/cv-intake/internal/vocabulary"
)

// buildGateway creates the providers that have credentials and a gateway
// over the configured models.
func buildGateway(ctx context.Context, cfg LLMConfig, log *zap.Logger) (*llm.Gateway, error) {
	providers := make(map[string]llm.Provider)

	orKey := secrets.Source{Name: "openrouter api key", Value: cfg.OpenRouter.APIKey, File: cfg.OpenRouter.APIKeyFile}
	if secrets.Configured(orKey) {
		key, err := secrets.Load(orKey)
		if err != nil {
			return nil, err
		}
		client, err := openrouter.New(openrouter.Config{
			APIKey:            key,
			BaseURL:           cfg.OpenRouter.BaseURL,
			Referer:           cfg.OpenRouter.Referer,
			Title:             cfg.OpenRouter.Title,
			RequestsPerSecond: cfg.OpenRouter.RequestsPerSecond,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("creating openrouter client: %w", err)
		}
		providers[openrouter.ProviderName] = client
	}

	geminiKey := secrets.Source{Name: "gemini api key", Value: cfg.Gemini.APIKey, File: cfg.Gemini.APIKeyFile}
	if secrets.Configured(geminiKey) {
		key, err := secrets.Load(geminiKey)
		if err != nil {
			return nil, err
		}
		client, err := gemini.New(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		providers[gemini.ProviderName] = client
	}

	models := make([]llm.ModelID, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		id, err := llm.ParseModelID(m, openrouter.ProviderName, openrouter.ProviderName, gemini.ProviderName)
		if err != nil {
			return nil, err
		}
		models = append(models, id)
	}

	return llm.NewGateway(llm.Config{
		Models:       models,
		MaxRetries:   cfg.MaxRetries,
		Timeout:      cfg.Timeout,
		RetryDelay:   cfg.RetryDelay,
		MaxLogLength: cfg.MaxLogLength,
	}, providers, log)
}

// buildRecognizers returns the pattern recognizer and, when a sidecar URL is
// set, the NER client. The sidecar must answer at startup. Allowed terms keep
// the name heuristic away from runs of skills such as "Python Django".
func buildRecognizers(ctx context.Context, cfg AnonymizeConfig, allowed []string, log *zap.Logger) ([]anonymize.Recognizer, error) {
	log = logger.OrNop(log)

	patterns, err := anonymize.NewPatternRecognizer(cfg.Patterns...)
	if err != nil {
		return nil, err
	}
	patterns.AllowTerms(allowed...)
	recognizers := []anonymize.Recognizer{patterns}

	if cfg.NERURL == "" {
		log.Info("ner sidecar is not configured, using pattern recognizers only", zap.Strings("patterns", patterns.Patterns()))
		return recognizers, nil
	}

	client, err := ner.New(cfg.NERURL, cfg.NERTimeout, log)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ner sidecar at %s: %w", cfg.NERURL, err)
	}
	log.Info("ner sidecar enabled", zap.String("url", cfg.NERURL))

	return append(recognizers, client), nil
}

// buildPipeline wires the intake steps in their fixed order.
func buildPipeline(ctx context.Context, config *Config, gateway *llm.Gateway, log *zap.Logger) (*pipeline.Pipeline, error) {
	log = logger.OrNop(log)

	vocab, err := vocabulary.Load(config.Vocabulary.File)
	if err != nil {
		return nil, err
	}

	allowed := vocab.AllowList()
	recognizers, err := buildRecognizers(ctx, config.Anonymize, allowed, log)
	if err != nil {
		return nil, err
	}

	redactor, err := anonymize.NewRedactor(log, recognizers...)
	if err != nil {
		return nil, err
	}

	steps := []pipeline.Step{
		pipeline.NewAnonymize(redactor),
		pipeline.NewWhitelist(anonymize.NewWhitelist(allowed...)),
		pipeline.NewExtract(profile.NewExtractor(gateway, log, config.LLM.MaxLogLength)),
		pipeline.NewSkills(profile.NewSkillNormalizer(vocab.Skills, config.Skills.Threshold)),
		pipeline.NewLeakCheck(log),
	}
	if !config.Skills.Enabled {
		pipeline.DisableByName(steps, pipeline.StepSkills, "disabled in config")
	}

	p := pipeline.New(log, steps...)
	for _, status := range p.Describe() {
		log.Debug("pipeline step configured", zap.String("name", status.Name), zap.Bool("enabled", status.Enabled), zap.String("reason", status.Reason))
	}

	return p, p.Validate()
}

// buildStore picks redis when a URL is configured and memory otherwise.
func buildStore(ctx context.Context, cfg SessionsConfig, log *zap.Logger) (interview.Store, error) {
	if cfg.RedisURL == "" {
		return interview.NewMemoryStore(cfg.TTL, log), nil
	}
	return interview.NewRedisStore(ctx, cfg.RedisURL, cfg.TTL, log)
}
