package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spigell/cv-intake/internal/llm"
	"github.com/spigell/cv-intake/internal/llm/openrouter"
	"github.com/spigell/cv-intake/internal/pipeline"
)

func writeKeyFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  sk-test\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	config, err := getConfig()
	if err != nil {
		t.Fatalf("get config: %v", err)
	}

	if len(config.LLM.Models) != len(defaultModels) || config.LLM.Models[0] != defaultModels[0] {
		t.Fatalf("unexpected default models %v", config.LLM.Models)
	}
	if config.LLM.MaxRetries != 1 || config.LLM.Timeout != 10*time.Second {
		t.Fatalf("unexpected retry defaults %d %s", config.LLM.MaxRetries, config.LLM.Timeout)
	}
	if !config.Skills.Enabled || config.Skills.Threshold != 85 {
		t.Fatalf("unexpected skills defaults %+v", config.Skills)
	}
	if config.Sessions.TTL != 24*time.Hour || !config.Questions.Enabled {
		t.Fatalf("unexpected session defaults %+v %+v", config.Sessions, config.Questions)
	}
}

func TestBuildGateway(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyFile := writeKeyFile(t)

	cases := []struct {
		name     string
		cfg      LLMConfig
		expected []llm.ModelID
		err      string
	}{
		{
			name: "openrouter from key file",
			cfg: LLMConfig{
				Models:     []string{"qwen/qwen3-4b:free", "openrouter:openai/gpt-oss-20b:free"},
				OpenRouter: OpenRouterConfig{APIKeyFile: keyFile},
			},
			expected: []llm.ModelID{
				{Provider: openrouter.ProviderName, Name: "qwen/qwen3-4b:free"},
				{Provider: openrouter.ProviderName, Name: "openai/gpt-oss-20b:free"},
			},
		},
		{
			name: "no credentials",
			cfg:  LLMConfig{Models: []string{"qwen/qwen3-4b:free"}},
			err:  "not configured",
		},
		{
			name: "gemini model without gemini key",
			cfg: LLMConfig{
				Models:     []string{"gemini:gemini-2.5-flash"},
				OpenRouter: OpenRouterConfig{APIKey: "sk-inline"},
			},
			err: `provider "gemini" is not configured`,
		},
		{
			name: "missing key file",
			cfg: LLMConfig{
				Models:     []string{"qwen/qwen3-4b:free"},
				OpenRouter: OpenRouterConfig{APIKeyFile: filepath.Join(t.TempDir(), "absent")},
			},
			err: "reading openrouter api key",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gateway, err := buildGateway(ctx, tc.cfg, nil)
			if tc.err != "" {
				if err == nil || !strings.Contains(err.Error(), tc.err) {
					t.Fatalf("expected error containing %q, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("build gateway: %v", err)
			}

			models := gateway.Models()
			if len(models) != len(tc.expected) {
				t.Fatalf("expected %d models, got %v", len(tc.expected), models)
			}
			for i := range models {
				if models[i] != tc.expected[i] {
					t.Fatalf("model %d: expected %v, got %v", i, tc.expected[i], models[i])
				}
			}
		})
	}
}

func TestBuildPipeline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gateway, err := buildGateway(ctx, LLMConfig{
		Models:     []string{"qwen/qwen3-4b:free"},
		OpenRouter: OpenRouterConfig{APIKeyFile: writeKeyFile(t)},
	}, nil)
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}

	config := &Config{Skills: SkillsConfig{Enabled: false, Threshold: 85}}
	p, err := buildPipeline(ctx, config, gateway, nil)
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}

	var names []string
	for _, status := range p.Describe() {
		names = append(names, status.Name)
		if status.Name == pipeline.StepSkills && status.Enabled {
			t.Fatalf("expected skills step to be disabled")
		}
	}
	expected := []string{pipeline.StepAnonymize, pipeline.StepWhitelist, pipeline.StepExtract, pipeline.StepSkills, pipeline.StepLeakCheck}
	if strings.Join(names, ",") != strings.Join(expected, ",") {
		t.Fatalf("expected steps %v, got %v", expected, names)
	}
}

func TestBuildRecognizersPingsSidecar(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"spans": []any{}})
	}))
	defer healthy.Close()

	recognizers, err := buildRecognizers(ctx, AnonymizeConfig{NERURL: healthy.URL, NERTimeout: time.Second}, nil, nil)
	if err != nil {
		t.Fatalf("build recognizers: %v", err)
	}
	if len(recognizers) != 2 || recognizers[1].Name() != "ner" {
		t.Fatalf("expected patterns and ner recognizers, got %d", len(recognizers))
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	if _, err := buildRecognizers(ctx, AnonymizeConfig{NERURL: broken.URL, NERTimeout: time.Second}, nil, nil); err == nil {
		t.Fatalf("expected an unavailable sidecar to fail startup")
	}

	if _, err := buildRecognizers(ctx, AnonymizeConfig{Patterns: []string{"telepathy"}}, nil, nil); err == nil {
		t.Fatalf("expected unknown pattern to fail")
	}
}
