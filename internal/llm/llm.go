// Package llm sends chat requests to an ordered list of models, retrying each
// model and falling back to the next one until a provider answers.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Role of a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Provider talks to one LLM backend. Chat must honour ctx cancellation and
// return an error for every non-successful response.
type Provider interface {
	Name() string
	Chat(ctx context.Context, model string, messages []Message) (string, error)
}

// ModelID identifies a model on a provider.
type ModelID struct {
	Provider string
	Name     string
}

func (m ModelID) String() string {
	return m.Provider + ":" + m.Name
}

// ParseModelID parses "provider:model". A value without a known provider
// prefix belongs to defaultProvider, so OpenRouter ids such as
// "qwen/qwen3-4b:free" stay intact.
func ParseModelID(s, defaultProvider string, known ...string) (ModelID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModelID{}, fmt.Errorf("empty model id")
	}

	if prefix, name, ok := strings.Cut(s, ":"); ok {
		for _, p := range known {
			if prefix == p {
				if strings.TrimSpace(name) == "" {
					return ModelID{}, fmt.Errorf("model id %q has no model name", s)
				}
				return ModelID{Provider: p, Name: strings.TrimSpace(name)}, nil
			}
		}
	}

	return ModelID{Provider: defaultProvider, Name: s}, nil
}
