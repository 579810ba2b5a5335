package interview

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/llm"
	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/profile"
)

//go:embed interview.md
var seedTemplate string

const profileMarker = "{{PROFILE_JSON}}"

// ErrEmptyQuestion is returned when the model replied with nothing usable.
var ErrEmptyQuestion = errors.New("model returned an empty question")

type chatter interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Driver runs interviews over sessions kept in a Store. Operations on the
// same session are serialized; different sessions run concurrently.
type Driver struct {
	store  Store
	llm    chatter
	logger *zap.Logger
	now    func() time.Time
	locks  *keyedMutex
}

// NewDriver creates a driver.
func NewDriver(store Store, gateway chatter, log *zap.Logger) *Driver {
	return &Driver{
		store:  store,
		llm:    gateway,
		logger: logger.OrNop(log),
		now:    time.Now,
		locks:  newKeyedMutex(),
	}
}

// SeedPrompt renders the instruction that opens every interview.
func SeedPrompt(p *profile.CandidateProfile) (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	return strings.Replace(seedTemplate, profileMarker, string(data), 1), nil
}

func (d *Driver) load(ctx context.Context, id string) (*Session, error) {
	s, err := d.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return &Session{ID: id}, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Driver) save(ctx context.Context, s *Session) error {
	s.UpdatedAt = d.now().UTC()
	return d.store.Put(ctx, s)
}

// SetProfile stores p as the session profile and starts a fresh interview.
// It returns the ID assigned to this profile.
func (d *Driver) SetProfile(ctx context.Context, id string, p *profile.CandidateProfile) (string, error) {
	unlock := d.locks.lock(id)
	defer unlock()

	s, err := d.load(ctx, id)
	if err != nil {
		return "", err
	}

	if s.Profile != nil {
		d.logger.Info("replacing stored profile", logger.Session(id),
			zap.String("previous_profile_id", s.ProfileID), zap.Int("dropped_turns", len(s.Transcript)))
	}

	s.Profile = p
	s.ProfileID = uuid.NewString()
	s.Transcript = nil
	s.Suggested = nil

	if err := d.save(ctx, s); err != nil {
		return "", err
	}
	return s.ProfileID, nil
}

// Profile returns the stored profile or ErrNoProfile.
func (d *Driver) Profile(ctx context.Context, id string) (*profile.CandidateProfile, error) {
	s, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Profile == nil {
		return nil, ErrNoProfile
	}
	return s.Profile, nil
}

// NextQuestion advances the interview. With an answer it is recorded before
// asking; without one the last question is asked again in new words. The
// transcript is only written after the model replied.
func (d *Driver) NextQuestion(ctx context.Context, id string, answer *string) (string, error) {
	unlock := d.locks.lock(id)
	defer unlock()

	s, err := d.load(ctx, id)
	if err != nil {
		return "", err
	}
	if s.Profile == nil {
		return "", ErrNoProfile
	}

	transcript := make([]Turn, 0, len(s.Transcript)+3)
	transcript = append(transcript, s.Transcript...)

	hasAnswer := answer != nil && strings.TrimSpace(*answer) != ""

	if len(transcript) == 0 {
		seed, err := SeedPrompt(s.Profile)
		if err != nil {
			return "", err
		}
		transcript = append(transcript, Turn{Role: llm.RoleUser, Content: seed})
	} else if !hasAnswer && transcript[len(transcript)-1].Role == llm.RoleAssistant {
		transcript = transcript[:len(transcript)-1]
	}

	if hasAnswer {
		transcript = append(transcript, Turn{Role: llm.RoleUser, Content: strings.TrimSpace(*answer)})
	}

	log := logger.WithFields(d.logger, logger.Session(id))
	log.Debug("requesting next question", zap.String("state", s.State().String()), zap.Int("turns", len(transcript)))

	reply, err := d.llm.Chat(ctx, toMessages(transcript))
	if err != nil {
		return "", fmt.Errorf("next question: %w", err)
	}

	question := stripThinkBlock(reply)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	s.Transcript = append(transcript, Turn{Role: llm.RoleAssistant, Content: question})
	if err := d.save(ctx, s); err != nil {
		return "", err
	}

	return question, nil
}

// History returns the transcript of the session.
func (d *Driver) History(ctx context.Context, id string) ([]Turn, error) {
	s, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}
	history := make([]Turn, len(s.Transcript))
	copy(history, s.Transcript)
	return history, nil
}

// Reset discards the transcript and keeps the profile.
func (d *Driver) Reset(ctx context.Context, id string) error {
	unlock := d.locks.lock(id)
	defer unlock()

	s, err := d.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.Transcript = nil
	return d.save(ctx, s)
}

// Suggested returns the background-generated questions of the session.
func (d *Driver) Suggested(ctx context.Context, id string) ([]string, error) {
	s, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Suggested == nil {
		return []string{}, nil
	}
	return s.Suggested, nil
}

// SetSuggested stores questions generated for profileID. It fails with
// ErrProfileChanged when the session holds another profile by now.
func (d *Driver) SetSuggested(ctx context.Context, id, profileID string, questions []string) error {
	unlock := d.locks.lock(id)
	defer unlock()

	s, err := d.load(ctx, id)
	if err != nil {
		return err
	}
	if s.ProfileID != profileID {
		return ErrProfileChanged
	}

	s.Suggested = questions
	return d.save(ctx, s)
}

// stripThinkBlock removes a <think>...</think> block some models emit
// before the answer.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return strings.TrimSpace(s)
	}
	end := strings.Index(s, close)
	if end < 0 {
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
