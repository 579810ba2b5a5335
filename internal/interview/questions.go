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

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/profile"
)

//go:embed questions.md
var questionsTemplate string

// MaxSuggested caps the number of kept suggested questions.
const MaxSuggested = 10

// ErrNoQuestions is returned when the reply holds no question list.
var ErrNoQuestions = errors.New("reply contains no questions")

type completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type suggestionSink interface {
	SetSuggested(ctx context.Context, id, profileID string, questions []string) error
}

// QuestionJob asks for suggested questions for one stored profile.
type QuestionJob struct {
	SessionID string
	ProfileID string
	Profile   *profile.CandidateProfile
}

// WorkerConfig sizes the pool.
type WorkerConfig struct {
	Workers int
	Queue   int
	Timeout time.Duration
}

// QuestionWorker generates suggested questions in the background. Failures
// are only logged.
type QuestionWorker struct {
	llm     completer
	sink    suggestionSink
	cfg     WorkerConfig
	logger  *zap.Logger
	queue   chan QuestionJob
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewQuestionWorker creates a stopped worker pool.
func NewQuestionWorker(gateway completer, sink suggestionSink, cfg WorkerConfig, log *zap.Logger) *QuestionWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &QuestionWorker{
		llm:    gateway,
		sink:   sink,
		cfg:    cfg,
		logger: logger.OrNop(log),
		queue:  make(chan QuestionJob, cfg.Queue),
		stopCh: make(chan struct{}),
	}
}

// Start launches the workers.
func (w *QuestionWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.process(i + 1)
	}
	w.logger.Info("question worker started", zap.Int("workers", w.cfg.Workers), zap.Int("queue", w.cfg.Queue))
}

// Stop rejects new jobs and waits for running ones. Queued jobs that did not
// start are dropped.
func (w *QuestionWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("question worker stopped", zap.Int("dropped", len(w.queue)))
}

// Enqueue schedules a job without blocking. It reports whether the job was
// accepted.
func (w *QuestionWorker) Enqueue(job QuestionJob) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	log := logger.WithFields(w.logger, logger.Session(job.SessionID))
	if w.stopped {
		log.Warn("question worker stopped, job dropped")
		return false
	}

	select {
	case w.queue <- job:
		log.Debug("question job enqueued")
		return true
	default:
		log.Warn("question queue full, job dropped", zap.Int("queue", w.cfg.Queue))
		return false
	}
}

func (w *QuestionWorker) process(workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case job := <-w.queue:
			w.run(workerID, job)
		}
	}
}

func (w *QuestionWorker) run(workerID int, job QuestionJob) {
	log := logger.WithFields(w.logger, logger.Session(job.SessionID), zap.Int("worker", workerID))

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
	defer cancel()

	questions, err := w.Generate(ctx, job.Profile)
	if err != nil {
		log.Warn("suggested questions failed", zap.Error(err))
		return
	}

	if err := w.sink.SetSuggested(ctx, job.SessionID, job.ProfileID, questions); err != nil {
		if errors.Is(err, ErrProfileChanged) {
			log.Info("profile replaced before suggested questions were ready")
			return
		}
		log.Warn("storing suggested questions failed", zap.Error(err))
		return
	}

	log.Info("suggested questions stored", zap.Int("count", len(questions)))
}

// Generate asks the model for questions about p.
func (w *QuestionWorker) Generate(ctx context.Context, p *profile.CandidateProfile) ([]string, error) {
	prompt, err := QuestionsPrompt(p)
	if err != nil {
		return nil, err
	}

	reply, err := w.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	return ParseQuestions(reply)
}

// QuestionsPrompt renders the suggested-questions prompt for p.
func QuestionsPrompt(p *profile.CandidateProfile) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	return strings.Replace(questionsTemplate, profileMarker, string(data), 1), nil
}

// ParseQuestions reads {"questions": [...]} from a model reply. Trailing
// commas are tolerated since the example in the prompt invites them.
func ParseQuestions(reply string) ([]string, error) {
	block, ok := profile.ExtractFirstObject(stripThinkBlock(reply))
	if !ok {
		return nil, ErrNoQuestions
	}

	var payload struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(dropTrailingCommas(block)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoQuestions, err)
	}

	questions := make([]string, 0, len(payload.Questions))
	seen := make(map[string]struct{}, len(payload.Questions))
	for _, q := range payload.Questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		questions = append(questions, q)
		if len(questions) == MaxSuggested {
			break
		}
	}

	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	return questions, nil
}

// dropTrailingCommas removes commas that directly precede a closing bracket or
// brace. String literals are copied unchanged.
func dropTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inString = true
		case ',':
			rest := strings.TrimLeft(s[i+1:], " \t\r\n")
			if rest != "" && (rest[0] == ']' || rest[0] == '}') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
