package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/interview"
	"github.com/spigell/cv-intake/internal/profile"
)

const (
	PromptAnswer  = "Answer"
	PromptRepeat  = "Ask another way"
	PromptHistory = "Show history"
	PromptRestart = "Restart interview"
	PromptQuit    = "Quit"

	exitWord = "exit"
)

var interviewActions = promptui.Select{
	Label: "Next step?",
	Items: []string{PromptAnswer, PromptRepeat, PromptHistory, PromptRestart, PromptQuit},
}

var interviewCmd = &cobra.Command{
	Use:   "interview <profile.json>",
	Short: "Run an interactive interview grounded on an extracted profile",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		runInterview(args[0])
	},
}

func init() {
	rootCmd.AddCommand(interviewCmd)
}

func runInterview(path string) {
	ctx := context.Background()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	p, err := loadProfile(path)
	if err != nil {
		logger.Fatal("loading profile", zap.String("file", path), zap.Error(err))
	}

	gateway, err := buildGateway(ctx, config.LLM, logger)
	if err != nil {
		logger.Fatal("creating llm gateway", zap.Error(err))
	}

	store := interview.NewMemoryStore(0, logger)
	defer store.Close()

	driver := interview.NewDriver(store, gateway, logger)
	id := interview.DefaultSessionID
	if _, err := driver.SetProfile(ctx, id, p); err != nil {
		logger.Fatal("storing profile", zap.Error(err))
	}

	question, err := driver.NextQuestion(ctx, id, nil)
	if err != nil {
		logger.Fatal("asking the first question", zap.Error(err))
	}

	for {
		fmt.Printf("\n%s\n\n", question)

		_, action, err := interviewActions.Run()
		if err != nil {
			logger.Info("exiting", zap.Error(err))
			return
		}

		var answer *string
		switch action {
		case PromptAnswer:
			text, err := readAnswer()
			if err != nil {
				logger.Info("exiting", zap.Error(err))
				return
			}
			if text == "" || strings.EqualFold(text, exitWord) {
				logger.Info("exiting", zap.String("reason", "empty answer"))
				return
			}
			answer = &text
		case PromptRepeat:
		case PromptHistory:
			turns, _ := driver.History(ctx, id)
			// the first turn is the seed instruction
			for i, t := range turns {
				if i == 0 {
					continue
				}
				fmt.Printf("[%s] %s\n", t.Role, t.Content)
			}
			continue
		case PromptRestart:
			if err := driver.Reset(ctx, id); err != nil {
				logger.Fatal("restarting interview", zap.Error(err))
			}
		case PromptQuit:
			logger.Info("exiting", zap.String("reason", "got quit from prompt"))
			return
		}

		next, err := driver.NextQuestion(ctx, id, answer)
		if err != nil {
			logger.Error("asking the next question", zap.Error(err))
			continue
		}
		question = next
	}
}

func readAnswer() (string, error) {
	prompt := promptui.Prompt{Label: "Your answer (empty or exit to finish)"}
	text, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func loadProfile(path string) (*profile.CandidateProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p profile.CandidateProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if p.Error != "" {
		return nil, fmt.Errorf("profile carries an extraction error: %s", p.Error)
	}
	if p.IsEmpty() {
		return nil, errors.New("profile is empty")
	}
	return &p, nil
}
