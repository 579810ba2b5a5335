package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/document"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Anonymize a CV file and print the extracted profile as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		extract(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().Bool("show-map", false, "print the placeholders left in the sanitized text to stderr")
}

func extract(cmd *cobra.Command, path string) {
	ctx := context.Background()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading cv file", zap.Error(err))
	}

	text, err := document.Extract(ctx, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), data)
	if err != nil {
		logger.Fatal("extracting text", zap.String("file", path), zap.Error(err))
	}

	gateway, err := buildGateway(ctx, config.LLM, logger)
	if err != nil {
		logger.Fatal("creating llm gateway", zap.Error(err))
	}

	p, err := buildPipeline(ctx, config, gateway, logger)
	if err != nil {
		logger.Fatal("creating cv pipeline", zap.Error(err))
	}

	state, runErr := p.Run(ctx, text)

	if showMap, _ := cmd.Flags().GetBool("show-map"); showMap && state.Map != nil {
		entries, _ := json.MarshalIndent(state.Map.Entries(), "", "  ")
		fmt.Fprintln(os.Stderr, string(entries))
	}

	if runErr != nil && state.Profile == nil {
		logger.Fatal("running cv pipeline", zap.Error(runErr))
	}

	pretty, err := json.MarshalIndent(state.Profile, "", "  ")
	if err != nil {
		logger.Fatal("encoding profile", zap.Error(err))
	}
	fmt.Println(string(pretty))

	if runErr != nil {
		logger.Fatal("running cv pipeline", zap.Error(runErr))
	}
}
