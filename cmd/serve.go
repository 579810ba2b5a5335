package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/interview"
	"github.com/spigell/cv-intake/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the CV intake and interview HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8000)")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-intake", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	gateway, err := buildGateway(ctx, config.LLM, logger)
	if err != nil {
		logger.Fatal("creating llm gateway", zap.Error(err),
			zap.String("hint", "set OPENROUTER_API_KEY or GEMINI_API_KEY, or the api-key-file keys under llm in the configuration file"))
	}

	p, err := buildPipeline(ctx, config, gateway, logger)
	if err != nil {
		logger.Fatal("creating cv pipeline", zap.Error(err))
	}

	store, err := buildStore(ctx, config.Sessions, logger)
	if err != nil {
		logger.Fatal("creating session store", zap.Error(err))
	}
	defer store.Close()

	driver := interview.NewDriver(store, gateway, logger)

	var opts []server.Option
	if config.Questions.Enabled {
		worker := interview.NewQuestionWorker(gateway, driver, interview.WorkerConfig{
			Workers: config.Questions.Workers,
			Queue:   config.Questions.Queue,
			Timeout: config.Questions.Timeout,
		}, logger)
		worker.Start()
		defer worker.Stop()

		opts = append(opts, server.WithQuestionQueue(worker))
	}

	srv := server.New(p, driver, logger, opts...)
	if err := srv.Run(ctx, config.Listen); err != nil {
		logger.Error("http server failed", zap.Error(err))
		return
	}

	logger.Info("exiting", zap.String("reason", "shutdown requested"))
}
