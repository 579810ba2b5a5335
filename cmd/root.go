package cmd

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/anonymize"
	"github.com/spigell/cv-intake/internal/logger"
	"github.com/spigell/cv-intake/internal/profile"
)

const (
	app = "cv-intake"
)

// defaultModels are tried in this order until one answers.
var defaultModels = []string{
	"tngtech/deepseek-r1t-chimera:free",
	"openai/gpt-oss-20b:free",
	"mistralai/mistral-7b-instruct:free",
	"qwen/qwen3-235b-a22b:free",
	"mistralai/mistral-small-3.2-24b-instruct",
	"tngtech/deepseek-r1t2-chimera:free",
	"qwen/qwen3-4b:free",
	"x-ai/grok-4.1-fast:free",
}

type Config struct {
	Listen     string           `mapstructure:"listen"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Anonymize  AnonymizeConfig  `mapstructure:"anonymize"`
	Vocabulary VocabularyConfig `mapstructure:"vocabulary"`
	Skills     SkillsConfig     `mapstructure:"skills"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Questions  QuestionsConfig  `mapstructure:"questions"`
}

type LLMConfig struct {
	Models       []string         `mapstructure:"models"`
	MaxRetries   int              `mapstructure:"max-retries"`
	Timeout      time.Duration    `mapstructure:"timeout"`
	RetryDelay   time.Duration    `mapstructure:"retry-delay"`
	MaxLogLength int              `mapstructure:"max-log-length"`
	OpenRouter   OpenRouterConfig `mapstructure:"openrouter"`
	Gemini       GeminiConfig     `mapstructure:"gemini"`
}

type OpenRouterConfig struct {
	APIKey            string  `mapstructure:"api-key" json:"-"`
	APIKeyFile        string  `mapstructure:"api-key-file"`
	BaseURL           string  `mapstructure:"base-url"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
	Referer           string  `mapstructure:"referer"`
	Title             string  `mapstructure:"title"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key" json:"-"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type AnonymizeConfig struct {
	NERURL     string        `mapstructure:"ner-url"`
	NERTimeout time.Duration `mapstructure:"ner-timeout"`
	Patterns   []string      `mapstructure:"patterns"`
}

type VocabularyConfig struct {
	File string `mapstructure:"file"`
}

type SkillsConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Threshold int  `mapstructure:"threshold"`
}

type SessionsConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis-url"`
}

type QuestionsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Workers int           `mapstructure:"workers"`
	Queue   int           `mapstructure:"queue"`
	Timeout time.Duration `mapstructure:"timeout"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-intake anonymizes CVs, extracts a structured profile with LLMs and runs interviews on it",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"llm.openrouter.api-key": "OPENROUTER_API_KEY",
		"llm.gemini.api-key":     "GEMINI_API_KEY",
		"anonymize.ner-url":      "CV_INTAKE_NER_URL",
		"sessions.redis-url":     "CV_INTAKE_REDIS_URL",
		"listen":                 "CV_INTAKE_LISTEN",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-intake.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("listen", ":8000")

	viper.SetDefault("llm.models", defaultModels)
	viper.SetDefault("llm.max-retries", 1)
	viper.SetDefault("llm.timeout", 10*time.Second)
	viper.SetDefault("llm.retry-delay", time.Duration(0))
	viper.SetDefault("llm.max-log-length", 200)
	viper.SetDefault("llm.openrouter.referer", "")
	viper.SetDefault("llm.openrouter.title", app)

	viper.SetDefault("anonymize.ner-timeout", 10*time.Second)
	viper.SetDefault("anonymize.patterns", anonymize.DefaultPatterns)

	viper.SetDefault("skills.enabled", true)
	viper.SetDefault("skills.threshold", profile.DefaultSkillThreshold)

	viper.SetDefault("sessions.ttl", 24*time.Hour)

	viper.SetDefault("questions.enabled", true)
	viper.SetDefault("questions.workers", 2)
	viper.SetDefault("questions.queue", 32)
	viper.SetDefault("questions.timeout", 2*time.Minute)
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional, but a broken one is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}
