package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/strrl/statement-agent/internal/ai"
)

// DefaultFile is read from the working directory when no --config is given.
const DefaultFile = "statement-agent.yaml"

const envPrefix = "STATEMENT_AGENT_"

var ErrMissingAPIKey = ai.ErrMissingAPIKey

var defaultModels = map[ai.Provider]string{
	ai.ProviderGroq:       "llama-3.3-70b-versatile",
	ai.ProviderOpenRouter: "meta-llama/llama-3.3-70b-instruct",
	ai.ProviderOpenAI:     "gpt-4o-mini",
	ai.ProviderAnthropic:  "claude-3-5-sonnet-latest",
}

// Config holds all application configuration
type Config struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	Temperature    float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RequestsPerMinute throttles model calls; 0 disables throttling.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	DataDir string `yaml:"data_dir"`
	OutDir  string `yaml:"out_dir"`
	WorkDir string `yaml:"work_dir"`
	RunsDir string `yaml:"runs_dir"`

	MaxAttempts   int           `yaml:"max_attempts"`
	MaxIterations int           `yaml:"max_iterations"`
	ParserTimeout time.Duration `yaml:"parser_timeout"`
	PDFTimeout    time.Duration `yaml:"pdf_timeout"`
	GoBinary      string        `yaml:"go_binary"`
}

func Default() *Config {
	return &Config{
		Provider:       string(ai.ProviderGroq),
		Temperature:    0.1,
		RequestTimeout: 90 * time.Second,
		DataDir:        "data",
		OutDir:         "custom_parsers",
		WorkDir:        ".",
		RunsDir:        filepath.Join(".statement-agent", "runs"),
		MaxAttempts:    3,
		MaxIterations:  30,
		ParserTimeout:  60 * time.Second,
		PDFTimeout:     60 * time.Second,
		GoBinary:       "go",

		RequestsPerMinute: 30,
	}
}

// Load layers defaults, the YAML file and the environment (including .env).
// An explicit path must exist; the default file is optional.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	file := path
	if file == "" {
		file = DefaultFile
	}
	raw, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := decodeYAML(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == "":
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func (c *Config) applyEnv() {
	c.Provider = getEnv(envPrefix+"PROVIDER", c.Provider)
	c.Model = getEnv(envPrefix+"MODEL", c.Model)
	c.BaseURL = getEnv(envPrefix+"BASE_URL", c.BaseURL)
	c.Temperature = getEnvAsFloat(envPrefix+"TEMPERATURE", c.Temperature)
	c.RequestTimeout = getEnvAsDuration(envPrefix+"REQUEST_TIMEOUT", c.RequestTimeout)
	c.RequestsPerMinute = getEnvAsInt(envPrefix+"REQUESTS_PER_MINUTE", c.RequestsPerMinute)
	c.DataDir = getEnv(envPrefix+"DATA_DIR", c.DataDir)
	c.OutDir = getEnv(envPrefix+"OUT_DIR", c.OutDir)
	c.WorkDir = getEnv(envPrefix+"WORK_DIR", c.WorkDir)
	c.RunsDir = getEnv(envPrefix+"RUNS_DIR", c.RunsDir)
	c.MaxAttempts = getEnvAsInt(envPrefix+"MAX_ATTEMPTS", c.MaxAttempts)
	c.MaxIterations = getEnvAsInt(envPrefix+"MAX_ITERATIONS", c.MaxIterations)
	c.ParserTimeout = getEnvAsDuration(envPrefix+"PARSER_TIMEOUT", c.ParserTimeout)
	c.PDFTimeout = getEnvAsDuration(envPrefix+"PDF_TIMEOUT", c.PDFTimeout)
	c.GoBinary = getEnv(envPrefix+"GO_BINARY", c.GoBinary)
}

// AI resolves the provider, model and credential for the model client.
func (c *Config) AI() (ai.Config, error) {
	provider, err := ai.ParseProvider(c.Provider)
	if err != nil {
		return ai.Config{}, err
	}

	apiKey := os.Getenv(provider.APIKeyEnv())
	if apiKey == "" {
		return ai.Config{}, fmt.Errorf("%w: %s not found in environment or .env", ErrMissingAPIKey, provider.APIKeyEnv())
	}

	model := c.Model
	if model == "" {
		model = defaultModels[provider]
	}
	temperature := c.Temperature

	return ai.Config{
		Provider:    provider,
		Model:       model,
		APIKey:      apiKey,
		BaseURL:     c.BaseURL,
		Temperature: &temperature,
		Timeout:     c.RequestTimeout,

		RequestsPerMinute: c.RequestsPerMinute,
	}, nil
}

// SamplePaths returns the sample statement and its reference CSV.
func (c *Config) SamplePaths(target string) (string, string) {
	dir := filepath.Join(c.DataDir, target)
	return filepath.Join(dir, target+"_sample.pdf"), filepath.Join(dir, target+"_sample.csv")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
