package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Repo struct {
		Name string `yaml:"name"`
		Root string `yaml:"root"`
	} `yaml:"repo"`
	AI struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		APIKey    string `yaml:"api_key"`
		Dimension int    `yaml:"dimension"`
		BaseURL   string `yaml:"base_url"`
	} `yaml:"ai"`
	Indexing struct {
		Extensions []string `yaml:"extensions"`
		Exclude    []string `yaml:"exclude"`
		Workers    int      `yaml:"workers"`
		// AutoConfirm skips the cost confirmation gate above the threshold.
		AutoConfirm bool `yaml:"auto_confirm"`
	} `yaml:"indexing"`
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config; a missing file means env-only configuration
	var cfg Config
	file, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, err
		}
	}

	// 3. Override with environment variables if present
	if apiKey := os.Getenv("CODEATLAS_API_KEY"); apiKey != "" {
		cfg.AI.APIKey = apiKey
	}
	if provider := os.Getenv("CODEATLAS_AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}
	if os.Getenv("CODEATLAS_CONFIRM_EMBEDDINGS") == "true" {
		cfg.Indexing.AutoConfirm = true
	}

	return &cfg, nil
}
