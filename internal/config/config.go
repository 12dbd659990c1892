package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration. It is built once in main and passed
// into constructors; core logic never reads the process environment.
type Config struct {
	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string
	TriviaBaseURL  string
	Database       string
	Port           string

	// Rate-limit retry policy for the trivia source.
	RetryBaseDelay time.Duration
	MaxRetries     int
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint: getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		TriviaBaseURL:  getEnv("TRIVIA_BASE_URL", "https://opentdb.com"),
		Database:       getEnv("DATABASE_PATH", "./data/flashcards.db"),
		Port:           getEnv("PORT", "8080"),
		RetryBaseDelay: 300 * time.Millisecond,
		MaxRetries:     3,
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		log.Fatalf("failed to ensure database dir %s: %v", cfg.Database, err)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
