package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port      string
	JWTSecret string

	// Generator / evaluator
	GroqAPIKey           string
	GroqModel            string
	GroqEvalModel        string
	GroqSTTModel         string
	AnthropicModel       string
	GeneratorKind        string // "groq", "anthropic" or "mock"
	GenerationMaxRetries int

	// Exam shape
	DefaultStartLevel string
	ModuleTimeLimits  map[string]int // seconds, 0 = unbounded
	QuestionCounts    map[string]int // Listening is derived from its pool

	// Pool maintenance
	PoolPrefillFactor int    // min pool = factor * module question count
	PoolTopupCron     string // empty disables the cron top-up

	// Listening assets
	ListeningDataDir string
	SpeechUploadDir  string
}

// Load reads .env (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", "level-assessment-staging-signing-key-2026"),

		GroqAPIKey:     getEnv("GROQ_API_KEY", ""),
		GroqModel:      getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GroqEvalModel:  getEnv("GROQ_EVAL_MODEL", "llama3-8b-8192"),
		GroqSTTModel:   getEnv("GROQ_STT_MODEL", "whisper-large-v3"),
		AnthropicModel: getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		GeneratorKind:  getEnv("GENERATOR", "groq"),

		GenerationMaxRetries: getEnvInt("GENERATION_MAX_RETRIES", 3),

		DefaultStartLevel: getEnv("DEFAULT_START_LEVEL", "B2"),

		ModuleTimeLimits: map[string]int{
			"Grammar":    getEnvInt("TIME_LIMIT_GRAMMAR", 300),
			"Vocabulary": getEnvInt("TIME_LIMIT_VOCABULARY", 300),
			"Reading":    getEnvInt("TIME_LIMIT_READING", 420),
			"Writing":    getEnvInt("TIME_LIMIT_WRITING", 600),
			"Listening":  getEnvInt("TIME_LIMIT_LISTENING", 1500),
			"Speaking":   getEnvInt("TIME_LIMIT_SPEAKING", 420),
		},
		QuestionCounts: map[string]int{
			"Grammar":    getEnvInt("QUESTIONS_GRAMMAR", 10),
			"Vocabulary": getEnvInt("QUESTIONS_VOCABULARY", 10),
			"Reading":    getEnvInt("QUESTIONS_READING", 10),
			"Writing":    getEnvInt("QUESTIONS_WRITING", 1),
			"Speaking":   getEnvInt("QUESTIONS_SPEAKING", 3),
		},

		PoolPrefillFactor: getEnvInt("POOL_PREFILL_FACTOR", 2),
		PoolTopupCron:     getEnv("POOL_TOPUP_CRON", ""),

		ListeningDataDir: getEnv("LISTENING_DATA_DIR", "data/listening"),
		SpeechUploadDir:  getEnv("SPEECH_UPLOAD_DIR", "uploads/speech"),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must not be empty")
	}
	if cfg.GroqAPIKey == "" && cfg.GeneratorKind == "groq" {
		log.Println("Warning: GROQ_API_KEY not set; generation and open-ended evaluation run degraded")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}
