package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"interviewforge/internal/budget"
	llmclient "interviewforge/internal/llm/client"
)

type Config struct {
	Port        string
	Env         string
	LogLevel    string
	LLM         LLMConfig
	Budget      budget.Config
	DatabaseURL string
	Artifact    ArtifactConfig
	Cache       CacheConfig
}

type LLMConfig struct {
	Provider llmclient.ProviderConfig
	// RateLimit overrides the provider's published limit when RPS > 0.
	RateLimit       llmclient.RateLimitConfig
	UsageLedgerPath string
	// MaxCallTimeout caps every completion call of the process. A run's
	// call_timeout is enforced per call by the engine and only takes
	// effect below this cap.
	MaxCallTimeout time.Duration
	// ReservePermits makes every pass of a run reserve its calls up front
	// from a limiter shared with the client.
	ReservePermits bool
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type CacheConfig struct {
	Size int
	Path string
	TTL  time.Duration
}

// Load reads .env (if present) and the process environment. The budget
// starts from budget.DefaultConfig and is overlaid by BUDGET_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "dev")
	cfg := Config{
		Port:     normalizePort(firstNonEmpty(os.Getenv("PORT"), "8081")),
		Env:      env,
		LogLevel: firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
		LLM:      loadLLMConfig(),
		Budget:   budget.DefaultConfig(),
		Artifact: loadArtifactConfig(),
		Cache: CacheConfig{
			Size: envInt("DIGEST_CACHE_SIZE", 4096),
			Path: strings.TrimSpace(os.Getenv("DIGEST_CACHE_PATH")),
			TTL:  envDuration("DIGEST_CACHE_TTL", 7*24*time.Hour),
		},
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if strings.EqualFold(env, "local") {
		cfg.applyLocal(localConfig())
	}
	if path := strings.TrimSpace(os.Getenv("BUDGET_FILE")); path != "" {
		b, err := LoadBudget(path, cfg.Budget)
		if err != nil {
			return nil, err
		}
		cfg.Budget = b
	}
	return &cfg, nil
}

// LoadBudget overlays the YAML file at path onto base. Keys missing from
// the file keep their base value. Durations use Go syntax ("90s").
func LoadBudget(path string, base budget.Config) (budget.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read budget file: %w", err)
	}
	out := base
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return base, fmt.Errorf("parse budget file %s: %w", path, err)
	}
	return out, nil
}

func loadLLMConfig() LLMConfig {
	provider := strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), "offline"))
	key := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	switch provider {
	case "gemini":
		key = firstNonEmpty(key, strings.TrimSpace(os.Getenv("GEMINI_API_KEY")))
	case "groq":
		key = firstNonEmpty(key, strings.TrimSpace(os.Getenv("GROQ_API_KEY")))
	}
	return LLMConfig{
		Provider: llmclient.ProviderConfig{
			Provider: provider,
			Model:    strings.TrimSpace(os.Getenv("LLM_MODEL")),
			APIKey:   key,
			BaseURL:  strings.TrimSpace(os.Getenv("LLM_BASE_URL")),
			Tier:     strings.TrimSpace(os.Getenv("LLM_TIER")),
		},
		RateLimit: llmclient.RateLimitConfig{
			RPS:   envFloat("LLM_RPS", 0),
			Burst: envInt("LLM_BURST", 0),
		},
		UsageLedgerPath: strings.TrimSpace(os.Getenv("LLM_USAGE_LEDGER")),
		MaxCallTimeout:  envDuration("LLM_MAX_CALL_TIMEOUT", 10*time.Minute),
		ReservePermits:  envBool("LLM_RESERVE_PERMITS", true),
	}
}

func loadArtifactConfig() ArtifactConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "interviewforge-artifacts"),
		UseSSL:    envBool("ARTIFACT_S3_USE_SSL", true),
	}
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, ":") {
		return p
	}
	return ":" + p
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
