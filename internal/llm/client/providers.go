package llmclient

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// ProviderConfig selects and configures one completion provider.
type ProviderConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"-"`
	BaseURL  string `yaml:"base_url"`
	Tier     string `yaml:"tier"`
}

// RateLimitConfig is the provider's published request rate.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type Factory func(ctx context.Context, cfg ProviderConfig) (Client, error)

type Provider struct {
	Name      string
	Factory   Factory
	RateLimit func(tier string) RateLimitConfig
}

var (
	providersMu sync.RWMutex
	providers   = map[string]Provider{}
)

// Register adds or replaces a provider.
func Register(p Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[strings.ToLower(p.Name)] = p
}

func lookup(name string) (Provider, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Provider{}, fmt.Errorf("llm: unknown provider %q (known: %s)", name, strings.Join(providerNames(), ", "))
	}
	return p, nil
}

func providerNames() []string {
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the client of cfg.Provider.
func New(ctx context.Context, cfg ProviderConfig) (Client, error) {
	p, err := lookup(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return p.Factory(ctx, cfg)
}

// DefaultRateLimit returns the provider's published limit for a tier.
// Unknown providers get a zero config, which disables limiting.
func DefaultRateLimit(cfg ProviderConfig) RateLimitConfig {
	p, err := lookup(cfg.Provider)
	if err != nil || p.RateLimit == nil {
		return RateLimitConfig{}
	}
	return p.RateLimit(normalizeTier(cfg.Tier, "free"))
}

func normalizeTier(tier, fallback string) string {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if tier == "" {
		return fallback
	}
	return tier
}

func init() {
	Register(Provider{
		Name: "gemini",
		Factory: func(ctx context.Context, cfg ProviderConfig) (Client, error) {
			key := cfg.APIKey
			if key == "" {
				key = os.Getenv("GEMINI_API_KEY")
			}
			return NewGeminiClient(ctx, key, cfg.Model)
		},
		RateLimit: func(tier string) RateLimitConfig {
			if tier == "tier1" {
				return RateLimitConfig{RPS: 1, Burst: 1}
			}
			return RateLimitConfig{RPS: 0.25, Burst: 1}
		},
	})
	Register(Provider{
		Name: "groq",
		Factory: func(_ context.Context, cfg ProviderConfig) (Client, error) {
			c := NewGroqClient(cfg.APIKey, cfg.Model)
			if cfg.BaseURL != "" {
				c.WithBaseURL(cfg.BaseURL)
			}
			return c, nil
		},
		RateLimit: func(tier string) RateLimitConfig {
			if tier == "developer" {
				return RateLimitConfig{RPS: 5, Burst: 5}
			}
			return RateLimitConfig{RPS: 0.5, Burst: 1}
		},
	})
	Register(Provider{
		Name: "offline",
		Factory: func(context.Context, ProviderConfig) (Client, error) {
			return NewOfflineClient(), nil
		},
	})
}
