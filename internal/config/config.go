// Package config loads process-level configuration from the environment,
// following the variable names and defaulting rules spec.md §6.1 requires.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	GitHubAppID         int64
	GitHubAppSlug       string
	GitHubWebhookSecret string
	GitHubPrivateKeyPEM string
	GitHubToken         string // fallback bearer token when app creds absent

	DatabaseURL string
	BaseURL     string

	// LLMAPIKey enables the LLM path in FixAgent when non-empty. Populated
	// from GEMINI_API_KEY (named in spec.md) or ANTHROPIC_API_KEY (the
	// concrete LLM backend this rebuild wires).
	LLMAPIKey string
	LLMModel  string

	SlackWebhookURL string

	// NodeEnv == "development" relaxes webhook signature enforcement.
	NodeEnv string

	// PublicURL (NEXTAUTH_URL) is used to build target_url on commit statuses.
	PublicURL string

	CloneTimeout      time.Duration
	SandboxTimeout    time.Duration
	CIWaitTimeout     time.Duration
	LLMTimeout        time.Duration
	InlineAnalysisTO  time.Duration
	HealTotalTimeout  time.Duration
	MaxRetries        int
	MaxReviewComments int
}

func Load() (Config, error) {
	cfg := Config{
		Addr:                env("RP_ADDR", ":8080"),
		BaseURL:             strings.TrimRight(env("RP_BASE_URL", ""), "/"),
		DatabaseURL:         env("DATABASE_URL", "data/codeguard.sqlite"),
		GitHubAppSlug:       env("GITHUB_APP_SLUG", ""),
		GitHubWebhookSecret: env("GITHUB_WEBHOOK_SECRET", ""),
		GitHubPrivateKeyPEM: env("GITHUB_APP_PRIVATE_KEY", ""),
		GitHubToken:         env("GITHUB_TOKEN", ""),
		LLMAPIKey:           firstNonEmpty(env("GEMINI_API_KEY", ""), env("ANTHROPIC_API_KEY", "")),
		LLMModel:            env("LLM_MODEL", "claude-3-5-sonnet-latest"),
		SlackWebhookURL:     env("SLACK_WEBHOOK_URL", ""),
		NodeEnv:             env("NODE_ENV", ""),
		PublicURL:           strings.TrimRight(env("NEXTAUTH_URL", ""), "/"),
		CloneTimeout:        durationEnv("RP_CLONE_TIMEOUT", 120*time.Second),
		SandboxTimeout:      durationEnv("RP_SANDBOX_TIMEOUT", 180*time.Second),
		CIWaitTimeout:       durationEnv("RP_CI_WAIT_TIMEOUT", 300*time.Second),
		LLMTimeout:          durationEnv("RP_LLM_TIMEOUT", 60*time.Second),
		InlineAnalysisTO:    durationEnv("RP_INLINE_ANALYSIS_TIMEOUT", 60*time.Second),
		HealTotalTimeout:    durationEnv("RP_HEAL_TIMEOUT", 5*time.Minute),
		MaxRetries:          intEnv("RP_MAX_RETRIES", 5),
		MaxReviewComments:   intEnv("RP_MAX_REVIEW_COMMENTS", 20),
	}

	if v := strings.TrimSpace(env("GITHUB_APP_ID", "")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, err
		}
		cfg.GitHubAppID = n
	}
	if cfg.GitHubPrivateKeyPEM == "" {
		if path := strings.TrimSpace(env("GITHUB_APP_PRIVATE_KEY_PATH", "")); path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return Config{}, err
			}
			cfg.GitHubPrivateKeyPEM = string(b)
		}
	}

	if cfg.GitHubAppID == 0 && cfg.GitHubToken == "" {
		return Config{}, errors.New("missing GITHUB_APP_ID (or GITHUB_TOKEN fallback)")
	}
	if cfg.GitHubAppID != 0 && strings.TrimSpace(cfg.GitHubPrivateKeyPEM) == "" {
		return Config{}, errors.New("missing GITHUB_APP_PRIVATE_KEY or GITHUB_APP_PRIVATE_KEY_PATH")
	}
	if strings.TrimSpace(cfg.GitHubWebhookSecret) == "" && cfg.NodeEnv != "development" {
		return Config{}, errors.New("missing GITHUB_WEBHOOK_SECRET")
	}
	if cfg.BaseURL == "" {
		return Config{}, errors.New("missing RP_BASE_URL (public https base url for GitHub webhook delivery + UI links)")
	}

	return cfg, nil
}

// IsDevelopment reports whether webhook signature verification should be relaxed.
func (c Config) IsDevelopment() bool { return c.NodeEnv == "development" }

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func intEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
