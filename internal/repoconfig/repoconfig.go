// Package repoconfig parses a repository's optional .codeguard.yaml
// override file, which the /heal runner reads from the cloned checkout.
// It generalizes the teacher's per-repo config pattern
// (internal/releaseparty/config.go's ParseRepoConfigYAML) from "where to
// publish the blog post" to "how this repo wants to be analyzed and
// healed".
package repoconfig

import (
	"strings"

	"gopkg.in/yaml.v3"

	"codeguardpro/internal/domain"
)

// Path is the well-known override filename, read from the default branch.
const Path = ".codeguard.yaml"

// Config is a repo's override of the default analysis/healing behavior.
type Config struct {
	// DisabledCategories opts a repo out of specific rule categories
	// entirely (e.g. "style" for a repo that only wants security rules).
	DisabledCategories []domain.Category `yaml:"disabled_categories"`
	// ExcludePaths are path patterns skipped by RepoAnalyzer; see
	// ExcludesPath for how they are matched.
	ExcludePaths []string `yaml:"exclude_paths"`
	// MaxRetries is parsed and clamped to [1, 10]. The orchestrator does
	// not read it: healing sessions always use domain.MaxRetries.
	MaxRetries int `yaml:"max_retries"`
}

func Default() Config {
	return Config{
		MaxRetries: domain.MaxRetries,
	}
}

func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = domain.MaxRetries
	}
	if cfg.MaxRetries > 10 {
		cfg.MaxRetries = 10
	}
	for i, p := range cfg.ExcludePaths {
		cfg.ExcludePaths[i] = strings.TrimSpace(p)
	}
	return cfg, nil
}

// CategoryDisabled reports whether cat has been opted out of by this repo.
func (c Config) CategoryDisabled(cat domain.Category) bool {
	for _, d := range c.DisabledCategories {
		if d == cat {
			return true
		}
	}
	return false
}

// ExcludesPath reports whether path contains one of the repo's exclude
// patterns as a substring, after one leading and one trailing "*" are
// trimmed from the pattern; no other glob syntax is interpreted.
func (c Config) ExcludesPath(path string) bool {
	for _, pattern := range c.ExcludePaths {
		if pattern == "" {
			continue
		}
		if strings.Contains(path, strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")) {
			return true
		}
	}
	return false
}
