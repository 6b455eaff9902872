package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// validName matches alphanumeric, hyphens, and underscores.
var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Config is the top-level gateway configuration loaded from JSON.
type Config struct {
	Upstream   UpstreamConfig     `json:"upstream"`
	Downstream []DownstreamConfig `json:"downstream"`
	Scrub      ScrubConfig        `json:"scrub"`
}

// UpstreamConfig controls how clients connect to the gateway.
type UpstreamConfig struct {
	HTTP HTTPConfig `json:"http"`
	MCP  MCPConfig  `json:"mcp"`
}

// HTTPConfig holds HTTP listener settings.
type HTTPConfig struct {
	Addr string `json:"addr"` // e.g. ":8080"
}

// MCPConfig exposes the scrubber as an MCP tool on the upstream listener.
type MCPConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Path    string `json:"path"` // e.g. "/mcp"
}

// DownstreamConfig is one location: requests under Path are proxied to URL.
type DownstreamConfig struct {
	Name  string       `json:"name"`
	Path  string       `json:"path"`
	URL   string       `json:"url"`
	Scrub *ScrubConfig `json:"scrub,omitempty"`
}

// ScrubConfig controls the newline filter.
// When used at the root level it provides global defaults.
// When used per-downstream, non-nil fields override the global.
type ScrubConfig struct {
	// NoNewlines enables the filter for a location.
	NoNewlines *bool `json:"noNewlines,omitempty"`
	// PrefixTags makes any "<pre..." tag open a preformatted region.
	PrefixTags *bool `json:"prefixTags,omitempty"`
}

const (
	DefaultHTTPAddr = ":8080"
	DefaultMCPPath  = "/mcp"
)

// Load reads and parses a JSON config file, applies defaults, and validates.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Upstream.HTTP.Addr == "" {
		cfg.Upstream.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.Upstream.MCP.Enabled == nil {
		cfg.Upstream.MCP.Enabled = boolPtr(false)
	}
	if cfg.Upstream.MCP.Path == "" {
		cfg.Upstream.MCP.Path = DefaultMCPPath
	}

	if cfg.Scrub.NoNewlines == nil {
		cfg.Scrub.NoNewlines = boolPtr(false)
	}
	if cfg.Scrub.PrefixTags == nil {
		cfg.Scrub.PrefixTags = boolPtr(false)
	}
}

func validate(cfg Config) error {
	if len(cfg.Downstream) == 0 {
		return fmt.Errorf("at least one downstream server is required")
	}

	names := make(map[string]struct{}, len(cfg.Downstream))
	paths := make(map[string]string, len(cfg.Downstream))
	for i, ds := range cfg.Downstream {
		if ds.Name == "" {
			return fmt.Errorf("downstream[%d]: name is required", i)
		}
		if !validName.MatchString(ds.Name) {
			return fmt.Errorf("downstream[%d]: name %q must match %s", i, ds.Name, validName.String())
		}
		if _, exists := names[ds.Name]; exists {
			return fmt.Errorf("downstream[%d]: duplicate name %q", i, ds.Name)
		}
		names[ds.Name] = struct{}{}

		if !strings.HasPrefix(ds.Path, "/") {
			return fmt.Errorf("downstream[%d] (%s): path must start with \"/\", got %q", i, ds.Name, ds.Path)
		}
		if other, exists := paths[ds.Path]; exists {
			return fmt.Errorf("downstream[%d] (%s): path %q already used by %s", i, ds.Name, ds.Path, other)
		}
		paths[ds.Path] = ds.Name

		if ds.URL == "" {
			return fmt.Errorf("downstream[%d] (%s): url is required", i, ds.Name)
		}
		u, err := url.Parse(ds.URL)
		if err != nil {
			return fmt.Errorf("downstream[%d] (%s): invalid url %q: %w", i, ds.Name, ds.URL, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("downstream[%d] (%s): url %q must be an absolute http or https url", i, ds.Name, ds.URL)
		}
	}

	if *cfg.Upstream.MCP.Enabled {
		mcpPath := cfg.Upstream.MCP.Path
		if !strings.HasPrefix(mcpPath, "/") {
			return fmt.Errorf("upstream.mcp.path must start with \"/\", got %q", mcpPath)
		}
		if name, exists := paths[mcpPath]; exists {
			return fmt.Errorf("upstream.mcp.path %q collides with downstream %s", mcpPath, name)
		}
	}

	return nil
}

// Merge returns a ScrubConfig with per-location overrides applied on
// top of global defaults. Fields that are nil in the override use the global value.
func Merge(global, override *ScrubConfig) ScrubConfig {
	if override == nil {
		return *global
	}

	merged := *global

	if override.NoNewlines != nil {
		merged.NoNewlines = override.NoNewlines
	}
	if override.PrefixTags != nil {
		merged.PrefixTags = override.PrefixTags
	}

	return merged
}

// Enabled reports whether *b is set and true.
func Enabled(b *bool) bool {
	return b != nil && *b
}

func boolPtr(b bool) *bool { return &b }
