package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultMaxBodySize is used when server.max_body_size is empty.
const DefaultMaxBodySize = 1048576 // 1 MB

// envOverrides are applied on top of the file. Secrets normally arrive this way.
type envOverrides struct {
	ChannelSecret      string `envconfig:"LINE_CHANNEL_SECRET"`
	ChannelAccessToken string `envconfig:"LINE_CHANNEL_ACCESS_TOKEN"`
	Listen             string `envconfig:"LINEDESK_LISTEN"`
	LogLevel           string `envconfig:"LINEDESK_LOG_LEVEL"`
	PolicyMode         string `envconfig:"LINEDESK_POLICY"`
}

// Load reads configuration from configPath (optional), applies environment
// overrides and validates the result. An empty configPath means defaults plus
// environment only.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
		}

		if err := loadConfigFile(absPath, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
		cfg.SourceFile = absPath
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DiscoverConfigPath finds a config file in the standard locations.
// Priority: $LINEDESK_CONFIG, ~/.config/linedesk/config.yaml, /etc/linedesk/config.yaml,
// ./config.yaml. Returns "" when none exists.
func DiscoverConfigPath() string {
	if p := os.Getenv("LINEDESK_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	candidates := []string{}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "linedesk", "config.yaml"))
	}
	candidates = append(candidates, "/etc/linedesk/config.yaml", "./config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadConfigFile parses path over the values already in cfg.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process("", &o); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if o.ChannelSecret != "" {
		cfg.Line.ChannelSecret = o.ChannelSecret
	}
	if o.ChannelAccessToken != "" {
		cfg.Line.ChannelAccessToken = o.ChannelAccessToken
	}
	if o.Listen != "" {
		cfg.Server.Listen = o.Listen
	}
	if o.LogLevel != "" {
		cfg.Service.LogLevel = strings.ToLower(o.LogLevel)
	}
	if o.PolicyMode != "" {
		cfg.Policy.Mode = o.PolicyMode
	}
	return nil
}

// interpolateEnv replaces ${VAR} placeholders with environment values.
// Unset variables are left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// ParseByteSize parses size strings like "1MB", "512KB", "2048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func ParseByteSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
