package config

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/linedesk/internal/policy"
)

var validPolicyModes = map[string]bool{"noop": true, "logging": true, "auto_reply": true}

// Validate checks a fully merged configuration.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if _, err := ParseByteSize(cfg.Server.MaxBodySize); err != nil {
		return fmt.Errorf("server.max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}

	if err := requireSecret("line.channel_secret", "LINE_CHANNEL_SECRET", cfg.Line.ChannelSecret); err != nil {
		return err
	}
	if err := requireSecret("line.channel_access_token", "LINE_CHANNEL_ACCESS_TOKEN", cfg.Line.ChannelAccessToken); err != nil {
		return err
	}
	if cfg.Line.RequestTimeout < 0 {
		return fmt.Errorf("line.request_timeout must not be negative")
	}

	if cfg.Inbox.Capacity <= 0 {
		return fmt.Errorf("inbox.capacity must be positive (got %d)", cfg.Inbox.Capacity)
	}

	if !validPolicyModes[strings.ToLower(cfg.Policy.Mode)] {
		return fmt.Errorf("policy.mode must be one of: noop, logging, auto_reply (got %q)", cfg.Policy.Mode)
	}
	if cfg.Policy.ReplyTimeout < 0 {
		return fmt.Errorf("policy.reply_timeout must not be negative")
	}
	if err := policy.ValidateRules(cfg.Policy.RuleSet()); err != nil {
		return fmt.Errorf("policy.rules: %w", err)
	}

	return nil
}

func requireSecret(field, envName, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required (set %s)", field, envName)
	}
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
