package webhook

import (
	"fmt"

	"github.com/mattjoyce/linedesk/internal/config"
)

// DefaultMaxBodySize caps a delivery body when none is configured.
const DefaultMaxBodySize = config.DefaultMaxBodySize

// Config holds webhook ingestion settings.
type Config struct {
	// Secret is the channel secret used as the HMAC key.
	Secret string
	// MaxBodySize is the largest accepted body in bytes.
	MaxBodySize int64
}

// FromGlobalConfig converts the service configuration to webhook.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	if cfg.Line.ChannelSecret == "" {
		return Config{}, fmt.Errorf("webhook: channel secret is not configured")
	}

	maxBodySize, err := config.ParseByteSize(cfg.Server.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("webhook: invalid max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}

	return Config{
		Secret:      cfg.Line.ChannelSecret,
		MaxBodySize: maxBodySize,
	}, nil
}
