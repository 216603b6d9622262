package config

import (
	"time"

	"github.com/mattjoyce/linedesk/internal/policy"
)

// Config represents the complete linedesk configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Server  ServerConfig  `yaml:"server"`
	Line    LineConfig    `yaml:"line"`
	Inbox   InboxConfig   `yaml:"inbox"`
	Policy  PolicyConfig  `yaml:"policy"`

	// SourceFile is the file the config was read from; empty when running
	// from defaults and environment only.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// PIDFile, when set, is locked at start so only one instance owns the inbox.
	PIDFile string `yaml:"pid_file,omitempty"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// MaxBodySize accepts "1MB", "512KB" or a plain byte count.
	MaxBodySize    string   `yaml:"max_body_size"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// EventBacklog is how many notifications are replayed to late SSE clients.
	EventBacklog int `yaml:"event_backlog"`
}

// LineConfig holds Messaging API credentials and client settings.
type LineConfig struct {
	// ChannelSecret keys the webhook HMAC.
	ChannelSecret string `yaml:"channel_secret"`
	// ChannelAccessToken is the bearer token for reply and push.
	ChannelAccessToken string        `yaml:"channel_access_token"`
	APIBaseURL         string        `yaml:"api_base_url,omitempty"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
}

// InboxConfig sizes the unread message buffer.
type InboxConfig struct {
	Capacity int `yaml:"capacity"`
}

// PolicyConfig selects what happens to accepted messages.
type PolicyConfig struct {
	Mode         string        `yaml:"mode"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
	Rules        []RuleConfig  `yaml:"rules,omitempty"`
}

// RuleConfig is one auto-reply keyword rule.
type RuleConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

// RuleSet converts the configured rules to policy rules. No rules yields nil,
// which selects the built-in set.
func (p PolicyConfig) RuleSet() []policy.Rule {
	if len(p.Rules) == 0 {
		return nil
	}
	out := make([]policy.Rule, 0, len(p.Rules))
	for _, r := range p.Rules {
		out = append(out, policy.Rule{Name: r.Name, Keywords: r.Keywords, Reply: r.Reply})
	}
	return out
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "linedesk",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:       "127.0.0.1:3000",
			MaxBodySize:  "1MB",
			EventBacklog: 100,
		},
		Line: LineConfig{
			APIBaseURL:     "https://api.line.me",
			RequestTimeout: 10 * time.Second,
		},
		Inbox: InboxConfig{
			Capacity: 50,
		},
		Policy: PolicyConfig{
			Mode:         "noop",
			ReplyTimeout: 10 * time.Second,
		},
	}
}
