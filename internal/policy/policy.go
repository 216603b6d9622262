// Package policy decides what happens to an accepted inbound text message
// after it has been buffered.
//
// Exactly one policy is active per process, chosen by configuration:
//
//	noop        nothing
//	logging     log message metadata (never the text itself)
//	auto_reply  keyword auto-responder, first matching rule wins
//
// Replies are sent as detached tasks on a Dispatcher so a slow or failing
// platform call never holds up the webhook response.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattjoyce/linedesk/internal/inbox"
)

//go:generate mockgen -destination=mocks/mock_replier.go -package=mocks github.com/mattjoyce/linedesk/internal/policy Replier

// Replier sends a text reply bound to a reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Modes accepted in configuration.
const (
	ModeNoOp      = "noop"
	ModeLogging   = "logging"
	ModeAutoReply = "auto_reply"
)

// Event is an accepted message plus the handle needed to answer it.
type Event struct {
	Message    inbox.Message
	ReplyToken string
}

// Policy handles one accepted event. Handle must not block on network I/O.
type Policy interface {
	Name() string
	Handle(ctx context.Context, ev Event)
}

// Config selects and parameterizes a policy.
type Config struct {
	Mode  string
	Rules []Rule
}

// New builds the policy named by cfg.Mode. An empty mode means noop.
// Rules default to DefaultRules when auto_reply is selected without any.
func New(cfg Config, dispatcher *Dispatcher, logger *slog.Logger) (Policy, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", ModeNoOp:
		return NoOp{}, nil
	case ModeLogging:
		return &Logging{logger: logger}, nil
	case ModeAutoReply:
		if dispatcher == nil {
			return nil, fmt.Errorf("policy %q requires a reply dispatcher", ModeAutoReply)
		}
		rules := cfg.Rules
		if len(rules) == 0 {
			rules = DefaultRules()
		}
		if err := ValidateRules(rules); err != nil {
			return nil, err
		}
		return NewAutoReply(rules, dispatcher, logger), nil
	default:
		return nil, fmt.Errorf("unknown policy mode %q (want %s, %s or %s)", cfg.Mode, ModeNoOp, ModeLogging, ModeAutoReply)
	}
}

// NoOp ignores every event.
type NoOp struct{}

func (NoOp) Name() string                   { return ModeNoOp }
func (NoOp) Handle(context.Context, Event) {}
