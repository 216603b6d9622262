package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

// Rule maps a keyword set to a canned reply.
type Rule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

// DefaultRules is the built-in ruleset, in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "greeting",
			Keywords: []string{"สวัสดี", "hello"},
			Reply:    "สวัสดีครับ! ยินดีต้อนรับสู่ Robolingo-BOT มีอะไรให้ช่วยไหมครับ?",
		},
		{
			Name:     "price",
			Keywords: []string{"ราคา", "price"},
			Reply:    "สินค้าราคา 500 บาทครับ สนใจรับกี่ชิ้นดีครับ?",
		},
		{
			Name:     "contact",
			Keywords: []string{"เบอร์ติดต่อ", "contact"},
			Reply:    "ติดต่อเราได้ที่เบอร์ 089-xxx-xxxx ครับ",
		},
	}
}

// ValidateRules rejects rules that could never fire or would send nothing.
func ValidateRules(rules []Rule) error {
	for i, r := range rules {
		if strings.TrimSpace(r.Reply) == "" {
			return fmt.Errorf("rule[%d] (%s): reply is required", i, r.Name)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("rule[%d] (%s): at least one keyword is required", i, r.Name)
		}
		for j, k := range r.Keywords {
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("rule[%d] (%s): keyword[%d] is empty", i, r.Name, j)
			}
		}
	}
	return nil
}

// Match returns the first rule with a keyword contained in text,
// compared case-insensitively.
func Match(rules []Rule, text string) (Rule, bool) {
	lower := strings.ToLower(text)
	return lo.Find(rules, func(r Rule) bool {
		return lo.ContainsBy(r.Keywords, func(k string) bool {
			return strings.Contains(lower, strings.ToLower(k))
		})
	})
}

// AutoReply answers messages that match a keyword rule.
type AutoReply struct {
	rules      []Rule
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewAutoReply builds the responder. Rules are evaluated in the given order.
func NewAutoReply(rules []Rule, dispatcher *Dispatcher, logger *slog.Logger) *AutoReply {
	return &AutoReply{rules: rules, dispatcher: dispatcher, logger: logger}
}

func (p *AutoReply) Name() string { return ModeAutoReply }

func (p *AutoReply) Handle(ctx context.Context, ev Event) {
	rule, ok := Match(p.rules, ev.Message.Text)
	if !ok {
		return
	}
	if ev.ReplyToken == "" {
		p.logger.Debug("rule matched without reply token", "rule", rule.Name, "message_id", ev.Message.ID)
		return
	}
	p.dispatcher.Reply(ctx, ReplyTask{
		MessageID:  ev.Message.ID,
		Rule:       rule.Name,
		ReplyToken: ev.ReplyToken,
		Text:       rule.Reply,
	})
}
