package policy

import (
	"context"
	"encoding/hex"
	"log/slog"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/linedesk/internal/log"
)

// Logging records that a message arrived. The text is reduced to its length
// and a BLAKE3 digest so logs can correlate duplicates without holding content.
type Logging struct {
	logger *slog.Logger
}

func (p *Logging) Name() string { return ModeLogging }

func (p *Logging) Handle(ctx context.Context, ev Event) {
	log.WithSender(p.logger, ev.Message.SenderID).InfoContext(ctx, "inbound message",
		"message_id", ev.Message.ID,
		"text_runes", utf8.RuneCountInString(ev.Message.Text),
		"text_digest", TextDigest(ev.Message.Text),
	)
}

// TextDigest returns the hex BLAKE3-256 digest of text.
func TextDigest(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
