package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/linedesk/internal/events"
	"github.com/mattjoyce/linedesk/internal/inbox"
	"github.com/mattjoyce/linedesk/internal/policy"
)

// Path serves both the signed POST and the operator's polling GET.
const Path = "/api/line/webhook"

// Inbox is the buffer capability the handler needs.
type Inbox interface {
	inbox.Appender
	inbox.Drainer
	Len() int
}

// Handler ingests webhook deliveries and serves the drain read.
type Handler struct {
	config Config
	inbox  Inbox
	policy policy.Policy
	pub    events.Publisher
	logger *slog.Logger
}

// New creates a handler. A nil policy means policy.NoOp; pub may be nil.
func New(config Config, in Inbox, p policy.Policy, pub events.Publisher, logger *slog.Logger) *Handler {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if p == nil {
		p = policy.NoOp{}
	}
	return &Handler{
		config: config,
		inbox:  in,
		policy: p,
		pub:    pub,
		logger: logger,
	}
}

// Routes registers the webhook and drain endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post(Path, h.HandleWebhook)
	r.Get(Path, h.HandleDrain)
}

// HandleWebhook verifies, parses and processes one delivery.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Read one byte past the limit to detect oversize bodies.
	body, err := io.ReadAll(io.LimitReader(r.Body, h.config.MaxBodySize+1))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > h.config.MaxBodySize {
		respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if err := Verify(body, r.Header.Get(SignatureHeader), h.config.Secret); err != nil {
		h.logger.Warn("webhook signature verification failed",
			"error", err,
			"path", r.URL.Path,
			"signature_present", r.Header.Get(SignatureHeader) != "",
			"request_id", middleware.GetReqID(ctx),
		)
		respondError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	// Parse the whole delivery before touching the buffer so a corrupt body
	// buffers nothing.
	var delivery Delivery
	if err := json.Unmarshal(body, &delivery); err != nil {
		h.logger.Error("webhook payload malformed", "error", err, "request_id", middleware.GetReqID(ctx))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	accepted := Extract(delivery.Events)
	failed := 0
	for _, acc := range accepted {
		if err := h.process(ctx, acc); err != nil {
			failed++
			h.logger.Error("webhook event failed",
				"message_id", acc.Message.ID,
				"webhook_event_id", acc.WebhookEventID,
				"error", err,
			)
		}
	}

	h.logger.Info("webhook delivery processed",
		"events", len(delivery.Events),
		"accepted", len(accepted),
		"failed", failed,
		"buffered", h.inbox.Len(),
		"request_id", middleware.GetReqID(ctx),
	)

	respondJSON(w, http.StatusOK, OKResponse{Status: "ok"})
}

// HandleDrain returns every buffered message and empties the buffer.
func (h *Handler) HandleDrain(w http.ResponseWriter, r *http.Request) {
	msgs := h.inbox.DrainAll()
	if len(msgs) > 0 {
		h.logger.Debug("inbox drained", "messages", len(msgs))
	}
	respondJSON(w, http.StatusOK, DrainResponse{Messages: msgs})
}

// process handles one accepted event. A panic is turned into an error so the
// rest of the batch still runs.
func (h *Handler) process(ctx context.Context, acc Accepted) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if acc.Redelivery {
		// Redeliveries are buffered again; the buffer does not deduplicate.
		h.logger.Warn("redelivered event buffered again",
			"message_id", acc.Message.ID,
			"webhook_event_id", acc.WebhookEventID,
		)
	}

	h.inbox.Append(acc.Message)

	if h.pub != nil {
		h.pub.Publish(events.MessageBuffered, BufferedNotice{
			MessageID: acc.Message.ID,
			SenderID:  acc.Message.SenderID,
			Buffered:  h.inbox.Len(),
		})
	}

	h.policy.Handle(ctx, policy.Event{Message: acc.Message, ReplyToken: acc.ReplyToken})
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
