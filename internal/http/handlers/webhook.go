package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/wolfman30/multiplay-assistant/internal/conversation"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

const (
	maxWebhookBody  = 1 << 20
	minSenderLength = 10
	gatewaySuffix   = "@c.us"
)

// ErrInvalidPayload marks webhook bodies that fail structural validation.
var ErrInvalidPayload = errors.New("handlers: invalid webhook payload")

// payloadError carries the client-facing reason for a rejected payload.
type payloadError struct {
	reason string
}

func (e *payloadError) Error() string { return ErrInvalidPayload.Error() + ": " + e.reason }

func (e *payloadError) Is(target error) bool { return target == ErrInvalidPayload }

func invalidPayload(format string, args ...any) error {
	return &payloadError{reason: fmt.Sprintf(format, args...)}
}

var attachmentTypes = map[string]bool{
	"image":    true,
	"document": true,
	"video":    true,
	"audio":    true,
	"ptt":      true,
	"sticker":  true,
}

type inboundHandler interface {
	Handle(ctx context.Context, in conversation.Inbound) (conversation.Outcome, error)
}

// WebhookHandler accepts gateway callbacks and feeds them to the engine.
type WebhookHandler struct {
	engine inboundHandler
	logger *logging.Logger
}

func NewWebhookHandler(engine inboundHandler, logger *logging.Logger) *WebhookHandler {
	if engine == nil {
		panic("handlers: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{engine: engine, logger: logger}
}

type webhookPayload struct {
	Data *webhookMessage `json:"data"`
}

type webhookMessage struct {
	From *string `json:"from"`
	Body string  `json:"body"`
	Type string  `json:"type"`
}

type webhookResponse struct {
	Status   string `json:"status"`
	Platform string `json:"platform,omitempty"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in, err := parseInbound(r)
	if err != nil {
		h.logger.Warn("invalid webhook", "error", err)
		var pe *payloadError
		reason := "invalid payload"
		if errors.As(err, &pe) {
			reason = pe.reason
		}
		jsonError(w, reason, http.StatusBadRequest)
		return
	}

	out, err := h.engine.Handle(r.Context(), in)
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidInbound) {
			jsonError(w, "invalid sender", http.StatusBadRequest)
			return
		}
		h.logger.Error("webhook handling failed", "sender", in.Sender, "body", logging.Preview(in.Body, 50), "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if out.Status == conversation.StatusRateLimited {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, webhookResponse{Status: string(out.Status), Platform: out.Platform})
}

// parseInbound reads the UltraMsg JSON envelope or a plain form post.
func parseInbound(r *http.Request) (conversation.Inbound, error) {
	var msg webhookMessage
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(nil, r.Body, maxWebhookBody)
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxWebhookBody)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return conversation.Inbound{}, invalidPayload("malformed form")
		}
		if !r.Form.Has("from") {
			return conversation.Inbound{}, invalidPayload("required field 'from' not found")
		}
		from := r.Form.Get("from")
		msg = webhookMessage{From: &from, Body: r.Form.Get("body"), Type: r.Form.Get("type")}
	default:
		data, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			return conversation.Inbound{}, invalidPayload("unreadable body")
		}
		var payload webhookPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return conversation.Inbound{}, invalidPayload("malformed json")
		}
		if payload.Data == nil {
			return conversation.Inbound{}, invalidPayload("invalid webhook structure")
		}
		if payload.Data.From == nil {
			return conversation.Inbound{}, invalidPayload("required field 'from' not found")
		}
		msg = *payload.Data
	}

	sender := strings.TrimSuffix(strings.TrimSpace(*msg.From), gatewaySuffix)
	if len(sender) < minSenderLength {
		return conversation.Inbound{}, invalidPayload("invalid phone number %q", sender)
	}
	return conversation.Inbound{
		Sender:     sender,
		Body:       strings.TrimSpace(msg.Body),
		Attachment: attachmentTypes[strings.ToLower(strings.TrimSpace(msg.Type))],
	}, nil
}
