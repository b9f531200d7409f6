package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/multiplay-assistant/internal/guard"
	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

// Messenger delivers outbound messages through the chat gateway.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendMedia(ctx context.Context, to, mediaURL, caption string) error
}

// DispatchResult describes what happened to one action.
type DispatchResult struct {
	Delivered  bool
	Suppressed bool
	// FellBack is set when a media send failed and the caption went out as text.
	FellBack bool
}

// Dispatcher turns actions into gateway sends, gated by the deduplicator.
type Dispatcher struct {
	messenger Messenger
	dedup     *guard.Deduplicator
	logger    *logging.Logger
	metrics   *metrics.BotMetrics
}

// NewDispatcher builds a dispatcher. A nil dedup disables duplicate suppression.
func NewDispatcher(messenger Messenger, dedup *guard.Deduplicator, logger *logging.Logger, m *metrics.BotMetrics) *Dispatcher {
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		messenger: messenger,
		dedup:     dedup,
		logger:    logger,
		metrics:   m,
	}
}

// Dispatch sends a to the recipient; now is the instant the duplicate check is
// evaluated at. Sends are attempted once; a failed media send is retried as
// plain text carrying the caption.
func (d *Dispatcher) Dispatch(ctx context.Context, to string, a Action, now time.Time) (DispatchResult, error) {
	if a.Kind == ActionNoop || a.Kind == "" {
		return DispatchResult{}, nil
	}
	body := a.Body()
	if strings.TrimSpace(body) == "" && a.Kind == ActionSendText {
		return DispatchResult{}, errors.New("conversation: empty outbound text")
	}
	kind := "text"
	if a.Kind == ActionSendMedia {
		kind = "media"
	}
	if d.dedup != nil && !d.dedup.Claim(to, body, now) {
		d.metrics.ObserveOutbound(kind, "suppressed")
		d.logger.Debug("duplicate outbound suppressed", "to", to, "body", logging.Preview(body, 50))
		return DispatchResult{Suppressed: true}, nil
	}

	switch a.Kind {
	case ActionSendText:
		if err := d.messenger.SendText(ctx, to, a.Text); err != nil {
			d.metrics.ObserveOutbound(kind, "failed")
			return DispatchResult{}, fmt.Errorf("conversation: send text: %w", err)
		}
		d.metrics.ObserveOutbound(kind, "sent")
		return DispatchResult{Delivered: true}, nil

	case ActionSendMedia:
		err := d.messenger.SendMedia(ctx, to, a.MediaURL, a.Caption)
		if err == nil {
			d.metrics.ObserveOutbound(kind, "sent")
			return DispatchResult{Delivered: true}, nil
		}
		d.logger.Warn("media send failed, falling back to text", "to", to, "error", err)
		if textErr := d.messenger.SendText(ctx, to, a.Caption); textErr != nil {
			d.metrics.ObserveOutbound(kind, "failed")
			return DispatchResult{FellBack: true}, fmt.Errorf("conversation: send media: %w", errors.Join(err, textErr))
		}
		d.metrics.ObserveOutbound(kind, "fallback")
		return DispatchResult{Delivered: true, FellBack: true}, nil
	}
	return DispatchResult{}, fmt.Errorf("conversation: unknown action kind %q", a.Kind)
}
