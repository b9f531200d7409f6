package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/multiplay-assistant/internal/guard"
	"github.com/wolfman30/multiplay-assistant/internal/intent"
	"github.com/wolfman30/multiplay-assistant/internal/messaging/compliance"
	"github.com/wolfman30/multiplay-assistant/internal/observability/metrics"
	"github.com/wolfman30/multiplay-assistant/internal/session"
	"github.com/wolfman30/multiplay-assistant/pkg/logging"
)

var engineTracer = otel.Tracer("multiplay.internal.conversation.engine")

// ErrInvalidInbound is returned for inbound messages without a sender.
var ErrInvalidInbound = errors.New("conversation: invalid inbound message")

// errSessionEvicted aborts a history write whose session was swept meanwhile.
var errSessionEvicted = errors.New("conversation: session evicted")

// Inbound is one message received from the webhook.
type Inbound struct {
	Sender     string
	Body       string
	Attachment bool
}

// EngineConfig holds the throttle windows and history bounds.
type EngineConfig struct {
	WelcomeInterval          time.Duration
	OutOfHoursNoticeInterval time.Duration
	AttachmentBlock          time.Duration
	HistoryMaxTurns          int
	HistoryKeepTurns         int
	ContextTurns             int
}

// DefaultEngineConfig mirrors the storefront's production settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WelcomeInterval:          30 * time.Minute,
		OutOfHoursNoticeInterval: 30 * time.Minute,
		AttachmentBlock:          time.Hour,
		HistoryMaxTurns:          20,
		HistoryKeepTurns:         10,
		ContextTurns:             defaultContextTurns,
	}
}

// Engine is the per-sender state machine. It decides under the store's
// per-sender lock and performs all network I/O outside it.
type Engine struct {
	store      session.Store
	classifier *intent.Classifier
	limiter    *guard.RateLimiter
	generator  *Generator
	dispatcher *Dispatcher
	hours      compliance.BusinessHours
	replies    *Replies
	stats      *Stats
	cfg        EngineConfig
	now        func() time.Time
	logger     *logging.Logger
	metrics    *metrics.BotMetrics
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithBusinessHours(h compliance.BusinessHours) EngineOption {
	return func(e *Engine) { e.hours = h }
}

func WithReplies(r *Replies) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.replies = r
		}
	}
}

func WithStats(s *Stats) EngineOption {
	return func(e *Engine) { e.stats = s }
}

func WithEngineConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.BotMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires the state machine. store, classifier, limiter, generator
// and dispatcher are required.
func NewEngine(store session.Store, classifier *intent.Classifier, limiter *guard.RateLimiter, generator *Generator, dispatcher *Dispatcher, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: session store cannot be nil")
	}
	if classifier == nil || limiter == nil || generator == nil || dispatcher == nil {
		panic("conversation: engine collaborators cannot be nil")
	}
	e := &Engine{
		store:      store,
		classifier: classifier,
		limiter:    limiter,
		generator:  generator,
		dispatcher: dispatcher,
		replies:    DefaultReplies(),
		cfg:        DefaultEngineConfig(),
		now:        time.Now,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// decision is computed under the sender's lock.
type decision struct {
	status   Status
	action   Action
	intent   intent.Intent
	platform string
	generate bool
	prior    []session.Turn
}

func (d *decision) reply(status Status, a Action) {
	d.status = status
	d.action = a
}

// Handle runs one inbound message through the guards and the state machine,
// then dispatches the resulting action. Gateway and LLM failures degrade to
// fallbacks and are not returned; only store failures and invalid input are.
func (e *Engine) Handle(ctx context.Context, in Inbound) (Outcome, error) {
	start := time.Now()
	now := e.now()
	sender := strings.TrimSpace(in.Sender)
	if sender == "" {
		return Outcome{}, ErrInvalidInbound
	}

	ctx, span := engineTracer.Start(ctx, "conversation.handle")
	defer span.End()
	span.SetAttributes(attribute.String("multiplay.sender", sender), attribute.Bool("multiplay.attachment", in.Attachment))

	out, err := e.handle(ctx, sender, in, now)
	if err != nil {
		span.RecordError(err)
		e.stats.RecordError()
		e.logger.Error("inbound handling failed", "sender", sender, "body", logging.Preview(in.Body, 50), "error", err)
		return out, err
	}
	span.SetAttributes(attribute.String("multiplay.status", string(out.Status)))
	e.metrics.ObserveInbound(string(out.Status), time.Since(start))
	return out, nil
}

func (e *Engine) handle(ctx context.Context, sender string, in Inbound, now time.Time) (Outcome, error) {
	body := strings.TrimSpace(in.Body)

	if v := e.limiter.Admit(sender, now); !v.Allowed {
		out := Outcome{Status: StatusRateLimited, Action: Noop(), Reason: v.Reason}
		if v.Reason == guard.ReasonSpacing {
			out.Status = StatusSpamDetected
		}
		if v.Warn {
			out.Action = SendText(e.replies.RateLimitWarning)
			e.logger.Warn("sender rate limited", "sender", sender)
		}
		e.deliver(ctx, sender, &out, now)
		return out, nil
	}
	if !in.Attachment && guard.IsSpamContent(body) {
		e.logger.Warn("spam message dropped", "sender", sender, "body", logging.Preview(body, 50))
		return Outcome{Status: StatusSpamDetected, Action: Noop(), Reason: "content"}, nil
	}

	e.stats.RecordMessage(sender)
	e.logger.Info("inbound message", "sender", sender, "body", logging.Preview(body, 50), "attachment", in.Attachment)

	normalized := intent.Normalize(body)
	var dec decision
	_, err := e.store.Update(ctx, sender, func(s *session.Session) error {
		dec = e.decide(s, body, normalized, in.Attachment, now)
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("conversation: update session: %w", err)
	}

	out := Outcome{Status: dec.status, Action: dec.action, Intent: dec.intent, Platform: dec.platform}
	if dec.intent != "" {
		e.metrics.ObserveIntent(string(dec.intent))
	}
	if dec.platform != "" {
		e.stats.RecordPlatform(dec.platform)
		e.metrics.ObservePlatform(dec.platform)
	}

	if dec.generate {
		reply := e.generator.Reply(ctx, body, normalized, dec.prior)
		if reply.Failed {
			e.stats.RecordError()
		}
		out.Action = SendText(reply.Text)
		out.Cached = reply.Cached
		_, err := e.store.Update(ctx, sender, func(s *session.Session) error {
			if s.LastActivityAt.IsZero() {
				return errSessionEvicted
			}
			s.AppendTurn(session.RoleAssistant, reply.Text, e.cfg.HistoryMaxTurns, e.cfg.HistoryKeepTurns)
			return nil
		})
		// The reply still goes out either way; only the history entry is lost.
		switch {
		case errors.Is(err, errSessionEvicted):
			e.logger.Info("session evicted during generation, assistant turn dropped", "sender", sender)
		case err != nil:
			e.logger.Error("failed to record assistant turn", "sender", sender, "error", err)
		}
	}

	e.deliver(ctx, sender, &out, now)
	return out, nil
}

// decide applies the state machine to s in place. It must stay free of I/O
// since it runs under the sender's lock, and it may run more than once when
// the store retries a conflicting write.
func (e *Engine) decide(s *session.Session, body, normalized string, attachment bool, now time.Time) decision {
	var d decision
	s.LastActivityAt = now

	if attachment {
		s.BlockedUntil = now.Add(e.cfg.AttachmentBlock)
		d.reply(StatusBlockedByAttachment, SendText(e.replies.Handoff))
		return d
	}
	if s.Blocked(now) {
		d.reply(StatusWaitingBlock, Noop())
		return d
	}
	s.BlockedUntil = time.Time{}

	res := e.classifier.Classify(normalized, s.InSupportMode)
	d.intent = res.Intent
	switch res.Intent {
	case intent.IntentSupportExit:
		s.InSupportMode = false
		d.reply(StatusSupportClosed, SendText(e.replies.SupportClosed))
		return d
	case intent.IntentSupportActive:
		d.reply(StatusSupportActive, Noop())
		return d
	case intent.IntentSupportEnter:
		s.InSupportMode = true
		d.reply(StatusSupportEnabled, SendText(e.replies.SupportEnabled))
		return d
	}

	if !e.hours.Open(now) {
		d.reply(StatusOutOfHours, Noop())
		if s.LastOutOfHoursNoticeAt.IsZero() || now.Sub(s.LastOutOfHoursNoticeAt) > e.cfg.OutOfHoursNoticeInterval {
			s.LastOutOfHoursNoticeAt = now
			d.action = SendText(e.replies.OutOfHours)
		}
		return d
	}

	switch res.Intent {
	case intent.IntentHumanEscalation:
		d.reply(StatusHumanEscalation, SendText(e.replies.Escalation))
		return d
	case intent.IntentPaymentInfo:
		d.reply(StatusPaymentInfoSent, SendMedia(e.replies.PaymentImageURL, e.replies.PaymentText))
		return d
	case intent.IntentPurchase:
		d.reply(StatusPurchaseInfoSent, SendMedia(e.replies.PaymentImageURL, e.replies.PaymentText))
		return d
	case intent.IntentPlatformLookup:
		if res.Platform == nil {
			break
		}
		caption, err := e.replies.PlatformCard(*res.Platform)
		if err != nil {
			e.logger.Error("platform card render failed", "platform", res.Platform.Key, "error", err)
			break
		}
		d.platform = res.Platform.Key
		d.reply(StatusPlatformSent, SendMedia(res.Platform.ImageURL, caption))
		return d
	}

	if s.LastWelcomeAt.IsZero() || now.Sub(s.LastWelcomeAt) > e.cfg.WelcomeInterval {
		s.LastWelcomeAt = now
		d.reply(StatusWelcomeSent, SendText(e.replies.Welcome))
		return d
	}

	d.prior = s.Tail(e.cfg.ContextTurns)
	s.AppendTurn(session.RoleUser, body, e.cfg.HistoryMaxTurns, e.cfg.HistoryKeepTurns)
	d.generate = true
	d.status = StatusSuccess
	return d
}

func (e *Engine) deliver(ctx context.Context, sender string, out *Outcome, now time.Time) {
	if out.Action.Kind == ActionNoop || out.Action.Kind == "" {
		return
	}
	res, err := e.dispatcher.Dispatch(ctx, sender, out.Action, now)
	if err != nil {
		e.stats.RecordError()
		e.logger.Error("outbound send failed", "sender", sender, "status", out.Status, "error", err)
	}
	out.Delivered = res.Delivered
}

// Counts exposes the session gauges for health reporting.
func (e *Engine) Counts(ctx context.Context) (session.Counts, error) {
	return e.store.Counts(ctx, e.now())
}

// Stats returns the cumulative counters.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// Now reads the engine's clock.
func (e *Engine) Now() time.Time {
	return e.now()
}
