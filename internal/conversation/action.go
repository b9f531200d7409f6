package conversation

import "github.com/wolfman30/multiplay-assistant/internal/intent"

// ActionKind is what the engine asks the dispatcher to do.
type ActionKind string

const (
	ActionNoop      ActionKind = "noop"
	ActionSendText  ActionKind = "send_text"
	ActionSendMedia ActionKind = "send_media"
)

// Action is a single outbound instruction.
type Action struct {
	Kind     ActionKind
	Text     string
	MediaURL string
	Caption  string
}

func Noop() Action { return Action{Kind: ActionNoop} }

func SendText(text string) Action { return Action{Kind: ActionSendText, Text: text} }

func SendMedia(url, caption string) Action {
	return Action{Kind: ActionSendMedia, MediaURL: url, Caption: caption}
}

// Body is the text the deduplicator keys on.
func (a Action) Body() string {
	if a.Kind == ActionSendMedia {
		return a.Caption
	}
	return a.Text
}

// Status labels the branch an inbound message took.
type Status string

const (
	StatusSpamDetected        Status = "spam_detected"
	StatusRateLimited         Status = "rate_limited"
	StatusBlockedByAttachment Status = "blocked_by_attachment"
	StatusWaitingBlock        Status = "waiting_block"
	StatusSupportClosed       Status = "support_closed"
	StatusSupportActive       Status = "support_active"
	StatusSupportEnabled      Status = "support_enabled"
	StatusOutOfHours          Status = "out_of_hours"
	StatusHumanEscalation     Status = "human_escalation"
	StatusPaymentInfoSent     Status = "payment_info_sent"
	StatusPurchaseInfoSent    Status = "purchase_info_sent"
	StatusPlatformSent        Status = "platform_sent"
	StatusWelcomeSent         Status = "welcome_sent"
	StatusSuccess             Status = "success"
)

// Outcome reports what Handle decided and whether anything went out.
type Outcome struct {
	Status   Status
	Action   Action
	Intent   intent.Intent
	Platform string
	// Reason carries the guard's rejection reason, if any.
	Reason    string
	Cached    bool
	Delivered bool
}
