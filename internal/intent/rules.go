package intent

import "strings"

// Intent is the symbolic classification of a normalized message.
type Intent string

const (
	IntentNone            Intent = "none"
	IntentSupportExit     Intent = "support_exit"
	IntentSupportActive   Intent = "support_active"
	IntentSupportEnter    Intent = "support_enter"
	IntentHumanEscalation Intent = "human_escalation"
	IntentPaymentInfo     Intent = "payment_info"
	IntentPurchase        Intent = "purchase_intent"
	IntentPlatformLookup  Intent = "platform_lookup"
)

// Rule matches when the text contains any of its phrases. A rule without
// phrases matches every text. RequiresSupport rules only apply to senders
// currently in support mode.
type Rule struct {
	Intent          Intent
	Phrases         []string
	RequiresSupport bool
}

// DefaultRules returns the storefront rule table in precedence order.
// Matching is raw substring containment: "listo" inside a longer word still
// triggers, and "ayuda urgente" lands on support before escalation.
func DefaultRules() []Rule {
	return []Rule{
		{
			Intent:          IntentSupportExit,
			RequiresSupport: true,
			Phrases:         []string{"solucionado", "ya me ayudaron", "gracias", "ya lo resolví", "resuelto", "listo"},
		},
		{
			Intent:          IntentSupportActive,
			RequiresSupport: true,
		},
		{
			Intent:  IntentSupportEnter,
			Phrases: []string{"soporte", "ayuda"},
		},
		{
			Intent:  IntentHumanEscalation,
			Phrases: []string{"urgente", "asesor", "humano", "ayuda urgente", "hablar con alguien", "operador"},
		},
		{
			Intent:  IntentPaymentInfo,
			Phrases: []string{"métodos de pago", "método de pago", "cómo pago", "métodos", "medios de pago"},
		},
		{
			Intent: IntentPurchase,
			Phrases: []string{
				"pagar", "quiero pagar", "listo", "quiero comprar", "comprar ahora",
				"lo compro", "ya lo compro", "si lo compro", "quiero comprarlo",
				"quiero comprar ahora", "quiero comprar ya", "hacer pedido", "realizar pedido",
			},
		},
	}
}

func (r Rule) match(text string, inSupport bool) (string, bool) {
	if r.RequiresSupport && !inSupport {
		return "", false
	}
	if len(r.Phrases) == 0 {
		return "", true
	}
	for _, phrase := range r.Phrases {
		if phrase != "" && strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}
