package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/multiplay-assistant/internal/intent"
	"github.com/wolfman30/multiplay-assistant/internal/messaging/templates"
)

const platformCardTemplate = "platform_card"

// Replies holds the canned storefront texts.
type Replies struct {
	Welcome          string
	SupportEnabled   string
	SupportClosed    string
	Handoff          string
	OutOfHours       string
	Escalation       string
	PaymentText      string
	PaymentImageURL  string
	RateLimitWarning string
	Apology          string
	SystemPrompt     string

	renderer *templates.Renderer
}

// DefaultReplies returns the Multiplay Multimarca texts.
func DefaultReplies() *Replies {
	r, err := NewReplies(defaultPlatformCard)
	if err != nil {
		panic(err)
	}
	return r
}

// NewReplies builds the default texts with a custom platform card template.
// The template sees .Name and .Price.
func NewReplies(cardTemplate string) (*Replies, error) {
	renderer := templates.NewRenderer()
	if err := renderer.Register(platformCardTemplate, cardTemplate); err != nil {
		return nil, fmt.Errorf("conversation: platform card: %w", err)
	}
	return &Replies{
		Welcome:          welcomeText,
		SupportEnabled:   "🔧 *MODO SOPORTE ACTIVADO*\n\n📸 Por favor, envíanos una foto del error y una breve descripción de lo que sucede. Un asesor te atenderá pronto.\n\nEscribe 'solucionado' cuando se resuelva tu problema.",
		SupportClosed:    "✅ Nos alegra que se haya solucionado. Ya puedes continuar con normalidad 😊",
		Handoff:          "🕒 Hemos recibido tu solicitud. En un momento uno de nuestros encargados se comunicará contigo. Muchas gracias por tu paciencia.",
		OutOfHours:       "😴 Nuestro equipo está descansando en este momento (11:00 PM - 7:00 AM). Te atenderemos en el horario habitual. ¡Gracias por tu paciencia!",
		Escalation:       "📩 Ya estamos informando a uno de nuestros asesores para que te contacte. ¡Gracias por tu paciencia!",
		PaymentText:      paymentText,
		PaymentImageURL:  "https://i.postimg.cc/SRyhCnY9/Medio-De-Pago-Actualizado.png",
		RateLimitWarning: "⚠️ Has enviado muchos mensajes. Por favor espera un momento antes de continuar.",
		Apology:          "😓 Lo siento, hubo un problema técnico. Pronto te ayudamos. Puedes escribir el nombre de cualquier plataforma para ver nuestras opciones.",
		SystemPrompt:     systemPrompt,
		renderer:         renderer,
	}, nil
}

// PlatformCard renders the caption sent with a platform image.
func (r *Replies) PlatformCard(p intent.Platform) (string, error) {
	return r.renderer.Render(platformCardTemplate, map[string]string{
		"Name":  p.DisplayName,
		"Price": p.Price,
	})
}

// CatalogPrompt lists the catalog by category so the model quotes real prices.
func CatalogPrompt(c *intent.Catalog) string {
	if c == nil || c.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Catálogo actual (precio por 1 mes, COP):")
	for _, cat := range c.Categories() {
		b.WriteString("\n- ")
		b.WriteString(cat)
		b.WriteString(": ")
		platforms := c.ByCategory(cat)
		for i, p := range platforms {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s $%s", p.DisplayName, p.Price)
		}
	}
	return b.String()
}

const defaultPlatformCard = `🔴 *{{.Name}}*: accede al catálogo global con 1 mes de servicio por solo *${{.Price}} COP* 🎥✨

♾️ Garantía incluida
🛠️ Estabilidad asegurada
🕐 Soporte rápido 24/7
📲 Entrega inmediata

💳 Escribe "metodos de pago" para conocer nuestras opciones de pago

🎯 ¿Te interesa otra plataforma? Solo escribe su nombre.`

const paymentText = `💳 *MÉTODOS DE PAGO DISPONIBLES*

> 🟦 *Nequi*: 3144413062 (JH** VAR***)

> 🟥 *Daviplata*: 3144413062

> 🟨 *Bancolombia*: 912-683039-91 (Cuenta de Ahorros)

📸 Por favor, envía el comprobante a este *WHATSAPP* y confirmaremos tu pedido. ¡Gracias por tu compra!

> 🔧 Si tienes alguna duda, escribe "soporte" y te atenderemos de inmediato`

const welcomeText = `¡Hola! 👋 Gracias por comunicarte con *Multiplay Multimarca*. 🌟

Somos tu tienda digital de confianza para cuentas premium de entretenimiento.

🎁 Te ofrecemos acceso a las mejores plataformas, con garantía, entrega inmediata y soporte 24/7.

📲 *ESCRIBE EL NOMBRE DE LA PLATAFORMA QUE TE INTERESA:*

> 🎨 Canva
> 🎬 Netflix
> 🎞️ HBO Max
> 📺 YouTube Premium
> 🎥 ViX+
> ⚽ DGO (WIN Sports)
> 📼 Disney+
> 🎧 Spotify
> 📦 Prime Video
> 🔞 Pornhub Premium
> 🔥 OnlyFans (con saldo)
> 💼 Office 365
> 🦉 Duolingo

> 🔧 *SOPORTE TÉCNICO*: Si tienes algún problema, escribe "soporte"

✨ ¡Gracias por elegirnos!`

const systemPrompt = `Eres un asistente virtual experto en ventas para MULTIPLAY MULTIMARCA, tienda colombiana de cuentas premium de entretenimiento digital.

✨ Misión:
- Atender con amabilidad y rapidez
- Informar precios y beneficios claramente
- Guiar hacia la compra
- Resolver dudas frecuentes

✅ Garantías:
- Entrega inmediata
- Soporte 24/7
- Duración 30 días
- Privacidad garantizada

Usa emojis de forma moderada. Responde de forma natural como un asesor humano de ventas.
Siempre sugiere opciones de plataformas disponibles si el usuario no es específico.`
