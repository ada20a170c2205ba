package wa

import (
	"fmt"
	"strings"

	"shopbot/internal/checkout"
)

// Render flattens a checkout message into WhatsApp text. Choices become a
// numbered list so customers can reply with the option number.
func Render(msg checkout.Message) string {
	var b strings.Builder

	if msg.Title != "" {
		b.WriteString("*")
		b.WriteString(msg.Title)
		b.WriteString("*\n\n")
	}
	if msg.Body != "" {
		b.WriteString(msg.Body)
	}

	switch msg.Kind {
	case checkout.KindChoices:
		if len(msg.Choices) > 0 {
			b.WriteString("\n")
			for i, choice := range msg.Choices {
				b.WriteString(fmt.Sprintf("\n%d. %s", i+1, choice.Title))
				if choice.Description != "" {
					b.WriteString(" - ")
					b.WriteString(choice.Description)
				}
			}
			b.WriteString("\n\nReply with the number of your choice.")
		}
	case checkout.KindLocationRequest:
		b.WriteString("\n\nUse the attach button to share your location.")
	case checkout.KindPaymentLink:
		if msg.PaymentURL != "" {
			b.WriteString("\n\n")
			b.WriteString(msg.PaymentURL)
		}
	}

	return strings.TrimSpace(b.String())
}
