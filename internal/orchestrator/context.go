package orchestrator

import (
	"fmt"
	"strings"

	"concierge/internal/domain/conversation"
	"concierge/internal/domain/session"
)

const basePrompt = `You are a commerce assistant for a small business. Help the customer
find products, assemble an order and answer questions about the business.
Use the available tools for every factual lookup and every cart or order
change. Never invent products, prices or stock. Keep replies short and
conversational. Ask for missing details one at a time.`

// buildSystemPrompt assembles the provider system prompt from the static
// instructions, the long-term memory fragment and the session's working state
func buildSystemPrompt(state *conversation.SessionState, memory *session.Memory, longTermContext string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if longTermContext != "" {
		b.WriteString("\n\nWhat you remember about this customer:\n")
		b.WriteString(longTermContext)
	}

	fmt.Fprintf(&b, "\n\nConversation position: state=%s thread=%s.", state.State, state.Thread)

	if memory.Cart != nil && !memory.Cart.IsEmpty() {
		fmt.Fprintf(&b, "\nThe customer has %d item(s) in the cart, total %s %s.",
			len(memory.Cart.Items), memory.Cart.Total().String(), memory.Cart.Currency)
	}

	if state.InterruptedState != nil {
		b.WriteString("\nAn order flow is paused while answering a side question. After answering, steer back to the order.")
	}

	if memory.Pending.Active() {
		switch {
		case memory.Pending.QuantityQuery != nil:
			fmt.Fprintf(&b, "\nYou are waiting for a quantity for %q.", memory.Pending.QuantityQuery.Name)
		case memory.Pending.OrderDetails != nil:
			fmt.Fprintf(&b, "\nYou are collecting order details; still missing: %s.",
				strings.Join(memory.Pending.OrderDetails.MissingFields, ", "))
		}
	}

	if memory.PendingConfirmation != nil {
		fmt.Fprintf(&b, "\nA %s call is awaiting the customer's explicit confirmation. Do not call it again; wait for a clear yes or no.",
			memory.PendingConfirmation.Tool)
	}

	return b.String()
}
