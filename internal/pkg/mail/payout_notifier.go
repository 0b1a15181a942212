package mail

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// PayoutNotifier emails photographers whose earnings are waiting on payout setup.
type PayoutNotifier struct {
	dashboardURL string
	send         func(to, subject, body string) error
}

// NewPayoutNotifier builds a notifier that links to the given dashboard URL.
func NewPayoutNotifier(dashboardURL string) *PayoutNotifier {
	return &PayoutNotifier{
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		send:         SendMail,
	}
}

// NotifyPayoutPending sends the "set up payouts" email. Missing recipients are a no-op.
func (n *PayoutNotifier) NotifyPayoutPending(ctx context.Context, to string, galleryID string, amountCents int64) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("You have %s waiting for payout", formatCents(amountCents))
	return n.send(to, subject, n.payoutPendingBody(galleryID, amountCents))
}

func (n *PayoutNotifier) payoutPendingBody(galleryID string, amountCents int64) string {
	var b strings.Builder
	b.WriteString("<p>A client just paid for one of your galleries.</p>")
	fmt.Fprintf(&b, "<p>Your share of <strong>%s</strong> for gallery <code>%s</code> is on hold ",
		formatCents(amountCents), html.EscapeString(galleryID))
	b.WriteString("because your payout account is not connected yet.</p>")
	if n.dashboardURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s/settings/payouts">Connect your payout account</a> and we will send the transfer automatically.</p>`,
			html.EscapeString(n.dashboardURL))
	} else {
		b.WriteString("<p>Connect your payout account from your settings and we will send the transfer automatically.</p>")
	}
	return b.String()
}

// formatCents renders an amount in cents as dollars, e.g. 12345 -> $123.45
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
