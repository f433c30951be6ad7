package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPSender sends alerts via email
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(host string, port int, user, password, from string, to []string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

// Send sends the alert via email
func (s *SMTPSender) Send(ctx context.Context, payload *AlertPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("[%s] %d whales on %s %s", payload.Severity, payload.WalletCount, payload.Direction, truncate(payload.MarketName, 80))

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(s.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(buildEmailBody(payload))

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.password, s.host)
	}
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	if err := s.sendMail(addr, auth, s.from, s.to, []byte(msg.String())); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func buildEmailBody(p *AlertPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "WHALE CONSENSUS - %s\n", p.Severity)
	b.WriteString("═══════════════════════════════════════\n\n")
	b.WriteString("SIGNAL\n")
	b.WriteString("─────────────────────────────────────\n")
	fmt.Fprintf(&b, "Market:         %s\n", p.MarketName)
	fmt.Fprintf(&b, "Outcome:        %s %s\n", p.Direction, p.OutcomeLabel)
	fmt.Fprintf(&b, "Category:       %s\n", p.Category)
	fmt.Fprintf(&b, "Price:          %.3f (whale avg entry %.3f)\n", p.CurrentPrice, p.AvgEntryPrice)
	fmt.Fprintf(&b, "Alpha Score:    %d/100\n", p.AlphaScore)
	fmt.Fprintf(&b, "Suggested Size: $%.2f (%s)\n", p.RecommendedSize, p.Strategy)
	if p.MarketURL != "" {
		fmt.Fprintf(&b, "Market URL:     %s\n", p.MarketURL)
	}
	b.WriteString("\nWALLETS\n")
	b.WriteString("─────────────────────────────────────\n")
	fmt.Fprintf(&b, "Count:          %d (weighted quality %d/100)\n", p.WalletCount, p.WeightedScore)
	for _, c := range p.Contributors {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	b.WriteString("\n═══════════════════════════════════════\n")
	fmt.Fprintf(&b, "Environment: %s\n", p.Environment)
	fmt.Fprintf(&b, "Generated: %s\n", p.Timestamp.UTC().Format(time.RFC3339))
	return b.String()
}
