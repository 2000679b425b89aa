// Package notify composes and sends the failure e-mail a strategy triggers
// when it fails with mail enabled. Plain net/smtp: the relay is
// operator-local and unauthenticated in the common case, so a full mail
// client library would be dead weight.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/atasvc/sonata/internal/persistence"
)

// MailerConfig is the operator-configured SMTP relay and recipient list.
type MailerConfig struct {
	SMTPHost string
	SMTPPort int
	From     string
	To       []string
	Auth     smtp.Auth
}

// Mailer sends strategy-failure notifications.
type Mailer struct {
	cfg MailerConfig
}

func NewMailer(cfg MailerConfig) *Mailer { return &Mailer{cfg: cfg} }

// NotifyStrategyFailure composes a message containing the last N failed
// activities' summary rows and sends it to the configured address list.
func (m *Mailer) NotifyStrategyFailure(strategyName string, failures []persistence.FailedActivitySummary) error {
	if len(m.cfg.To) == 0 {
		return nil
	}
	body := composeBody(strategyName, failures)
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	msg := buildMessage(m.cfg.From, m.cfg.To, fmt.Sprintf("sonata: strategy %q failed", strategyName), body)
	return smtp.SendMail(addr, m.cfg.Auth, m.cfg.From, m.cfg.To, msg)
}

func composeBody(strategyName string, failures []persistence.FailedActivitySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Strategy %q has failed.\n\nLast %d failed activities:\n\n", strategyName, len(failures))
	for _, f := range failures {
		fmt.Fprintf(&b, "  activity %d (%s) failed at %s: %s\n",
			f.ActivityID, f.ActivityType, f.FailedAt.Format(time.RFC3339), f.ErrorComment)
	}
	return b.String()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
