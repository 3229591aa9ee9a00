// Package notify delivers credential emails to newly provisioned accounts.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"

	"github.com/JonMunkholm/schoolbulk/internal/core"
	"github.com/JonMunkholm/schoolbulk/internal/logging"
)

var roleLabels = map[core.AccountRole]string{
	core.RoleStudent:          "Student",
	core.RoleTeachingStaff:    "Teacher",
	core.RoleNonTeachingStaff: "Staff Member",
	core.RoleParent:           "Parent",
}

var credentialBody = template.Must(template.New("credentials").Parse(`Hello {{.Name}},

An account has been created for you as a {{.RoleLabel}}.

  Email:    {{.To}}
  Password: {{.Credential}}
{{if .LoginURL}}
Sign in at {{.LoginURL}} and change your password after your first login.
{{else}}
Please change your password after your first login.
{{end}}`))

// Render returns the subject and plain-text body for msg.
func Render(msg core.CredentialEmail) (subject, body string, err error) {
	label, ok := roleLabels[msg.Role]
	if !ok {
		label = "User"
	}
	name := msg.Name
	if name == "" {
		name = msg.To
	}

	var buf bytes.Buffer
	err = credentialBody.Execute(&buf, struct {
		core.CredentialEmail
		Name      string
		RoleLabel string
	}{msg, name, label})
	if err != nil {
		return "", "", fmt.Errorf("render credential email: %w", err)
	}

	return "Your account details", buf.String(), nil
}

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPSender) SendCredentialEmail(ctx context.Context, msg core.CredentialEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	raw := buildMessage(s.cfg.From, msg.To, subject, body)

	// net/smtp has no context support; the caller's timeout bounds the
	// worker, not the dial.
	if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}

	logging.FromContext(ctx).Debug("credential email sent", "to", msg.To)
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogSender records credential emails in the log instead of sending them.
// The credential itself is never logged.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendCredentialEmail(ctx context.Context, msg core.CredentialEmail) error {
	s.log.InfoContext(ctx, "credential email suppressed (mail disabled)",
		slog.String("to", msg.To),
		slog.String("role", string(msg.Role)))
	return nil
}

var (
	_ core.Notifier = (*SMTPSender)(nil)
	_ core.Notifier = (*LogSender)(nil)
)
