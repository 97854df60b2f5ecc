// Package email delivers incident notifications over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/notifications"
)

// Config holds email adapter configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	DialTimeout  time.Duration
}

// Adapter implements notifications.Adapter via SMTP.
type Adapter struct {
	config Config
	auth   smtp.Auth
}

// NewAdapter creates a new email adapter.
// Returns error if enabled but required config is missing.
func NewAdapter(config Config) (*Adapter, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email adapter: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email adapter: from address is required when enabled")
		}
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email adapter configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
	)

	return &Adapter{
		config: config,
		auth:   auth,
	}, nil
}

// Kind returns the channel kind.
func (a *Adapter) Kind() domain.ChannelKind {
	return domain.ChannelKindEmail
}

// Enabled reports whether SMTP is configured.
func (a *Adapter) Enabled() bool {
	return a.config.Enabled
}

// Send delivers one email to msg.To.
func (a *Adapter) Send(ctx context.Context, msg notifications.Message) notifications.Result {
	if !a.config.Enabled {
		return notifications.Result{Error: "email provider is disabled"}
	}
	if msg.To == "" {
		return notifications.Result{Error: "recipient address is empty"}
	}

	err := a.sendEmail(ctx, msg.Subject, msg.Body, msg.To)
	if err == nil {
		return notifications.Delivered()
	}
	return notifications.Result{Error: err.Error(), Retryable: IsRetryable(err)}
}

func (a *Adapter) sendEmail(ctx context.Context, subject, body, recipient string) error {
	msg := a.buildMessage(subject, body, recipient)
	addr := net.JoinHostPort(a.config.SMTPHost, fmt.Sprint(a.config.SMTPPort))

	tlsConfig := &tls.Config{
		ServerName: a.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	return a.sendWithSTARTTLS(ctx, addr, tlsConfig, recipient, msg)
}

// buildMessage constructs the email message with headers.
func (a *Adapter) buildMessage(subject, body, recipient string) []byte {
	var msg strings.Builder

	// Headers in deterministic order
	msg.WriteString(fmt.Sprintf("From: %s\r\n", a.config.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

// sendWithSTARTTLS sends an email using STARTTLS (port 587).
func (a *Adapter) sendWithSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config, recipient string, msg []byte) error {
	dialer := &net.Dialer{Timeout: a.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// smtp.Client has no context support; bound the whole exchange instead.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, a.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if a.auth != nil {
		if err := client.Auth(a.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(a.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

// IsRetryable determines if an SMTP error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := err.Error()

	// SMTP 4xx codes are temporary failures
	if strings.Contains(errStr, "421") ||
		strings.Contains(errStr, "450") ||
		strings.Contains(errStr, "451") ||
		strings.Contains(errStr, "452") {
		return true
	}

	return false
}
