package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/storage"
)

const smtpTimeout = 10 * time.Second

// EmailSink sends alerts over SMTP. Delivery is best-effort: one attempt,
// no retries, and the blocking handshake is bounded by a connection
// deadline so a stalled server cannot hold the sender indefinitely.
type EmailSink struct {
	host string
	port int
	user string
	pass string
	from string
	to   string
}

// NewEmailSink creates an EmailSink for the given SMTP endpoint. user and
// pass may be empty for unauthenticated relays.
func NewEmailSink(host string, port int, user, pass, from, to string) *EmailSink {
	return &EmailSink{host: host, port: port, user: user, pass: pass, from: from, to: to}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(ctx context.Context, a storage.AlertRecord) error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	dialer := net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	// Bound the entire handshake, not just the dial.
	conn.SetDeadline(time.Now().Add(smtpTimeout)) //nolint:errcheck

	// Cancellation mid-handshake closes the connection, unblocking any
	// pending read or write.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.user != "" {
		auth := smtp.PlainAuth("", s.user, s.pass, s.host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(s.to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(s.message(a)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return c.Quit()
}

func (s *EmailSink) message(a storage.AlertRecord) []byte {
	subject := fmt.Sprintf("System Alert: %s", strings.ToUpper(string(a.Kind)))
	body := fmt.Sprintf("Alert type: %s\r\nValue: %g\r\nThreshold: %g\r\nTime: %s\r\nGenerated: %s\r\n",
		a.Kind, a.Value, a.Limit,
		a.ObservedAt.UTC().Format(time.RFC3339),
		a.CreatedAt.UTC().Format(time.RFC3339))
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", s.from, s.to, subject, body))
}
