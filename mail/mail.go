// Package mail builds and sends account emails.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/contacts-api/config"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrHeaderInjection = errors.New("mail: header value contains a line break")

// SMTPSender sends mail over SMTP, upgrading with STARTTLS when configured
// and authenticating with PLAIN when a user is set.
type SMTPSender struct {
	host     string
	port     int
	startTLS bool
	user     string
	password string
	from     string
	timeout  time.Duration
}

func NewSMTPSender(cfg *config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.Host,
		port:     cfg.Port,
		startTLS: cfg.StartTLS,
		user:     cfg.User,
		password: cfg.Password,
		from:     cfg.From,
		timeout:  10 * time.Second,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	const op = "mail.SMTPSender.Send"

	raw, err := s.compose(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: dial %s: %w", op, addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer client.Close()

	if s.startTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("%s: starttls: %w", op, err)
		}
	}
	if s.user != "" {
		if err := client.Auth(smtp.PlainAuth("", s.user, s.password, s.host)); err != nil {
			return fmt.Errorf("%s: auth: %w", op, err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return client.Quit()
}

func (s *SMTPSender) compose(msg Message) ([]byte, error) {
	for _, v := range []string{msg.To, msg.Subject, s.from} {
		if strings.ContainsAny(v, "\r\n") {
			return nil, ErrHeaderInjection
		}
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	var b strings.Builder
	b.WriteString("From: " + s.from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String()), nil
}

// VerificationMessage links to GET {base}/users/verify/{token}.
func VerificationMessage(baseURL, to, username, token string) Message {
	link := strings.TrimRight(baseURL, "/") + "/users/verify/" + url.PathEscape(token)
	return Message{
		To:      to,
		Subject: "Confirm your email",
		Body: fmt.Sprintf("Hello %s,\n\nPlease confirm your email address by opening the link below:\n\n%s\n\n"+
			"If you did not create an account, ignore this message.\n", username, link),
	}
}

// ResetMessage links to {base}/users/reset-password?token={token}.
func ResetMessage(baseURL, to, username, token string) Message {
	link := strings.TrimRight(baseURL, "/") + "/users/reset-password?" + url.Values{"token": {token}}.Encode()
	return Message{
		To:      to,
		Subject: "Password reset",
		Body: fmt.Sprintf("Hello %s,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\n"+
			"If you did not request this, ignore this message.\n", username, link),
	}
}

// Queue accepts messages for asynchronous delivery. Enqueue reports false
// when the message was dropped.
type Queue interface {
	Enqueue(msg Message) bool
}

// ErrQueueFull is returned by Notifier when the queue dropped a message.
var ErrQueueFull = errors.New("mail: queue full")

// Notifier turns account events into queued emails.
type Notifier struct {
	baseURL string
	queue   Queue
}

func NewNotifier(baseURL string, queue Queue) *Notifier {
	return &Notifier{baseURL: baseURL, queue: queue}
}

func (n *Notifier) SendVerification(_ context.Context, email, username, token string) error {
	if !n.queue.Enqueue(VerificationMessage(n.baseURL, email, username, token)) {
		return ErrQueueFull
	}
	return nil
}

func (n *Notifier) SendPasswordReset(_ context.Context, email, username, token string) error {
	if !n.queue.Enqueue(ResetMessage(n.baseURL, email, username, token)) {
		return ErrQueueFull
	}
	return nil
}
