package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"price-tracker/internal/model"
	"price-tracker/pkg/contextx"
	"price-tracker/pkg/logx"
)

var (
	ErrDisabled         = errors.New("email service disabled")
	ErrNoRecipients     = errors.New("no recipients")
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// EmailOptions configures an EmailService.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// EmailService handles email notifications
type EmailService struct {
	host      string
	port      int
	username  string
	password  string
	from      string
	timeout   time.Duration
	isEnabled bool
	now       func() time.Time
}

// NewEmailService creates a new email notification service. It is disabled
// unless a host and credentials are configured.
func NewEmailService(opts EmailOptions) *EmailService {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &EmailService{
		host:      opts.Host,
		port:      opts.Port,
		username:  opts.Username,
		password:  opts.Password,
		from:      opts.From,
		timeout:   opts.Timeout,
		isEnabled: opts.Host != "" && opts.Username != "" && opts.Password != "",
		now:       time.Now,
	}
}

// IsEnabled returns whether the email service is enabled
func (e *EmailService) IsEnabled() bool {
	return e.isEnabled
}

// Deliver sends content to all recipients in one message. Recipients are
// addressed on the envelope only, so they do not see each other. Invalid
// addresses are skipped; ErrNoRecipients is returned when none is left.
func (e *EmailService) Deliver(ctx context.Context, content EmailContent, recipients []string) error {
	if !e.isEnabled {
		return ErrDisabled
	}

	recipients = lo.Uniq(recipients)
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	recipients, invalid := lo.FilterReject(recipients, func(to string, _ int) bool {
		return model.ValidateEmail(to)
	})
	if len(invalid) > 0 {
		contextx.LoggerFromContextOrDefault(ctx).Warn("skipping invalid recipients",
			slog.Any(logx.FieldRecipients, invalid),
		)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("%w: %w", ErrNoRecipients, ErrInvalidRecipient)
	}

	sender, err := e.envelopeFrom()
	if err != nil {
		return err
	}

	msg := e.buildMessage(content)

	if err := e.send(ctx, sender, recipients, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

func (e *EmailService) envelopeFrom() (string, error) {
	if e.from == "" {
		return e.username, nil
	}

	addr, err := mail.ParseAddress(e.from)
	if err != nil {
		return "", fmt.Errorf("invalid sender %q: %w", e.from, err)
	}

	return addr.Address, nil
}

// send uses implicit TLS on port 465 and STARTTLS elsewhere when the server
// offers it.
func (e *EmailService) send(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tlsConfig := &tls.Config{
		ServerName: e.host,
		MinVersion: tls.VersionTLS12,
	}

	var (
		conn net.Conn
		err  error
	)
	if e.port == 465 {
		conn, err = (&tls.Dialer{Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if e.port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(smtp.PlainAuth("", e.username, e.password, e.host)); err != nil {
			return err
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return err
	}

	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}

	if err := wc.Close(); err != nil {
		return err
	}

	return client.Quit()
}

// buildMessage builds the email message
func (e *EmailService) buildMessage(content EmailContent) []byte {
	var msg strings.Builder

	from := e.from
	if from == "" {
		from = e.username
	}

	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString("To: undisclosed-recipients:;\r\n")
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", content.Subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", e.now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(content.Body)

	return []byte(msg.String())
}
