package dispatch

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailSender delivers escalation mail for HIGH/CRITICAL alerts.
type EmailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPSender sends plain-text mail over SMTP with an explicit dial/IO
// deadline so a hung relay cannot stall a worker past its timeout.
type SMTPSender struct {
	addr     string // host:port
	from     string
	username string
	password string
	host     string
	timeout  time.Duration
}

func NewSMTPSender(host string, port int, from, username, password string) *SMTPSender {
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", host, port),
		from:     from,
		username: username,
		password: password,
		host:     host,
		timeout:  10 * time.Second,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := (&net.Dialer{Deadline: deadline}).DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dispatch: smtp dial: %w", err)
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("dispatch: smtp handshake: %w", err)
	}
	defer c.Close()

	if s.username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("dispatch: smtp auth: %w", err)
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.from, strings.Join(to, ", "), subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
