package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const defaultSMTPTimeout = 10 * time.Second

type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

func (s SMTPSettings) validate() error {
	switch {
	case !s.Enabled:
		return nil
	case strings.TrimSpace(s.Host) == "":
		return errors.New("smtp: host is required when enabled")
	case s.Port == 0:
		return errors.New("smtp: port is required when enabled")
	}
	return nil
}

// smtpSession is the part of *smtp.Client the mailer drives.
type smtpSession interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
	StartTLS(*tls.Config) error
	Auth(smtp.Auth) error
	Extension(name string) (bool, string)
}

type smtpMailer struct {
	cfg  SMTPSettings
	dial func(ctx context.Context, cfg SMTPSettings) (smtpSession, error)
	now  func() time.Time
}

// NewSMTPMailer returns a Mailer for cfg. When cfg is disabled every Send
// fails with ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &smtpMailer{cfg: cfg, dial: dialSMTP, now: time.Now}, nil
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}
	env, err := msg.envelope(m.cfg.From)
	if err != nil {
		return err
	}
	body, err := render(env, msg, m.now())
	if err != nil {
		return err
	}

	session, err := m.dial(ctx, m.cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if user := strings.TrimSpace(m.cfg.Username); user != "" {
		if err := session.Auth(smtp.PlainAuth("", user, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}
	if err := session.Mail(env.from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range env.recipients() {
		if err := session.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: rcpt to %s: %w", rcpt, err)
		}
	}
	if err := transmit(session, body); err != nil {
		return err
	}
	return session.Quit()
}

func transmit(session smtpSession, body []byte) error {
	w, err := session.Data()
	if err != nil {
		return fmt.Errorf("smtp: data command: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: close data writer: %w", err)
	}
	return nil
}

// dialSMTP connects with implicit TLS when UseTLS is set and otherwise
// upgrades through STARTTLS if the server offers it. Closing the returned
// client closes the connection.
func dialSMTP(ctx context.Context, cfg SMTPSettings) (smtpSession, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	tlsConfig := &tls.Config{ServerName: cfg.Host}
	netDialer := &net.Dialer{Timeout: cfg.Timeout}

	var conn net.Conn
	var err error
	if cfg.UseTLS {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: new client: %w", err)
	}
	if ok, _ := client.Extension("STARTTLS"); ok && !cfg.UseTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp: start tls: %w", err)
		}
	}
	return client, nil
}
