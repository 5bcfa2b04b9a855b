package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	from       string
	recipients []string
	data       bytes.Buffer
	quit       bool
	closed     bool
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (f *fakeClient) Mail(from string) error { f.from = from; return nil }
func (f *fakeClient) Rcpt(to string) error { f.recipients = append(f.recipients, to); return nil }
func (f *fakeClient) Data() (io.WriteCloser, error) { return nopWriteCloser{&f.data}, nil }
func (f *fakeClient) Quit() error { f.quit = true; return nil }
func (f *fakeClient) Close() error { f.closed = true; return nil }
func (f *fakeClient) StartTLS(*tls.Config) error { return nil }
func (f *fakeClient) Auth(smtp.Auth) error { return nil }
func (f *fakeClient) Extension(string) (bool, string) { return false, "" }

func newTestMailer(t *testing.T, client *fakeClient) *smtpMailer {
	t.Helper()
	m, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@crmhub.test",
	})
	require.NoError(t, err)

	sm := m.(*smtpMailer)
	sm.dial = func(context.Context, SMTPSettings) (smtpSession, error) {
		return client, nil
	}
	sm.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return sm
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.ErrorContains(t, err, "port is required")

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, mailer)
	require.Equal(t, 10*time.Second, mailer.(*smtpMailer).cfg.Timeout)
}

func TestSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "x", Text: "y"})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSendValidatesAddresses(t *testing.T) {
	mailer := newTestMailer(t, &fakeClient{})

	err := mailer.Send(context.Background(), Message{To: []string{"  ", "\t"}})
	require.ErrorContains(t, err, "at least one recipient")

	err = mailer.Send(context.Background(), Message{From: "invalid-from", To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "invalid from address")

	err = mailer.Send(context.Background(), Message{To: []string{"user@example.com"}, Cc: []string{"bad-address"}})
	require.ErrorContains(t, err, "invalid recipient address")
}

func TestSendPlainText(t *testing.T) {
	client := &fakeClient{}
	mailer := newTestMailer(t, client)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"new@example.com", "NEW@example.com"},
		Cc:      []string{"admin@example.com"},
		Subject: "You have been invited\r\nto Acme",
		Text:    "Accept here",
	})
	require.NoError(t, err)

	require.Equal(t, "no-reply@crmhub.test", client.from)
	require.Equal(t, []string{"new@example.com", "admin@example.com"}, client.recipients)
	require.True(t, client.quit)
	require.True(t, client.closed)

	body := client.data.String()
	require.Contains(t, body, "Subject: You have been invited  to Acme")
	require.Contains(t, body, "Cc: admin@example.com")
	require.Contains(t, body, "Content-Type: text/plain; charset=UTF-8")
	require.Contains(t, body, "Date: Fri, 02 Jan 2026 03:04:05 +0000")
	require.True(t, bytes.HasSuffix(client.data.Bytes(), []byte("Accept here")))
}

func TestSendMultipart(t *testing.T) {
	client := &fakeClient{}
	mailer := newTestMailer(t, client)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"new@example.com"},
		Subject: "Welcome",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	})
	require.NoError(t, err)

	body := client.data.String()
	require.Contains(t, body, "multipart/alternative; boundary=")
	require.Contains(t, body, "plain body")
	require.Contains(t, body, "<p>html body</p>")
}

func TestSendUsesDefaultSender(t *testing.T) {
	mailer := newTestMailer(t, &fakeClient{})
	mailer.cfg.From = ""

	err := mailer.Send(context.Background(), Message{To: []string{"user@example.com"}, Text: "hi"})
	require.ErrorContains(t, err, "sender address is required")
}

func TestUniqueAddresses(t *testing.T) {
	result := uniqueAddresses([]string{"alice@example.com", "bob@example.com", " Alice@example.com ", "", "bob@example.com"})
	require.Equal(t, []string{"alice@example.com", "bob@example.com"}, result)
}
