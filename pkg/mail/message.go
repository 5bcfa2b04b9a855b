// Package mail sends transactional email (invitations, password resets,
// verification links) over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	netmail "net/mail"
	"net/textproto"
	"strings"
	"time"
)

var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message is one outbound email. A non-empty HTML body turns it into
// multipart/alternative with Text as the fallback part.
type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// envelope is a Message with its addresses checked and deduplicated.
type envelope struct {
	from string
	to   []string
	cc   []string
}

func (e envelope) recipients() []string {
	return append(append(make([]string, 0, len(e.to)+len(e.cc)), e.to...), e.cc...)
}

func (m Message) envelope(defaultFrom string) (envelope, error) {
	env := envelope{
		from: strings.TrimSpace(m.From),
		to:   uniqueAddresses(m.To),
		cc:   uniqueAddresses(m.Cc),
	}
	if env.from == "" {
		env.from = defaultFrom
	}
	switch {
	case len(env.to) == 0:
		return envelope{}, errors.New("smtp: at least one recipient is required")
	case env.from == "":
		return envelope{}, errors.New("smtp: sender address is required")
	}
	if _, err := netmail.ParseAddress(env.from); err != nil {
		return envelope{}, fmt.Errorf("smtp: invalid from address: %w", err)
	}
	for _, rcpt := range env.recipients() {
		if _, err := netmail.ParseAddress(rcpt); err != nil {
			return envelope{}, fmt.Errorf("smtp: invalid recipient address %q: %w", rcpt, err)
		}
	}
	return env, nil
}

// uniqueAddresses trims and drops blanks; repeats are compared case-insensitively.
func uniqueAddresses(addresses []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out
}

// render produces the RFC 5322 message. CR and LF in the subject are
// flattened to spaces so it cannot inject headers.
func render(env envelope, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	h := textproto.MIMEHeader{}
	h.Set("From", env.from)
	h.Set("To", strings.Join(env.to, ", "))
	if len(env.cc) > 0 {
		h.Set("Cc", strings.Join(env.cc, ", "))
	}
	subject := strings.NewReplacer("\r", " ", "\n", " ").Replace(msg.Subject)
	h.Set("Subject", mime.QEncoding.Encode("utf-8", subject))
	h.Set("Date", now.UTC().Format(time.RFC1123Z))
	h.Set("MIME-Version", "1.0")

	if strings.TrimSpace(msg.HTML) == "" {
		h.Set("Content-Type", "text/plain; charset=UTF-8")
		writeHeader(&buf, h)
		buf.WriteString(msg.Text)
		return buf.Bytes(), nil
	}

	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	for _, p := range [][2]string{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p[0]}})
		if err != nil {
			return nil, fmt.Errorf("smtp: create part: %w", err)
		}
		if _, err := io.WriteString(w, p[1]); err != nil {
			return nil, fmt.Errorf("smtp: write part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("smtp: close multipart: %w", err)
	}
	h.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	writeHeader(&buf, h)
	buf.Write(parts.Bytes())
	return buf.Bytes(), nil
}

var headerOrder = []string{"From", "To", "Cc", "Subject", "Date", "MIME-Version", "Content-Type"}

func writeHeader(buf *bytes.Buffer, h textproto.MIMEHeader) {
	for _, key := range headerOrder {
		if v := h.Get(key); v != "" {
			fmt.Fprintf(buf, "%s: %s\r\n", key, v)
		}
	}
	buf.WriteString("\r\n")
}
