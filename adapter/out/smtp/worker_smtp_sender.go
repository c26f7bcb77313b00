// Package smtp implements the mail sender port: go-message composes, net/smtp delivers.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"leadestate_server/core/port/out"
	"leadestate_server/pkg/logger"
	"leadestate_server/pkg/mailheader"
)

const defaultFromName = "Leadestate"

// Config holds SMTP credentials.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromName    string
	DialTimeout time.Duration
}

type Sender struct {
	cfg Config
	now func() time.Time
}

var _ out.MailSender = (*Sender)(nil)

func NewSender(cfg Config) *Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &Sender{cfg: cfg, now: time.Now}
}

func (s *Sender) Configured() bool {
	return s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != ""
}

// Send composes and delivers m. Without credentials it warns and returns "", nil.
func (s *Sender) Send(ctx context.Context, m *out.OutgoingMail) (string, error) {
	if !s.Configured() {
		logger.Warn("[SMTP] Not configured, dropping mail to %s", m.To)
		return "", nil
	}

	msgID, body, err := s.compose(m)
	if err != nil {
		return "", err
	}
	if err := s.deliver(ctx, m.To, body); err != nil {
		return "", err
	}

	logger.Debug("[SMTP] Sent %s to %s", msgID, m.To)
	return msgID, nil
}

// =============================================================================
// Compose
// =============================================================================

// compose renders m as RFC 5322 bytes. Text and HTML together become
// multipart/alternative; either alone is a single inline part.
func (s *Sender) compose(m *out.OutgoingMail) (string, []byte, error) {
	to := sanitizeHeaderValue(m.To)
	if to == "" {
		return "", nil, fmt.Errorf("missing recipient")
	}

	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Name: s.cfg.FromName, Address: s.cfg.Username}})
	if toAddrs, err := mail.ParseAddressList(to); err == nil && len(toAddrs) > 0 {
		h.SetAddressList("To", toAddrs)
	} else {
		h.Set("To", to)
	}
	h.SetSubject(sanitizeHeaderValue(m.Subject))

	msgID := newMessageID(s.cfg.Username)
	h.SetMessageID(mailheader.Unbracket(msgID))
	if m.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{mailheader.Unbracket(m.InReplyTo)})
	}
	if refs := mailheader.References(m.References...); len(refs) > 0 {
		ids := make([]string, 0, len(refs))
		for _, r := range refs {
			ids = append(ids, mailheader.Unbracket(r))
		}
		h.SetMsgIDList("References", ids)
	}

	var buf bytes.Buffer
	var err error
	switch {
	case m.Text != "" && m.HTML != "":
		err = writeAlternative(&buf, h, m.Text, m.HTML)
	case m.HTML != "":
		err = writeSingle(&buf, h, "text/html", m.HTML)
	default:
		err = writeSingle(&buf, h, "text/plain", m.Text)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to compose message: %w", err)
	}
	return msgID, buf.Bytes(), nil
}

func writeSingle(w io.Writer, h mail.Header, contentType, body string) error {
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	bw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(bw, body); err != nil {
		bw.Close()
		return err
	}
	return bw.Close()
}

func writeAlternative(w io.Writer, h mail.Header, text, html string) error {
	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return err
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return err
	}

	for _, part := range []struct{ contentType, body string }{
		{"text/plain", text},
		{"text/html", html},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(ph)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(pw, part.body); err != nil {
			pw.Close()
			return err
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}

	if err := iw.Close(); err != nil {
		return err
	}
	return mw.Close()
}

// newMessageID returns a bracketed id on the sender's domain.
func newMessageID(from string) string {
	domain := "leadestate.local"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

// sanitizeHeaderValue strips CR/LF to prevent header injection.
func sanitizeHeaderValue(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(s))
}

// =============================================================================
// Deliver
// =============================================================================

// deliver uses implicit TLS on 465 and STARTTLS elsewhere.
func (s *Sender) deliver(ctx context.Context, to string, body []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}
	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to open smtp session: %w", err)
	}
	defer client.Close()

	if s.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server %s does not support STARTTLS", addr)
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	if err := client.Mail(s.cfg.Username); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	rcpt := to
	if addr, err := mail.ParseAddress(sanitizeHeaderValue(to)); err == nil {
		rcpt = addr.Address
	}
	if err := client.Rcpt(rcpt); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data: %w", err)
	}
	return client.Quit()
}
