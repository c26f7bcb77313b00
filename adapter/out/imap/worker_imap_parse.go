package imap

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"leadestate_server/core/port/out"
	"leadestate_server/pkg/mailheader"
)

// maxBodyBytes bounds each decoded body part.
const maxBodyBytes = 1 << 20

// parsedSource is what we read out of the raw RFC 5322 source.
type parsedSource struct {
	MessageID  string
	InReplyTo  string
	References string
	CampaignID string
	Subject    string
	Date       time.Time
	From       *mail.Address
	To         []*mail.Address
	Text       string
	HTML       string
}

// parseSource reads threading headers and the first text and html parts.
// Header values are returned exactly as sent (unfolded).
func parseSource(raw []byte) (*parsedSource, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	ps := &parsedSource{
		MessageID:  strings.TrimSpace(h.Get("Message-Id")),
		InReplyTo:  strings.TrimSpace(h.Get("In-Reply-To")),
		References: strings.TrimSpace(h.Get("References")),
		CampaignID: strings.TrimSpace(h.Get("X-Campaign")),
	}
	if subject, err := h.Subject(); err == nil {
		ps.Subject = subject
	}
	if date, err := h.Date(); err == nil {
		ps.Date = date
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		ps.From = from[0]
	}
	if to, err := h.AddressList("To"); err == nil {
		ps.To = to
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			return ps, fmt.Errorf("failed to read part: %w", err)
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}

		body, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && ps.Text == "":
			ps.Text = string(body)
		case strings.HasPrefix(contentType, "text/html") && ps.HTML == "":
			ps.HTML = string(body)
		}
	}

	return ps, nil
}

// buildMessage merges the envelope with the parsed source. The source wins
// for threading headers; the envelope fills whatever the source lacked.
func buildMessage(buf *fetchedBuffer) *out.FetchedMessage {
	msg := &out.FetchedMessage{
		UID:   buf.UID,
		Flags: buf.Flags,
	}

	if env := buf.Envelope; env != nil {
		msg.MessageID = mailheader.Bracket(env.MessageID)
		msg.InReplyTo = mailheader.References(env.InReplyTo...)
		msg.Subject = env.Subject
		msg.Date = env.Date
		if len(env.From) > 0 {
			msg.From = fromIMAPAddress(env.From[0])
		}
		for _, a := range env.To {
			msg.To = append(msg.To, fromIMAPAddress(a))
		}
	}

	if len(buf.Raw) == 0 {
		msg.ParseError = fmt.Errorf("empty message source")
		return msg
	}

	ps, err := parseSource(buf.Raw)
	if ps == nil {
		msg.ParseError = err
		return msg
	}
	msg.ParseError = err

	if ps.MessageID != "" {
		msg.MessageID = mailheader.Bracket(ps.MessageID)
	}
	if ps.InReplyTo != "" {
		msg.RawInReplyTo = ps.InReplyTo
		msg.InReplyTo = mailheader.References(strings.Fields(ps.InReplyTo)...)
	}
	msg.RawReferences = ps.References
	msg.CampaignID = ps.CampaignID
	if msg.Subject == "" {
		msg.Subject = ps.Subject
	}
	if msg.Date.IsZero() {
		msg.Date = ps.Date
	}
	if msg.From.Email == "" && ps.From != nil {
		msg.From = out.MailboxAddress{Name: ps.From.Name, Email: ps.From.Address}
	}
	if len(msg.To) == 0 {
		for _, a := range ps.To {
			msg.To = append(msg.To, out.MailboxAddress{Name: a.Name, Email: a.Address})
		}
	}
	msg.BodyText = ps.Text
	msg.BodyHTML = ps.HTML

	return msg
}

var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

func fromIMAPAddress(a goimap.Address) out.MailboxAddress {
	name := a.Name
	if decoded, err := wordDecoder.DecodeHeader(name); err == nil {
		name = decoded
	}
	return out.MailboxAddress{Name: name, Email: strings.ToLower(a.Addr())}
}

// fetchedBuffer is the protocol-independent view of one FETCH response.
type fetchedBuffer struct {
	UID      uint32
	Flags    []string
	Envelope *goimap.Envelope
	Raw      []byte
}
