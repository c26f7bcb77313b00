// Package mailheader extracts booking correlation from reply threading headers
// and builds the threading headers we send.
package mailheader

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultDomain is the right-hand side of booking confirmation Message-Ids.
const DefaultDomain = "leadestate.local"

var (
	// ErrNotCorrelated means the headers reference no booking of ours.
	ErrNotCorrelated = errors.New("message is not correlated to a schedule")
	// ErrNoThreadAnchor means a booking id was found but our original
	// bracketed Message-Id could not be recovered, so no threaded reply can be built.
	ErrNoThreadAnchor = errors.New("schedule message-id anchor not found")
)

// Correlation ties a customer reply to the booking confirmation it answers.
type Correlation struct {
	ScheduleID   string // 24 hex chars, lowercased
	OurMessageID string // bracketed, e.g. <schedule-...@leadestate.local>
}

// Parser extracts a Correlation from In-Reply-To and References.
type Parser struct {
	domain   string
	schedule *regexp.Regexp
	anchor   *regexp.Regexp
}

// NewParser builds a parser for the given Message-Id domain.
func NewParser(domain string) *Parser {
	if domain == "" {
		domain = DefaultDomain
	}
	d := regexp.QuoteMeta(domain)
	return &Parser{
		domain:   domain,
		schedule: regexp.MustCompile(`(?i)schedule-([a-f0-9]{24})@` + d),
		anchor:   regexp.MustCompile(`(?i)<schedule-[a-f0-9]+@` + d + `>`),
	}
}

// Domain returns the configured Message-Id domain.
func (p *Parser) Domain() string {
	return p.domain
}

// Parse inspects the raw In-Reply-To and References header values.
// The booking id comes from the first match over both headers joined by a
// space; the anchor must appear in angle brackets.
func (p *Parser) Parse(inReplyTo, references string) (Correlation, error) {
	combined := joinNonEmpty(" ", inReplyTo, references)
	if combined == "" {
		return Correlation{}, ErrNotCorrelated
	}

	m := p.schedule.FindStringSubmatch(combined)
	if m == nil {
		return Correlation{}, ErrNotCorrelated
	}

	anchor := p.anchor.FindString(combined)
	if anchor == "" {
		return Correlation{ScheduleID: strings.ToLower(m[1])}, ErrNoThreadAnchor
	}

	return Correlation{
		ScheduleID:   strings.ToLower(m[1]),
		OurMessageID: anchor,
	}, nil
}

// ScheduleMessageID builds the Message-Id used on booking confirmation emails.
func ScheduleMessageID(scheduleID, domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return fmt.Sprintf("<schedule-%s@%s>", strings.ToLower(scheduleID), domain)
}

// Bracket wraps a Message-Id in angle brackets if it has none.
func Bracket(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}

// Unbracket strips surrounding angle brackets.
func Unbracket(id string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "<"), ">")
}

// References returns the non-empty ids, bracketed, in order.
func References(ids ...string) []string {
	var out []string
	for _, id := range ids {
		if id = Bracket(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ReplySubject prefixes "Re: " unless already present. An empty subject
// uses fallback.
func ReplySubject(subject, fallback string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = fallback
	}
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
