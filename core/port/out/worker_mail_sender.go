package out

import "context"

// OutgoingMail is a composed email with threading headers.
type OutgoingMail struct {
	To         string
	Subject    string
	Text       string
	HTML       string
	InReplyTo  string
	References []string
}

// MailSender delivers outgoing mail.
type MailSender interface {
	// Send returns the Message-Id used. When delivery is not configured it
	// returns "", nil.
	Send(ctx context.Context, mail *OutgoingMail) (string, error)
}
