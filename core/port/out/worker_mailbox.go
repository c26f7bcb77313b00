package out

import (
	"context"
	"time"
)

// MailboxClient opens authenticated mailbox sessions.
type MailboxClient interface {
	// Configured reports whether credentials are present.
	Configured() bool
	Connect(ctx context.Context) (MailboxSession, error)
}

// MailboxSession is one authenticated connection, used for a whole run and
// closed on every exit path.
type MailboxSession interface {
	// Lock selects the mailbox and holds it until release is called.
	Lock(ctx context.Context, mailbox string) (release func(), err error)
	// FetchSince streams every message with UID > lastUID to fn, in UID order.
	// An error from fn aborts the stream.
	FetchSince(ctx context.Context, lastUID uint32, fn func(*FetchedMessage) error) error
	// SearchUnseen returns the UIDs of messages without \Seen.
	SearchUnseen(ctx context.Context) ([]uint32, error)
	// FetchOne returns nil, nil when the UID no longer exists.
	FetchOne(ctx context.Context, uid uint32) (*FetchedMessage, error)
	AddFlags(ctx context.Context, uid uint32, flags ...string) error
	Logout() error
	Close() error
}

// Standard flags.
const FlagSeen = `\Seen`

// FetchedMessage is the parsed view of one fetched message.
type FetchedMessage struct {
	UID   uint32
	Flags []string

	// Envelope
	MessageID string   // bracketed, empty when absent
	InReplyTo []string // bracketed
	Subject   string
	Date      time.Time
	From      MailboxAddress
	To        []MailboxAddress

	// Raw headers from the source, as sent
	RawInReplyTo  string
	RawReferences string
	CampaignID    string

	// Parsed bodies; empty when the source could not be parsed
	BodyText   string
	BodyHTML   string
	ParseError error
}

// MailboxAddress is an envelope address.
type MailboxAddress struct {
	Name  string
	Email string
}
