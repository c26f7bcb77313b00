package domain

import (
	"fmt"
	"time"
)

// Direction of a stored email relative to the operator mailbox.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// EmailStatus is the processing state of a stored email.
// new -> replied | failed; both targets are terminal.
type EmailStatus string

const (
	EmailStatusNew     EmailStatus = "new"
	EmailStatusReplied EmailStatus = "replied"
	EmailStatusFailed  EmailStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s EmailStatus) IsTerminal() bool {
	return s == EmailStatusReplied || s == EmailStatusFailed
}

// Email is a message ingested from the mailbox.
// Content fields are written once at creation.
type Email struct {
	ID             string
	ConversationID string
	MessageID      string // protocol Message-Id, or "uid:<uid>"
	InReplyTo      string
	References     []string
	CampaignID     string

	From     string // formatted "Name <addr>"
	To       []string
	Subject  string
	BodyText string
	BodyHTML string

	Direction      Direction
	Status         EmailStatus
	Classification Classification
	ContactID      string

	ImapUID uint32
	Mailbox string
	Flags   []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyntheticMessageID is the dedup key used when a message has no Message-Id.
func SyntheticMessageID(uid uint32) string {
	return fmt.Sprintf("uid:%d", uid)
}

// DedupKey returns the protocol Message-Id or the synthetic uid key.
func DedupKey(messageID string, uid uint32) string {
	if messageID != "" {
		return messageID
	}
	return SyntheticMessageID(uid)
}

// ConversationIDFor derives the thread identity: the parent's id when the
// message is a reply, otherwise its own dedup key.
func ConversationIDFor(inReplyTo, dedupKey string) string {
	if inReplyTo != "" {
		return inReplyTo
	}
	return dedupKey
}

// SyncResult is returned by one inbound sync run.
type SyncResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Replied  int `json:"replied"`
	Spam     int `json:"spam"`
	Failed   int `json:"failed"`
}

// Counters flattens the result for metrics and events.
func (r SyncResult) Counters() map[string]int {
	return map[string]int{
		"inserted": r.Inserted,
		"skipped":  r.Skipped,
		"replied":  r.Replied,
		"spam":     r.Spam,
		"failed":   r.Failed,
	}
}
