package out

import (
	"context"

	"leadestate_server/core/domain"
)

// LeadMessage is the classifier input for an inbound email.
type LeadMessage struct {
	From    string
	Subject string
	Body    string
}

// LeadClassifier labels inbound emails.
type LeadClassifier interface {
	ClassifyLead(ctx context.Context, msg *LeadMessage) (domain.Classification, error)
}

// IntentClassifier labels replies to booking confirmations.
type IntentClassifier interface {
	ClassifyReplyIntent(ctx context.Context, subject, body string) (domain.ReplyIntent, error)
}

// PropertyExtractor pulls structured property details out of a seller's email.
type PropertyExtractor interface {
	ExtractPropertyDetails(ctx context.Context, body string) (domain.PropertyDetails, error)
}

// ChatTurn is one entry of the conversation history.
type ChatTurn struct {
	Role    string // "user" or "assistant"
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ReplyContext is everything the generator sees.
type ReplyContext struct {
	From           string // formatted sender
	Subject        string
	Body           string // latest message
	ContactName    string
	ContactEmail   string
	Classification domain.Classification
	History        []ChatTurn
	ExchangeCount  int
	SuggestCall    bool
	Properties     []string // one-line summaries
	SellerProperty string   // summary of the seller's own property, if any
}

// ReplyGenerator writes the reply body.
type ReplyGenerator interface {
	GenerateBuyerReply(ctx context.Context, rc *ReplyContext) (string, error)
	GenerateSellerReply(ctx context.Context, rc *ReplyContext) (string, error)
}
