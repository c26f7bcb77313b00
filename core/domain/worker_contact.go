package domain

import "time"

// ContactIntent is what the contact wants to do.
type ContactIntent string

const (
	IntentBuyer  ContactIntent = "buyer"
	IntentSeller ContactIntent = "seller"
	IntentBoth   ContactIntent = "both"
)

// ContactStatus is the CRM pipeline stage.
type ContactStatus string

const (
	ContactStatusNew       ContactStatus = "new"
	ContactStatusContacted ContactStatus = "contacted"
	ContactStatusQualified ContactStatus = "qualified"
	ContactStatusViewing   ContactStatus = "viewing"
	ContactStatusOffer     ContactStatus = "offer"
	ContactStatusClosed    ContactStatus = "closed"
	ContactStatusLost      ContactStatus = "lost"
)

// Contact is a CRM contact keyed by email.
type Contact struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Intent    ContactIntent
	Status    ContactStatus
	Source    string
	Budget    string
	Timeline  string
	Location  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContactUpsert carries the fields for an upsert by email. Empty optional
// fields never overwrite stored values; Intent is always written.
type ContactUpsert struct {
	Email    string
	Name     string
	Intent   ContactIntent
	Phone    string
	Source   string
	Budget   string
	Timeline string
	Location string
}

// ContactSourceEmail marks contacts created by the inbound pipeline.
const ContactSourceEmail = "email"
