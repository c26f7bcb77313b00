package domain

// Classification is the lead-type label assigned to an inbound email.
type Classification string

const (
	ClassificationUnset          Classification = ""
	ClassificationBuyerLead      Classification = "buyer_lead"
	ClassificationSellerLead     Classification = "seller_lead"
	ClassificationGeneralInquiry Classification = "general_inquiry"
	ClassificationSpam           Classification = "spam"
	ClassificationUnknown        Classification = "unknown"
)

// LeadClassifications is the oracle vocabulary.
var LeadClassifications = []Classification{
	ClassificationBuyerLead,
	ClassificationSellerLead,
	ClassificationGeneralInquiry,
	ClassificationSpam,
	ClassificationUnknown,
}

// ParseClassification maps free text to a known label, falling back to unknown.
func ParseClassification(s string) Classification {
	for _, c := range LeadClassifications {
		if string(c) == s {
			return c
		}
	}
	return ClassificationUnknown
}

// ContactIntent maps the classification to the contact's intent.
func (c Classification) ContactIntent() ContactIntent {
	switch c {
	case ClassificationSellerLead:
		return IntentSeller
	case ClassificationBuyerLead:
		return IntentBuyer
	default:
		return IntentBoth
	}
}

// ReplyIntent is the intent of a reply to a booking confirmation.
type ReplyIntent string

const (
	ReplyIntentCancel     ReplyIntent = "cancel"
	ReplyIntentReschedule ReplyIntent = "reschedule"
	ReplyIntentOther      ReplyIntent = "other"
)

// ParseReplyIntent maps free text to a known intent, falling back to other.
func ParseReplyIntent(s string) ReplyIntent {
	switch ReplyIntent(s) {
	case ReplyIntentCancel, ReplyIntentReschedule:
		return ReplyIntent(s)
	default:
		return ReplyIntentOther
	}
}
