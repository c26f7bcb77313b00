package domain

import "testing"

func TestConversationIDFor(t *testing.T) {
	a := DedupKey("<a@example.com>", 101)
	if got := ConversationIDFor("", a); got != "<a@example.com>" {
		t.Errorf("expected own id for thread root, got %q", got)
	}

	b := DedupKey("<b@example.com>", 102)
	if got := ConversationIDFor(a, b); got != a {
		t.Errorf("expected parent id %q, got %q", a, got)
	}

	if got := DedupKey("", 103); got != "uid:103" {
		t.Errorf("expected synthetic key, got %q", got)
	}
}

func TestClassificationContactIntent(t *testing.T) {
	tests := []struct {
		in       Classification
		expected ContactIntent
	}{
		{ClassificationSellerLead, IntentSeller},
		{ClassificationBuyerLead, IntentBuyer},
		{ClassificationGeneralInquiry, IntentBoth},
		{ClassificationUnknown, IntentBoth},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := tt.in.ContactIntent(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseLabels(t *testing.T) {
	if ParseClassification("seller_lead") != ClassificationSellerLead {
		t.Error("expected seller_lead")
	}
	if ParseClassification("SELLER") != ClassificationUnknown {
		t.Error("expected unknown for unrecognized label")
	}
	if ParseReplyIntent("cancel") != ReplyIntentCancel {
		t.Error("expected cancel")
	}
	if ParseReplyIntent("maybe") != ReplyIntentOther {
		t.Error("expected other for unrecognized intent")
	}
}

func TestLeadApplyCancellation(t *testing.T) {
	lead := &Lead{
		Appointments: []Appointment{
			{Date: "2025-03-01", Time: "10:00"},
			{Date: "2025-03-02", Time: "10:00"},
		},
		Memory: LeadMemory{Notes: []string{"prefers mornings"}},
	}

	lead.ApplyCancellation(LeadCancellation{
		Date:       "2025-03-01",
		Time:       "10:00",
		Note:       CancellationNote("2025-03-01", "10:00"),
		NextAction: NextActionMeetingCancelled,
	})

	if len(lead.Appointments) != 1 || lead.Appointments[0].Date != "2025-03-02" {
		t.Errorf("expected only the other appointment to remain, got %+v", lead.Appointments)
	}
	if len(lead.Memory.Notes) != 2 {
		t.Fatalf("expected note appended, got %v", lead.Memory.Notes)
	}
	if lead.Memory.Notes[1] != "Meeting cancelled via email reply on 2025-03-01 at 10:00" {
		t.Errorf("unexpected note %q", lead.Memory.Notes[1])
	}
	if lead.NextAction != NextActionMeetingCancelled {
		t.Errorf("unexpected next action %q", lead.NextAction)
	}
}

func TestPropertySummary(t *testing.T) {
	p := &Property{City: "Austin", PriceExpectation: 450000, Beds: 3, Baths: 2.5}
	if got := p.Summary(); got != "Austin, $450000, 3 bd, 2.5 ba" {
		t.Errorf("unexpected summary %q", got)
	}
	if (PropertyDetails{}).IsEmpty() != true {
		t.Error("expected zero details to be empty")
	}
}

func TestEmailStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status EmailStatus
		want   bool
	}{
		{EmailStatusNew, false},
		{EmailStatusReplied, true},
		{EmailStatusFailed, true},
		{EmailStatus(""), false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.status, tt.want, got)
		}
	}
}
