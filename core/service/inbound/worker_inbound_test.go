package inbound

import (
	"context"
	"errors"
	"testing"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
)

const operator = "agent@leadestate.com"

type harness struct {
	mailbox  *fakeMailbox
	emails   *fakeEmailRepo
	contacts *fakeContactRepo
	props    *fakePropertyRepo
	oracle   *fakeOracle
	sender   *fakeSender
	events   *fakeEvents
	svc      *SyncService
}

func newHarness(messages ...*out.FetchedMessage) *harness {
	h := &harness{
		mailbox:  &fakeMailbox{configured: true, messages: messages},
		emails:   newFakeEmailRepo(),
		contacts: newFakeContactRepo(),
		props:    newFakePropertyRepo(),
		oracle:   &fakeOracle{labels: map[string]domain.Classification{}},
		sender:   &fakeSender{},
		events:   &fakeEvents{},
	}
	responder := NewLeadResponder(h.emails, h.contacts, h.props, h.oracle, h.oracle, h.oracle, h.sender, h.events)
	h.svc = NewSyncService(h.mailbox, h.emails, responder, SyncConfig{Mailbox: "INBOX", OperatorEmail: operator})
	return h
}

func inboundMsg(uid uint32, messageID, from, subject string) *out.FetchedMessage {
	return &out.FetchedMessage{
		UID:       uid,
		MessageID: messageID,
		Subject:   subject,
		From:      out.MailboxAddress{Name: "Jane Doe", Email: from},
		To:        []out.MailboxAddress{{Email: operator}},
		BodyText:  "Hi, I'm looking for a 3 bedroom home.",
	}
}

func TestRunInboundSync_FetchesFromLastUID(t *testing.T) {
	h := newHarness(
		inboundMsg(100, "<m100@example.com>", "old@example.com", "Old"),
		inboundMsg(101, "<m101@example.com>", "a@example.com", "Looking to buy"),
		inboundMsg(102, "<m102@example.com>", "b@example.com", "Looking to buy"),
		inboundMsg(103, "<m103@example.com>", "c@example.com", "Looking to buy"),
	)
	h.emails.seed(&domain.Email{
		MessageID: "<m100@example.com>",
		ImapUID:   100,
		Mailbox:   "INBOX",
		Direction: domain.DirectionInbound,
		Status:    domain.EmailStatusReplied,
	})

	result, err := h.svc.RunInboundSync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.mailbox.fetchedAt) != 1 || h.mailbox.fetchedAt[0] != 100 {
		t.Errorf("expected fetch after uid 100, got %v", h.mailbox.fetchedAt)
	}
	if result.Inserted != 3 || result.Skipped != 0 {
		t.Errorf("expected 3 inserted 0 skipped, got %+v", result)
	}
	if result.Replied != 3 {
		t.Errorf("expected 3 replies, got %d", result.Replied)
	}
	if h.mailbox.loggedOut != 1 || h.mailbox.closed != 1 {
		t.Errorf("expected session logged out and closed once, got logout=%d close=%d", h.mailbox.loggedOut, h.mailbox.closed)
	}
}

func TestRunInboundSync_DeduplicatesByMessageID(t *testing.T) {
	h := newHarness(
		inboundMsg(1, "<same@example.com>", "a@example.com", "Hello"),
		inboundMsg(2, "<same@example.com>", "a@example.com", "Hello again"),
		inboundMsg(3, "", "b@example.com", "No id"),
	)

	result, err := h.svc.RunInboundSync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Inserted != 2 || result.Skipped != 1 {
		t.Errorf("expected 2 inserted 1 skipped, got %+v", result)
	}

	synthetic, _ := h.emails.FindByMessageID(context.Background(), "uid:3")
	if synthetic == nil {
		t.Fatal("expected message without Message-Id stored under uid:3")
	}
	if synthetic.ConversationID != "uid:3" {
		t.Errorf("expected conversation uid:3, got %q", synthetic.ConversationID)
	}

	// no threading headers for synthetic keys
	for _, m := range h.sender.sent {
		if m.To == "b@example.com" && (m.InReplyTo != "" || len(m.References) != 0) {
			t.Errorf("expected no threading headers for synthetic id, got %+v", m)
		}
	}

	// second run sees nothing new
	again, err := h.svc.RunInboundSync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Inserted != 0 || again.Replied != 0 {
		t.Errorf("expected idempotent second run, got %+v", again)
	}
}

func TestRunInboundSync_ThreadsReplies(t *testing.T) {
	root := inboundMsg(10, "<root@example.com>", "a@example.com", "Buying")
	reply := inboundMsg(11, "<reply@example.com>", "a@example.com", "Re: Buying")
	reply.InReplyTo = []string{"<root@example.com>"}
	reply.RawReferences = "<root@example.com>"
	h := newHarness(root, reply)

	if _, err := h.svc.RunInboundSync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := h.emails.FindByMessageID(context.Background(), "<reply@example.com>")
	if stored.ConversationID != "<root@example.com>" {
		t.Errorf("expected conversation <root@example.com>, got %q", stored.ConversationID)
	}

	last := h.sender.sent[len(h.sender.sent)-1]
	if last.InReplyTo != "<reply@example.com>" {
		t.Errorf("expected In-Reply-To <reply@example.com>, got %q", last.InReplyTo)
	}
	if len(last.References) != 2 || last.References[0] != "<root@example.com>" || last.References[1] != "<reply@example.com>" {
		t.Errorf("unexpected references %v", last.References)
	}
	if last.Subject != "Re: Buying" {
		t.Errorf("expected subject not double prefixed, got %q", last.Subject)
	}
}

func TestRunInboundSync_OutboundIsStoredNotAnswered(t *testing.T) {
	h := newHarness(inboundMsg(5, "<ours@leadestate.com>", "Agent@LeadEstate.com", "Listing update"))

	result, err := h.svc.RunInboundSync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Inserted != 1 || result.Replied != 0 {
		t.Errorf("expected stored without reply, got %+v", result)
	}
	stored, _ := h.emails.FindByMessageID(context.Background(), "<ours@leadestate.com>")
	if stored.Direction != domain.DirectionOutbound {
		t.Errorf("expected outbound, got %s", stored.Direction)
	}
}

func TestRunInboundSync_SpamIsClosedWithoutReply(t *testing.T) {
	h := newHarness(inboundMsg(1, "<spam@example.com>", "promo@spam.example", "WIN NOW"))
	h.oracle.labels["WIN NOW"] = domain.ClassificationSpam

	result, err := h.svc.RunInboundSync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := h.emails.FindByMessageID(context.Background(), "<spam@example.com>")
	if stored.Status != domain.EmailStatusReplied {
		t.Errorf("expected spam closed as replied, got %s", stored.Status)
	}
	if stored.Classification != domain.ClassificationSpam {
		t.Errorf("expected spam classification, got %s", stored.Classification)
	}
	if len(h.contacts.upserts) != 0 {
		t.Error("expected no contact for spam")
	}
	if len(h.sender.sent) != 0 {
		t.Error("expected no reply for spam")
	}
	if result.Spam != 1 || result.Replied != 0 {
		t.Errorf("expected spam=1 replied=0, got %+v", result)
	}
}

func TestRunInboundSync_SenderIsResolvedAfterClassification(t *testing.T) {
	tests := []struct {
		name       string
		label      domain.Classification
		wantStatus domain.EmailStatus
		wantSpam   int
		wantFailed int
	}{
		{"spam without sender", domain.ClassificationSpam, domain.EmailStatusReplied, 1, 0},
		{"lead without sender", domain.ClassificationBuyerLead, domain.EmailStatusFailed, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := inboundMsg(1, "<anon@example.com>", "", "No sender")
			msg.From = out.MailboxAddress{}
			h := newHarness(msg)
			h.oracle.labels["No sender"] = tt.label

			result, err := h.svc.RunInboundSync(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Spam != tt.wantSpam || result.Failed != tt.wantFailed {
				t.Errorf("expected spam=%d failed=%d, got %+v", tt.wantSpam, tt.wantFailed, result)
			}

			stored, _ := h.emails.FindByMessageID(context.Background(), "<anon@example.com>")
			if stored.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, stored.Status)
			}
			// the label is saved even when the reply cannot be addressed
			if stored.Classification != tt.label {
				t.Errorf("expected classification %s, got %s", tt.label, stored.Classification)
			}
			if len(h.contacts.upserts) != 0 || len(h.sender.sent) != 0 {
				t.Errorf("expected no contact and no reply, got upserts=%d sent=%d", len(h.contacts.upserts), len(h.sender.sent))
			}
		})
	}
}

func TestRunInboundSync_FailureIsIsolated(t *testing.T) {
	h := newHarness(
		inboundMsg(1, "<bad@example.com>", "broken@example.com", "Buying"),
		inboundMsg(2, "<good@example.com>", "fine@example.com", "Buying"),
	)
	h.oracle.failOn = "broken@"

	result, err := h.svc.RunInboundSync(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 1 || result.Replied != 1 {
		t.Errorf("expected failed=1 replied=1, got %+v", result)
	}

	bad, _ := h.emails.FindByMessageID(context.Background(), "<bad@example.com>")
	if bad.Status != domain.EmailStatusFailed {
		t.Errorf("expected failed status, got %s", bad.Status)
	}
	// classification and contact link survive the failure
	if bad.Classification != domain.ClassificationBuyerLead || bad.ContactID == "" {
		t.Errorf("expected classification and contact kept, got %+v", bad)
	}

	types := h.events.types()
	if len(types) != 2 || types[0] != out.EventEmailFailed || types[1] != out.EventEmailReplied {
		t.Errorf("unexpected events %v", types)
	}
}

func TestRunInboundSync_SellerBranch(t *testing.T) {
	h := newHarness(inboundMsg(1, "<sell@example.com>", "owner@example.com", "Selling my house"))
	h.oracle.labels["Selling my house"] = domain.ClassificationSellerLead
	h.oracle.details = domain.PropertyDetails{City: "Austin", Beds: 3, PriceExpectation: 450000}

	if _, err := h.svc.RunInboundSync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.oracle.sellerCalls) != 1 || len(h.oracle.buyerCalls) != 0 {
		t.Fatalf("expected seller reply only, got seller=%d buyer=%d", len(h.oracle.sellerCalls), len(h.oracle.buyerCalls))
	}
	if got := h.oracle.sellerCalls[0].SellerProperty; got != "Austin, $450000, 3 bd" {
		t.Errorf("unexpected seller property %q", got)
	}
	contact := h.contacts.byEmail["owner@example.com"]
	if contact == nil || contact.Intent != domain.IntentSeller {
		t.Errorf("expected seller contact, got %+v", contact)
	}
}

func TestRunInboundSync_BuyerGetsListings(t *testing.T) {
	h := newHarness(inboundMsg(1, "<buy@example.com>", "buyer@example.com", "Buying"))
	for i := 0; i < 7; i++ {
		h.props.listings = append(h.props.listings, &domain.Property{City: "Austin", Price: float64(300000 + i)})
	}

	if _, err := h.svc.RunInboundSync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(h.oracle.buyerCalls[0].Properties); got != listingLimit {
		t.Errorf("expected %d listings, got %d", listingLimit, got)
	}
}

func TestRunInboundSync_SuggestsCallOnMatureThread(t *testing.T) {
	tests := []struct {
		name        string
		prior       int
		wantCount   int
		wantSuggest bool
	}{
		{"new thread", 0, 0, false},
		{"three exchanges", 6, 3, false},
		{"four exchanges", 8, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := inboundMsg(50, "<latest@example.com>", "a@example.com", "Re: Buying")
			if tt.prior > 0 {
				msg.InReplyTo = []string{"<thread@example.com>"}
			}
			h := newHarness(msg)
			for i := 0; i < tt.prior; i++ {
				h.emails.seed(&domain.Email{
					ConversationID: "<thread@example.com>",
					MessageID:      "<prior-" + string(rune('a'+i)) + "@example.com>",
					Direction:      domain.DirectionInbound,
					Status:         domain.EmailStatusReplied,
					Mailbox:        "Archive",
					BodyText:       "earlier message",
				})
			}

			if _, err := h.svc.RunInboundSync(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rc := h.oracle.buyerCalls[0]
			if rc.ExchangeCount != tt.wantCount {
				t.Errorf("expected exchange count %d, got %d", tt.wantCount, rc.ExchangeCount)
			}
			if rc.SuggestCall != tt.wantSuggest {
				t.Errorf("expected suggest call %v, got %v", tt.wantSuggest, rc.SuggestCall)
			}
		})
	}
}

func TestRunInboundSync_NotConfigured(t *testing.T) {
	h := newHarness(inboundMsg(1, "<a@example.com>", "a@example.com", "Hi"))
	h.mailbox.configured = false

	result, err := h.svc.RunInboundSync(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != (domain.SyncResult{}) {
		t.Errorf("expected zero result, got %+v", result)
	}
	if h.mailbox.sessions != 0 {
		t.Error("expected no connection attempt")
	}
}

func TestRunInboundSync_ConnectErrorAborts(t *testing.T) {
	h := newHarness()
	h.mailbox.connectErr = errors.New("dial tcp: connection refused")

	if _, err := h.svc.RunInboundSync(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestRunInboundSync_StoresFormattedRecipients(t *testing.T) {
	msg := inboundMsg(101, "<m101@example.com>", "a@example.com", "Looking to buy")
	msg.To = []out.MailboxAddress{
		{Name: "Agent", Email: operator},
		{Name: "undisclosed"},
		{Email: "cc@example.com"},
	}
	h := newHarness(msg)

	if _, err := h.svc.RunInboundSync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored *domain.Email
	for _, e := range h.emails.byID {
		if e.MessageID == "<m101@example.com>" {
			stored = e
		}
	}
	if stored == nil {
		t.Fatal("expected inbound email to be stored")
	}

	expected := []string{"Agent <" + operator + ">", "cc@example.com"}
	if len(stored.To) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, stored.To)
	}
	for i := range expected {
		if stored.To[i] != expected[i] {
			t.Errorf("expected %q, got %q", expected[i], stored.To[i])
		}
	}
}
