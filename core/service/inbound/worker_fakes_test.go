package inbound

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
)

// =============================================================================
// Mailbox
// =============================================================================

type fakeMailbox struct {
	configured bool
	messages   []*out.FetchedMessage
	connectErr error

	mu        sync.Mutex
	sessions  int
	closed    int
	loggedOut int
	fetchedAt []uint32
}

func (m *fakeMailbox) Configured() bool { return m.configured }

func (m *fakeMailbox) Connect(ctx context.Context) (out.MailboxSession, error) {
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	m.mu.Lock()
	m.sessions++
	m.mu.Unlock()
	return &fakeSession{box: m}, nil
}

type fakeSession struct {
	box    *fakeMailbox
	locked bool
}

func (s *fakeSession) Lock(ctx context.Context, mailbox string) (func(), error) {
	s.locked = true
	return func() { s.locked = false }, nil
}

func (s *fakeSession) FetchSince(ctx context.Context, lastUID uint32, fn func(*out.FetchedMessage) error) error {
	if !s.locked {
		return errors.New("mailbox not selected")
	}
	s.box.fetchedAt = append(s.box.fetchedAt, lastUID)
	for _, msg := range s.box.messages {
		if msg.UID <= lastUID {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSession) SearchUnseen(ctx context.Context) ([]uint32, error) { return nil, nil }

func (s *fakeSession) FetchOne(ctx context.Context, uid uint32) (*out.FetchedMessage, error) {
	return nil, nil
}

func (s *fakeSession) AddFlags(ctx context.Context, uid uint32, flags ...string) error { return nil }

func (s *fakeSession) Logout() error {
	s.box.loggedOut++
	return nil
}

func (s *fakeSession) Close() error {
	s.box.closed++
	return nil
}

// =============================================================================
// Email store
// =============================================================================

type fakeEmailRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.Email
	order  []string
	nextID int
}

func newFakeEmailRepo() *fakeEmailRepo {
	return &fakeEmailRepo{byID: make(map[string]*domain.Email)}
}

func (r *fakeEmailRepo) seed(e *domain.Email) *domain.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = fmt.Sprintf("e%d", r.nextID)
	r.byID[e.ID] = e
	r.order = append(r.order, e.ID)
	return e
}

func (r *fakeEmailRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if r.byID[id].MessageID == messageID {
			return r.byID[id], nil
		}
	}
	return nil, nil
}

func (r *fakeEmailRepo) Create(ctx context.Context, email *domain.Email) error {
	if existing, _ := r.FindByMessageID(ctx, email.MessageID); existing != nil {
		return domain.ErrDuplicate
	}
	r.seed(email)
	return nil
}

func (r *fakeEmailRepo) GetMaxUID(ctx context.Context, mailbox string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max uint32
	for _, e := range r.byID {
		if e.Mailbox == mailbox && e.ImapUID > max {
			max = e.ImapUID
		}
	}
	return max, nil
}

func (r *fakeEmailRepo) FindNewInbound(ctx context.Context) ([]*domain.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*domain.Email
	for _, id := range r.order {
		e := r.byID[id]
		if e.Direction == domain.DirectionInbound && e.Status == domain.EmailStatusNew {
			found = append(found, e)
		}
	}
	return found, nil
}

func (r *fakeEmailRepo) UpdateStatus(ctx context.Context, id string, status domain.EmailStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if status.IsTerminal() && e.Status.IsTerminal() {
		return nil
	}
	e.Status = status
	return nil
}

func (r *fakeEmailRepo) UpdateClassification(ctx context.Context, id string, c domain.Classification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].Classification = c
	return nil
}

func (r *fakeEmailRepo) UpdateContactID(ctx context.Context, id, contactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id].ContactID = contactID
	return nil
}

func (r *fakeEmailRepo) GetConversation(ctx context.Context, conversationID string) ([]*domain.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var thread []*domain.Email
	for _, id := range r.order {
		if r.byID[id].ConversationID == conversationID {
			thread = append(thread, r.byID[id])
		}
	}
	return thread, nil
}

// =============================================================================
// Contacts and properties
// =============================================================================

type fakeContactRepo struct {
	byEmail map[string]*domain.Contact
	upserts []domain.ContactUpsert
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{byEmail: make(map[string]*domain.Contact)}
}

func (r *fakeContactRepo) UpsertByEmail(ctx context.Context, in *domain.ContactUpsert) (*domain.Contact, error) {
	r.upserts = append(r.upserts, *in)
	key := strings.ToLower(in.Email)
	c, ok := r.byEmail[key]
	if !ok {
		c = &domain.Contact{ID: fmt.Sprintf("c%d", len(r.byEmail)+1), Email: key}
		r.byEmail[key] = c
	}
	if in.Name != "" {
		c.Name = in.Name
	}
	c.Intent = in.Intent
	return c, nil
}

func (r *fakeContactRepo) FindByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	return r.byEmail[strings.ToLower(email)], nil
}

type fakePropertyRepo struct {
	listings []*domain.Property
	byOwner  map[string][]*domain.Property
}

func newFakePropertyRepo() *fakePropertyRepo {
	return &fakePropertyRepo{byOwner: make(map[string][]*domain.Property)}
}

func (r *fakePropertyRepo) UpsertForContact(ctx context.Context, contactID string, d domain.PropertyDetails) (*domain.Property, error) {
	p := &domain.Property{
		Source:           domain.PropertySourceSellerInquiry,
		ContactID:        contactID,
		Address:          d.Address,
		City:             d.City,
		Beds:             d.Beds,
		Baths:            d.Baths,
		PriceExpectation: d.PriceExpectation,
	}
	r.byOwner[contactID] = []*domain.Property{p}
	return p, nil
}

func (r *fakePropertyRepo) FindByContactID(ctx context.Context, contactID string) ([]*domain.Property, error) {
	return r.byOwner[contactID], nil
}

func (r *fakePropertyRepo) FindListings(ctx context.Context, c domain.PropertyCriteria) ([]*domain.Property, error) {
	if c.Limit > 0 && len(r.listings) > c.Limit {
		return r.listings[:c.Limit], nil
	}
	return r.listings, nil
}

// =============================================================================
// Oracle and delivery
// =============================================================================

type fakeOracle struct {
	labels  map[string]domain.Classification // keyed by subject
	details domain.PropertyDetails
	failOn  string // subject that makes generation fail

	buyerCalls  []*out.ReplyContext
	sellerCalls []*out.ReplyContext
}

func (o *fakeOracle) ClassifyLead(ctx context.Context, msg *out.LeadMessage) (domain.Classification, error) {
	if c, ok := o.labels[msg.Subject]; ok {
		return c, nil
	}
	return domain.ClassificationBuyerLead, nil
}

func (o *fakeOracle) ExtractPropertyDetails(ctx context.Context, body string) (domain.PropertyDetails, error) {
	return o.details, nil
}

func (o *fakeOracle) GenerateBuyerReply(ctx context.Context, rc *out.ReplyContext) (string, error) {
	o.buyerCalls = append(o.buyerCalls, rc)
	if o.failOn != "" && strings.Contains(rc.ContactEmail, o.failOn) {
		return "", errors.New("oracle unavailable")
	}
	return "Thanks for reaching out about buying.", nil
}

func (o *fakeOracle) GenerateSellerReply(ctx context.Context, rc *out.ReplyContext) (string, error) {
	o.sellerCalls = append(o.sellerCalls, rc)
	return "Thanks for reaching out about selling.", nil
}

type fakeSender struct {
	sent []*out.OutgoingMail
}

func (s *fakeSender) Send(ctx context.Context, mail *out.OutgoingMail) (string, error) {
	s.sent = append(s.sent, mail)
	return fmt.Sprintf("<reply-%d@leadestate.local>", len(s.sent)), nil
}

type fakeEvents struct {
	events []*out.Event
}

func (p *fakeEvents) Publish(ctx context.Context, event *out.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *fakeEvents) types() []string {
	var types []string
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	sort.Strings(types)
	return types
}
