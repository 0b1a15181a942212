package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/photovault/photovault/app/models"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// memRepo is an in-memory Repository. Transaction runs fn against a copy and
// swaps it in only on success, so a failing handler leaves no partial writes.
type memRepo struct {
	mu sync.Mutex

	subscriptions map[string]*models.Subscription // by stripe subscription id
	profiles      map[string]*models.UserProfile
	clients       map[string]*models.Client // by user id
	photographers map[string]*models.Photographer
	galleries     map[string]*models.PhotoGallery
	transactions  map[string]*models.GalleryPaymentTransaction
	webhooks      map[uint]*models.BillingWebhookEvent

	nextWebhookID uint
	writes        int
	failOn        map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		subscriptions: map[string]*models.Subscription{},
		profiles:      map[string]*models.UserProfile{},
		clients:       map[string]*models.Client{},
		photographers: map[string]*models.Photographer{},
		galleries:     map[string]*models.PhotoGallery{},
		transactions:  map[string]*models.GalleryPaymentTransaction{},
		webhooks:      map[uint]*models.BillingWebhookEvent{},
		failOn:        map[string]error{},
	}
}

func (r *memRepo) clone() *memRepo {
	c := newMemRepo()
	for k, v := range r.subscriptions {
		cp := *v
		c.subscriptions[k] = &cp
	}
	for k, v := range r.profiles {
		cp := *v
		c.profiles[k] = &cp
	}
	for k, v := range r.clients {
		cp := *v
		c.clients[k] = &cp
	}
	for k, v := range r.photographers {
		cp := *v
		c.photographers[k] = &cp
	}
	for k, v := range r.galleries {
		cp := *v
		c.galleries[k] = &cp
	}
	for k, v := range r.transactions {
		cp := *v
		c.transactions[k] = &cp
	}
	for k, v := range r.webhooks {
		cp := *v
		c.webhooks[k] = &cp
	}
	c.nextWebhookID = r.nextWebhookID
	c.writes = r.writes
	c.failOn = r.failOn
	return c
}

func (r *memRepo) fail(op string) error {
	return r.failOn[op]
}

func (r *memRepo) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()
	tx := r.clone()
	r.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions = tx.subscriptions
	r.profiles = tx.profiles
	r.clients = tx.clients
	r.photographers = tx.photographers
	r.galleries = tx.galleries
	r.transactions = tx.transactions
	r.webhooks = tx.webhooks
	r.nextWebhookID = tx.nextWebhookID
	r.writes = tx.writes
	return nil
}

func (r *memRepo) GetSubscriptionByStripeID(ctx context.Context, id string) (*models.Subscription, error) {
	sub, ok := r.subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *memRepo) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := r.fail("UpsertSubscription"); err != nil {
		return err
	}
	r.writes++
	if existing, ok := r.subscriptions[sub.StripeSubscriptionID]; ok {
		existing.StripeCustomerID = sub.StripeCustomerID
		existing.Status = sub.Status
		existing.CurrentPeriodStart = sub.CurrentPeriodStart
		existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
		existing.TrialEnd = sub.TrialEnd
		*sub = *existing
		return nil
	}
	if sub.ID == "" {
		sub.ID = fmt.Sprintf("sub-row-%d", len(r.subscriptions)+1)
	}
	cp := *sub
	r.subscriptions[sub.StripeSubscriptionID] = &cp
	return nil
}

func (r *memRepo) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if err := r.fail("GetUserProfile"); err != nil {
		return nil, err
	}
	p, ok := r.profiles[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) UpdatePaymentStatus(ctx context.Context, userID string, upd PaymentStatusUpdate) error {
	if err := r.fail("UpdatePaymentStatus"); err != nil {
		return err
	}
	r.writes++
	p, ok := r.profiles[userID]
	if !ok {
		return nil
	}
	p.PaymentStatus = upd.Status
	if upd.LastPaymentAt != nil {
		p.LastPaymentAt = upd.LastPaymentAt
	}
	if upd.SubscriptionStartAt != nil {
		p.SubscriptionStartAt = upd.SubscriptionStartAt
	}
	if upd.SubscriptionEndAt != nil {
		p.SubscriptionEndAt = upd.SubscriptionEndAt
	}
	return nil
}

func (r *memRepo) SetUserCustomerID(ctx context.Context, userID, customerID string) error {
	r.writes++
	if p, ok := r.profiles[userID]; ok {
		p.StripeCustomerID = customerID
	}
	return nil
}

func (r *memRepo) ClientExistsForUser(ctx context.Context, userID string) (bool, error) {
	_, ok := r.clients[userID]
	return ok, nil
}

func (r *memRepo) SetClientCustomerID(ctx context.Context, userID, customerID string) error {
	r.writes++
	if c, ok := r.clients[userID]; ok {
		c.StripeCustomerID = customerID
	}
	return nil
}

func (r *memRepo) UpdatePlatformSubscription(ctx context.Context, photographerID string, upd PlatformSubscriptionUpdate) error {
	r.writes++
	p, ok := r.photographers[photographerID]
	if !ok {
		return nil
	}
	if upd.SubscriptionID != "" {
		p.PlatformSubscriptionID = upd.SubscriptionID
	}
	if upd.CustomerID != "" {
		p.StripeCustomerID = upd.CustomerID
	}
	if upd.Status != "" {
		p.PlatformSubscriptionStatus = upd.Status
	}
	if upd.PeriodStart != nil {
		p.PlatformSubscriptionStart = upd.PeriodStart
	}
	if upd.PeriodEnd != nil {
		p.PlatformSubscriptionEnd = upd.PeriodEnd
	}
	if upd.TrialEnd != nil {
		p.PlatformTrialEnd = upd.TrialEnd
	}
	return nil
}

func (r *memRepo) GetPhotographerByConnectAccountID(ctx context.Context, accountID string) (*models.Photographer, error) {
	for _, p := range r.photographers {
		if p.StripeConnectAccountID != nil && *p.StripeConnectAccountID == accountID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) UpdateConnectStatus(ctx context.Context, photographerID string, upd ConnectStatusUpdate) error {
	r.writes++
	if p, ok := r.photographers[photographerID]; ok {
		p.StripeConnectStatus = upd.Status
		p.CanReceivePayouts = upd.CanReceivePayouts
		p.BankAccountVerified = upd.BankAccountVerified
	}
	return nil
}

func (r *memRepo) GetGallery(ctx context.Context, galleryID string) (*models.PhotoGallery, error) {
	g, ok := r.galleries[galleryID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memRepo) MarkGalleryPaid(ctx context.Context, galleryID, paymentIntentID string, paidAt time.Time) error {
	r.writes++
	if g, ok := r.galleries[galleryID]; ok {
		g.PaymentStatus = models.GalleryPaymentStatusPaid
		g.PaymentIntentID = paymentIntentID
		g.PaidAt = &paidAt
	}
	return nil
}

func (r *memRepo) SeedGalleryDownloadTracking(ctx context.Context, galleryID string, limit int) error {
	r.writes++
	if g, ok := r.galleries[galleryID]; ok {
		g.DownloadLimit = &limit
		g.DownloadsUsed = 0
	}
	return nil
}

func (r *memRepo) GetTransaction(ctx context.Context, id string) (*models.GalleryPaymentTransaction, error) {
	t, ok := r.transactions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) GetTransactionByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.GalleryPaymentTransaction, error) {
	for _, t := range r.transactions {
		if t.StripePaymentIntentID == paymentIntentID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) CreateTransaction(ctx context.Context, txn *models.GalleryPaymentTransaction) error {
	if err := r.fail("CreateTransaction"); err != nil {
		return err
	}
	r.writes++
	if txn.ID == "" {
		txn.ID = fmt.Sprintf("txn-%d", len(r.transactions)+1)
	}
	cp := *txn
	r.transactions[txn.ID] = &cp
	return nil
}

func (r *memRepo) RecordTransferResult(ctx context.Context, id string, transferID *string, notes string) error {
	if err := r.fail("RecordTransferResult"); err != nil {
		return err
	}
	r.writes++
	t, ok := r.transactions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.Notes = notes
	if transferID != nil {
		v := *transferID
		t.StripeTransferID = &v
	}
	return nil
}

func (r *memRepo) ListPendingPayoutTransactionIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	for id, t := range r.transactions {
		if !t.HasTransfer() && t.PhotographerPayoutCents > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *memRepo) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.webhooks {
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			cp := *e
			return false, &cp, nil
		}
	}
	r.nextWebhookID++
	event.ID = r.nextWebhookID
	cp := *event
	r.webhooks[event.ID] = &cp
	return true, event, nil
}

func (r *memRepo) MarkWebhookProcessed(ctx context.Context, id uint, processingError, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.webhooks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := fixedNow
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	e.Outcome = outcome
	return nil
}

type fakeGateway struct {
	subscriptions map[string]*stripe.Subscription
	transferErr   error
	transfers     []TransferRequest
	getCalls      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{subscriptions: map[string]*stripe.Subscription{}}
}

func (g *fakeGateway) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	g.getCalls++
	sub, ok := g.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	return sub, nil
}

func (g *fakeGateway) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	g.transfers = append(g.transfers, req)
	if g.transferErr != nil {
		return "", g.transferErr
	}
	return fmt.Sprintf("tr_%d", len(g.transfers)), nil
}

type publishedMessage struct {
	RoutingKey string
	Body       interface{}
}

type fakePublisher struct {
	messages []publishedMessage
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.messages = append(p.messages, publishedMessage{RoutingKey: routingKey, Body: body})
	return p.err
}

func (p *fakePublisher) keys() []string {
	out := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, m.RoutingKey)
	}
	return out
}

type pendingNotice struct {
	To          string
	GalleryID   string
	AmountCents int64
}

type fakeNotifier struct {
	notices []pendingNotice
}

func (n *fakeNotifier) NotifyPayoutPending(ctx context.Context, to, galleryID string, amountCents int64) error {
	n.notices = append(n.notices, pendingNotice{To: to, GalleryID: galleryID, AmountCents: amountCents})
	return nil
}

type fakeScheduler struct {
	scheduled []string
}

func (s *fakeScheduler) SchedulePayoutRetry(ctx context.Context, transactionID string) error {
	s.scheduled = append(s.scheduled, transactionID)
	return nil
}

type harness struct {
	svc       *Service
	repo      *memRepo
	gateway   *fakeGateway
	publisher *fakePublisher
	notifier  *fakeNotifier
	scheduler *fakeScheduler
}

func newHarness() *harness {
	h := &harness{
		repo:      newMemRepo(),
		gateway:   newFakeGateway(),
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		scheduler: &fakeScheduler{},
	}
	h.svc = NewService(h.repo, h.gateway, Options{
		Publisher:      h.publisher,
		Notifier:       h.notifier,
		Scheduler:      h.scheduler,
		PayoutCurrency: "usd",
		Now:            func() time.Time { return fixedNow },
	})
	return h
}

func newEvent(t *testing.T, id, eventType string, object interface{}) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func strPtr(v string) *string {
	return &v
}
