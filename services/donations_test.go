package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ananya/studentfund-go/apperr"
	"github.com/ananya/studentfund-go/gateway"
	"github.com/ananya/studentfund-go/models"
	"github.com/ananya/studentfund-go/services"
)

// memStore is an in-memory Store with the same settle semantics as the Mongo
// implementation: conditional transition plus increment under one lock.
type memStore struct {
	mu        sync.Mutex
	campaigns map[primitive.ObjectID]*models.Campaign
	donations map[string]*models.Donation // keyed by gateway order id
	insertErr error
	settleErr error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[primitive.ObjectID]*models.Campaign),
		donations: make(map[string]*models.Donation),
	}
}

func (m *memStore) addCampaign(c *models.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
}

func (m *memStore) raised(id primitive.ObjectID) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id].RaisedAmount
}

func (m *memStore) donation(orderID string) *models.Donation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.donations[orderID]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (m *memStore) GetCampaign(ctx context.Context, id primitive.ObjectID) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) InsertDonation(ctx context.Context, d *models.Donation) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.donations[d.RazorpayOrderID] = &cp
	return nil
}

func (m *memStore) SettleDonation(ctx context.Context, orderID, paymentID string, to models.DonationStatus) (*models.Donation, bool, error) {
	if m.settleErr != nil {
		return nil, false, m.settleErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donations[orderID]
	if !ok {
		return nil, false, nil
	}
	if !d.Status.CanTransition(to) {
		cp := *d
		return &cp, false, nil
	}
	d.Status = to
	d.RazorpayPaymentID = paymentID
	if to == models.DonationPaid {
		if c, ok := m.campaigns[d.CampaignID]; ok {
			c.RaisedAmount += d.Amount
		}
	}
	cp := *d
	return &cp, true, nil
}

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*gateway.Order, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Order{
		ID:       fmt.Sprintf("order_test%d", n),
		Amount:   amountPaise,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeMailer struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeMailer) Send(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, to)
	return nil
}

func activeCampaign() *models.Campaign {
	now := time.Now()
	return &models.Campaign{
		ID:         primitive.NewObjectID(),
		UserID:     primitive.NewObjectID(),
		Title:      "Final year project fund",
		GoalAmount: 5000,
		Status:     "ACTIVE",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateOrderValidation(t *testing.T) {
	campaign := activeCampaign()

	cases := []struct {
		name  string
		input services.CreateOrderInput
	}{
		{"zero amount", services.CreateOrderInput{Amount: 0, CampaignID: campaign.ID.Hex()}},
		{"negative amount", services.CreateOrderInput{Amount: -50, CampaignID: campaign.ID.Hex()}},
		{"bad campaign id", services.CreateOrderInput{Amount: 100, CampaignID: "not-an-id"}},
		{"unknown campaign", services.CreateOrderInput{Amount: 100, CampaignID: primitive.NewObjectID().Hex()}},
		{"guest email without pan", services.CreateOrderInput{Amount: 100, CampaignID: campaign.ID.Hex(), GuestEmail: "guest@example.com"}},
		{"malformed pan", services.CreateOrderInput{Amount: 100, CampaignID: campaign.ID.Hex(), GuestEmail: "guest@example.com", GuestPAN: "abcde1234f"}},
		{"no payer identity", services.CreateOrderInput{Amount: 100, CampaignID: campaign.ID.Hex(), Email: "donor@example.com"}},
		{"authenticated with guest email", services.CreateOrderInput{Amount: 100, CampaignID: campaign.ID.Hex(), UserID: primitive.NewObjectID().Hex(), GuestEmail: "guest@example.com", GuestPAN: "ABCDE1234F"}},
		{"authenticated with guest pan", services.CreateOrderInput{Amount: 100, CampaignID: campaign.ID.Hex(), UserID: primitive.NewObjectID().Hex(), GuestPAN: "ABCDE1234F"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			store.addCampaign(campaign)
			gw := &fakeGateway{}
			svc := services.NewDonationService(store, gw, nil)

			_, err := svc.CreateOrder(context.Background(), tc.input)
			if !apperr.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if gw.callCount() != 0 {
				t.Fatalf("gateway was called %d times, want 0", gw.callCount())
			}
		})
	}
}

func TestCreateOrderCampaignNotFundable(t *testing.T) {
	past := time.Now().Add(-24 * time.Hour)

	closed := activeCampaign()
	closed.Status = "CLOSED"

	expired := activeCampaign()
	expired.Deadline = &past

	for _, campaign := range []*models.Campaign{closed, expired} {
		store := newMemStore()
		store.addCampaign(campaign)
		gw := &fakeGateway{}
		svc := services.NewDonationService(store, gw, nil)

		_, err := svc.CreateOrder(context.Background(), services.CreateOrderInput{
			Amount:     100,
			CampaignID: campaign.ID.Hex(),
			UserID:     primitive.NewObjectID().Hex(),
		})
		if !apperr.IsValidation(err) {
			t.Fatalf("expected validation error for campaign status %s, got %v", campaign.Status, err)
		}
		if gw.callCount() != 0 {
			t.Fatalf("gateway was called for non-fundable campaign")
		}
	}
}

// Only (guest email present, PAN absent) is rejected as an incomplete guest
// pair. A PAN without a guest email is tolerated.
func TestCreateOrderPANWithoutEmailAllowed(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	gw := &fakeGateway{}
	svc := services.NewDonationService(store, gw, nil)

	result, err := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     100,
		CampaignID: campaign.ID.Hex(),
		GuestPAN:   "ABCDE1234F",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if result.Donation.Status != models.DonationCreated {
		t.Fatalf("donation status = %s, want CREATED", result.Donation.Status)
	}
}

func TestCreateOrderGatewayFailureLeavesNoRecord(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	gw := &fakeGateway{err: errors.New("gateway timeout")}
	svc := services.NewDonationService(store, gw, nil)

	_, err := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     500,
		CampaignID: campaign.ID.Hex(),
		UserID:     primitive.NewObjectID().Hex(),
	})
	if err == nil {
		t.Fatal("expected gateway error")
	}
	appErr := apperr.From(err)
	if appErr.Code != "GATEWAY_ERROR" {
		t.Fatalf("error code = %s, want GATEWAY_ERROR", appErr.Code)
	}

	store.mu.Lock()
	n := len(store.donations)
	store.mu.Unlock()
	if n != 0 {
		t.Fatalf("found %d local donation records after gateway failure, want 0", n)
	}
}

func TestCreateOrderStorageFailure(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	store.insertErr = errors.New("write concern error")
	svc := services.NewDonationService(store, &fakeGateway{}, nil)

	_, err := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     100,
		CampaignID: campaign.ID.Hex(),
		UserID:     primitive.NewObjectID().Hex(),
	})
	if appErr := apperr.From(err); appErr.Code != "STORAGE_ERROR" {
		t.Fatalf("error code = %s, want STORAGE_ERROR", appErr.Code)
	}
}

func TestCreateOrderSuccess(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	gw := &fakeGateway{}
	svc := services.NewDonationService(store, gw, nil)

	donorID := primitive.NewObjectID()
	result, err := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     250.50,
		Email:      "donor@example.com",
		CampaignID: campaign.ID.Hex(),
		UserID:     donorID.Hex(),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	d := result.Donation
	if d.Status != models.DonationCreated {
		t.Errorf("status = %s, want CREATED", d.Status)
	}
	if d.UserID != donorID {
		t.Errorf("donation user id = %s, want %s", d.UserID.Hex(), donorID.Hex())
	}
	if d.GuestEmail != "" || d.GuestPAN != "" {
		t.Error("guest fields set on an authenticated donation")
	}
	if d.RazorpayOrderID != result.Order.ID {
		t.Errorf("donation order id %q does not match gateway order %q", d.RazorpayOrderID, result.Order.ID)
	}
	if result.Order.Amount != 25050 {
		t.Errorf("gateway amount = %d paise, want 25050", result.Order.Amount)
	}
	if d.ReceiptNo == "" {
		t.Error("receipt number not set")
	}
	if stored := store.donation(d.RazorpayOrderID); stored == nil {
		t.Error("donation not persisted")
	}
	if got := store.raised(campaign.ID); got != 0 {
		t.Errorf("raised amount = %.2f after order creation, want 0", got)
	}
}

func settle(t *testing.T, svc *services.DonationService, orderID string) {
	t.Helper()
	err := svc.Reconcile(context.Background(), services.GatewayEvent{
		Type:      "payment.captured",
		OrderID:   orderID,
		PaymentID: "pay_test1",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	gw := &fakeGateway{}
	svc := services.NewDonationService(store, gw, nil)

	result, err := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     500,
		CampaignID: campaign.ID.Hex(),
		UserID:     primitive.NewObjectID().Hex(),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	orderID := result.Order.ID

	settle(t, svc, orderID)
	if got := store.raised(campaign.ID); got != 500 {
		t.Fatalf("raised = %.2f after first event, want 500", got)
	}
	if d := store.donation(orderID); d.Status != models.DonationPaid {
		t.Fatalf("status = %s after first event, want PAID", d.Status)
	}

	// Redelivered identical event must not double-count.
	settle(t, svc, orderID)
	if got := store.raised(campaign.ID); got != 500 {
		t.Fatalf("raised = %.2f after redelivery, want 500", got)
	}
}

func TestReconcileUnknownOrderIsAcknowledged(t *testing.T) {
	store := newMemStore()
	svc := services.NewDonationService(store, &fakeGateway{}, nil)

	err := svc.Reconcile(context.Background(), services.GatewayEvent{
		Type:    "payment.captured",
		OrderID: "order_nonexistent",
	})
	if err != nil {
		t.Fatalf("unknown order must be acknowledged, got %v", err)
	}
}

func TestReconcileIgnoresOtherEventTypes(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	gw := &fakeGateway{}
	svc := services.NewDonationService(store, gw, nil)

	result, _ := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     100,
		CampaignID: campaign.ID.Hex(),
		UserID:     primitive.NewObjectID().Hex(),
	})

	err := svc.Reconcile(context.Background(), services.GatewayEvent{
		Type:    "order.paid",
		OrderID: result.Order.ID,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if d := store.donation(result.Order.ID); d.Status != models.DonationCreated {
		t.Fatalf("status = %s after ignored event, want CREATED", d.Status)
	}
}

func TestReconcilePaymentFailed(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	svc := services.NewDonationService(store, &fakeGateway{}, nil)

	result, _ := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     100,
		CampaignID: campaign.ID.Hex(),
		UserID:     primitive.NewObjectID().Hex(),
	})

	err := svc.Reconcile(context.Background(), services.GatewayEvent{
		Type:    "payment.failed",
		OrderID: result.Order.ID,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if d := store.donation(result.Order.ID); d.Status != models.DonationFailed {
		t.Fatalf("status = %s, want FAILED", d.Status)
	}
	if got := store.raised(campaign.ID); got != 0 {
		t.Fatalf("raised = %.2f after failed payment, want 0", got)
	}

	// A captured event arriving after FAILED must not resurrect the donation.
	settle(t, svc, result.Order.ID)
	if d := store.donation(result.Order.ID); d.Status != models.DonationFailed {
		t.Fatalf("status = %s after late capture, want FAILED", d.Status)
	}
	if got := store.raised(campaign.ID); got != 0 {
		t.Fatalf("raised = %.2f after late capture, want 0", got)
	}
}

func TestReconcileStorageFailureSurfaces(t *testing.T) {
	store := newMemStore()
	store.settleErr = errors.New("storage unavailable")
	svc := services.NewDonationService(store, &fakeGateway{}, nil)

	err := svc.Reconcile(context.Background(), services.GatewayEvent{
		Type:    "payment.captured",
		OrderID: "order_test1",
	})
	if err == nil {
		t.Fatal("expected error so the gateway retries delivery")
	}
}

func TestReconcileSendsReceipt(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	mailer := &fakeMailer{}
	svc := services.NewDonationService(store, &fakeGateway{}, mailer)

	result, _ := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     200,
		CampaignID: campaign.ID.Hex(),
		GuestEmail: "guest@example.com",
		GuestPAN:   "ABCDE1234F",
	})

	settle(t, svc, result.Order.ID)

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	if len(mailer.sends) != 1 || mailer.sends[0] != "guest@example.com" {
		t.Fatalf("receipt sends = %v, want one to guest@example.com", mailer.sends)
	}
}

func TestConcurrentSettlementsBothCounted(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	gw := &fakeGateway{}
	svc := services.NewDonationService(store, gw, nil)

	var orderIDs []string
	for _, amount := range []float64{300, 700} {
		result, err := svc.CreateOrder(context.Background(), services.CreateOrderInput{
			Amount:     amount,
			CampaignID: campaign.ID.Hex(),
			UserID:     primitive.NewObjectID().Hex(),
		})
		if err != nil {
			t.Fatalf("CreateOrder(%.0f): %v", amount, err)
		}
		orderIDs = append(orderIDs, result.Order.ID)
	}

	var wg sync.WaitGroup
	for _, orderID := range orderIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			settle(t, svc, id)
		}(orderID)
	}
	wg.Wait()

	if got := store.raised(campaign.ID); got != 1000 {
		t.Fatalf("raised = %.2f after concurrent settlements, want 1000", got)
	}
}

func TestEndToEndCaptureFlow(t *testing.T) {
	campaign := activeCampaign()
	store := newMemStore()
	store.addCampaign(campaign)
	svc := services.NewDonationService(store, &fakeGateway{}, nil)

	result, err := svc.CreateOrder(context.Background(), services.CreateOrderInput{
		Amount:     1000,
		Email:      "donor@example.com",
		CampaignID: campaign.ID.Hex(),
		UserID:     primitive.NewObjectID().Hex(),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	settle(t, svc, result.Order.ID)
	if d := store.donation(result.Order.ID); d.Status != models.DonationPaid {
		t.Fatalf("status = %s, want PAID", d.Status)
	}
	if got := store.raised(campaign.ID); got != 1000 {
		t.Fatalf("raised = %.2f, want 1000", got)
	}

	settle(t, svc, result.Order.ID)
	if got := store.raised(campaign.ID); got != 1000 {
		t.Fatalf("raised = %.2f after duplicate webhook, want 1000", got)
	}
}
