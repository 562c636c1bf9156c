package services

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ananya/studentfund-go/apperr"
	"github.com/ananya/studentfund-go/gateway"
	"github.com/ananya/studentfund-go/models"
	"github.com/ananya/studentfund-go/utils"
)

// Mailer delivers receipt emails. Failures are logged, never surfaced to the
// gateway.
type Mailer interface {
	Send(to, subject, body string) error
}

// MailerFunc adapts a plain function to the Mailer interface.
type MailerFunc func(to, subject, body string) error

func (f MailerFunc) Send(to, subject, body string) error {
	return f(to, subject, body)
}

// DonationService owns the donation ledger: opening payment orders and
// reconciling gateway events into donation/campaign state.
type DonationService struct {
	store   Store
	gateway gateway.Client
	mailer  Mailer
}

func NewDonationService(store Store, gw gateway.Client, mailer Mailer) *DonationService {
	return &DonationService{store: store, gateway: gw, mailer: mailer}
}

type CreateOrderInput struct {
	Amount     float64
	Email      string
	CampaignID string
	UserID     string // hex object id of the authenticated donor, empty for guests
	GuestEmail string
	GuestPAN   string
}

// OrderResult is what the client needs to open the Razorpay checkout.
type OrderResult struct {
	Donation *models.Donation
	Order    *gateway.Order
}

// CreateOrder validates a pledge, opens a gateway order and records a CREATED
// donation pointing at it. Validation happens strictly before the gateway
// call, and the local row is only written after the gateway call succeeds, so
// a gateway failure leaves no orphaned donation.
func (s *DonationService) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error) {
	if in.Amount <= 0 {
		return nil, apperr.Validation("amount must be greater than 0")
	}

	campaignID, err := primitive.ObjectIDFromHex(in.CampaignID)
	if err != nil {
		return nil, apperr.Validation("invalid campaign id")
	}
	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if campaign == nil {
		return nil, apperr.Validation("campaign not found")
	}
	if !campaign.Fundable(time.Now()) {
		return nil, apperr.Validation("campaign is not accepting donations")
	}

	// Payer identity: a donation belongs to either the authenticated donor
	// or a guest, never both and never neither. Within the guest path a
	// guest email without a PAN is rejected before any gateway call; a PAN
	// without a guest email is tolerated.
	var userID primitive.ObjectID
	if in.UserID != "" {
		if in.GuestEmail != "" || in.GuestPAN != "" {
			return nil, apperr.Validation("guest fields are not allowed for authenticated donations")
		}
		userID, err = primitive.ObjectIDFromHex(in.UserID)
		if err != nil {
			return nil, apperr.Validation("invalid user id")
		}
	} else {
		if in.GuestEmail == "" && in.GuestPAN == "" {
			return nil, apperr.Validation("authentication or guest details required")
		}
		if in.GuestEmail != "" && in.GuestPAN == "" {
			return nil, apperr.Validation("guest donations require a PAN")
		}
		if in.GuestPAN != "" && !utils.IsValidPAN(in.GuestPAN) {
			return nil, apperr.Validation("invalid PAN format")
		}
	}

	receiptNo := uuid.NewString()
	amountPaise := int64(math.Round(in.Amount * 100))
	order, err := s.gateway.CreateOrder(ctx, amountPaise, "INR", receiptNo)
	if err != nil {
		return nil, apperr.Gateway(err)
	}

	donorEmail := in.Email
	if donorEmail == "" {
		donorEmail = in.GuestEmail
	}

	now := time.Now()
	donation := &models.Donation{
		ID:              primitive.NewObjectID(),
		CampaignID:      campaignID,
		UserID:          userID,
		DonorEmail:      donorEmail,
		GuestEmail:      in.GuestEmail,
		GuestPAN:        in.GuestPAN,
		Amount:          in.Amount,
		Currency:        order.Currency,
		RazorpayOrderID: order.ID,
		Status:          models.DonationCreated,
		ReceiptNo:       receiptNo,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.InsertDonation(ctx, donation); err != nil {
		return nil, apperr.Storage(err)
	}

	log.Printf("Donation created: ID=%s, OrderID=%s, Campaign=%s, Amount=%.2f",
		donation.ID.Hex(), order.ID, campaignID.Hex(), in.Amount)
	return &OrderResult{Donation: donation, Order: order}, nil
}

// GatewayEvent is a verified webhook (or synchronous confirmation) delivery.
type GatewayEvent struct {
	Type      string
	OrderID   string
	PaymentID string
}

// Reconcile applies a verified gateway event to the ledger. Only
// payment.captured and payment.failed change state; everything else is
// acknowledged and ignored. Unknown orders and already-settled donations are
// acknowledged no-ops so the gateway stops redelivering. A storage failure is
// returned as an error so the handler responds non-2xx and the gateway
// retries.
func (s *DonationService) Reconcile(ctx context.Context, ev GatewayEvent) error {
	var to models.DonationStatus
	switch ev.Type {
	case "payment.captured":
		to = models.DonationPaid
	case "payment.failed":
		to = models.DonationFailed
	default:
		log.Printf("Ignoring webhook event type %s", ev.Type)
		return nil
	}

	donation, applied, err := s.store.SettleDonation(ctx, ev.OrderID, ev.PaymentID, to)
	if err != nil {
		return apperr.Storage(err)
	}
	if donation == nil {
		// Unknown order: acknowledge so the gateway does not retry an event
		// this system can never resolve.
		log.Printf("No donation for order %s, acknowledging without changes", ev.OrderID)
		return nil
	}
	if !applied {
		return nil
	}

	log.Printf("Donation %s settled as %s for order %s", donation.ID.Hex(), to, ev.OrderID)
	if to == models.DonationPaid {
		s.sendReceipt(ctx, donation)
	}
	return nil
}

func (s *DonationService) sendReceipt(ctx context.Context, d *models.Donation) {
	if s.mailer == nil || d.DonorEmail == "" {
		return
	}
	title := "your campaign"
	if campaign, err := s.store.GetCampaign(ctx, d.CampaignID); err == nil && campaign != nil {
		title = campaign.Title
	}
	body := utils.ReceiptEmailBody(title, d.ReceiptNo, d.Amount, d.Currency)
	if err := s.mailer.Send(d.DonorEmail, "Your donation receipt", body); err != nil {
		log.Printf("Failed to send receipt for donation %s: %v", d.ID.Hex(), err)
	}
}
