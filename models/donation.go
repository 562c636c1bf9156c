package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DonationStatus is the payment lifecycle of a donation. It only moves
// forward: CREATED -> PAID or CREATED -> FAILED. PAID and FAILED are
// terminal, so a redelivered gateway event for a settled donation is a no-op.
type DonationStatus string

const (
	DonationCreated DonationStatus = "CREATED"
	DonationPaid    DonationStatus = "PAID"
	DonationFailed  DonationStatus = "FAILED"
)

// CanTransition reports whether a donation in status from may move to status
// to. Transitions out of a terminal status are never allowed.
func (from DonationStatus) CanTransition(to DonationStatus) bool {
	if from != DonationCreated {
		return false
	}
	return to == DonationPaid || to == DonationFailed
}

// Terminal reports whether the status accepts no further transitions.
func (s DonationStatus) Terminal() bool {
	return s == DonationPaid || s == DonationFailed
}

type Donation struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CampaignID        primitive.ObjectID `bson:"campaign_id" json:"campaign_id"`
	UserID            primitive.ObjectID `bson:"user_id,omitempty" json:"user_id,omitempty"`
	DonorEmail        string             `bson:"donor_email,omitempty" json:"donor_email,omitempty"`
	GuestEmail        string             `bson:"guest_email,omitempty" json:"guest_email,omitempty"`
	GuestPAN          string             `bson:"guest_pan,omitempty" json:"-"`
	Amount            float64            `bson:"amount" json:"amount"`
	Currency          string             `bson:"currency" json:"currency"`
	RazorpayOrderID   string             `bson:"razorpay_order_id" json:"razorpay_order_id"`
	RazorpayPaymentID string             `bson:"razorpay_payment_id,omitempty" json:"razorpay_payment_id,omitempty"`
	Status            DonationStatus     `bson:"status" json:"status"`
	ReceiptNo         string             `bson:"receipt_no" json:"receipt_no"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}
