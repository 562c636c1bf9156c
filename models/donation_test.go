package models_test

import (
	"testing"

	"github.com/ananya/studentfund-go/models"
)

func TestDonationStatusTransitions(t *testing.T) {
	cases := []struct {
		from models.DonationStatus
		to   models.DonationStatus
		want bool
	}{
		{models.DonationCreated, models.DonationPaid, true},
		{models.DonationCreated, models.DonationFailed, true},
		{models.DonationPaid, models.DonationFailed, false},
		{models.DonationPaid, models.DonationPaid, false},
		{models.DonationPaid, models.DonationCreated, false},
		{models.DonationFailed, models.DonationPaid, false},
		{models.DonationCreated, models.DonationCreated, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if models.DonationCreated.Terminal() {
		t.Error("CREATED must not be terminal")
	}
	if !models.DonationPaid.Terminal() || !models.DonationFailed.Terminal() {
		t.Error("PAID and FAILED must be terminal")
	}
}
