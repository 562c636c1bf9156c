package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ananya/studentfund-go/apperr"
	config "github.com/ananya/studentfund-go/config"
	models "github.com/ananya/studentfund-go/models"
	"github.com/ananya/studentfund-go/services"
	utils "github.com/ananya/studentfund-go/utils"
)

// ---------------- CREATE ORDER ----------------
func CreateDonationOrder(cfg *config.Config, svc *services.DonationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Amount     float64 `json:"amount" binding:"required"`
			Email      string  `json:"email" binding:"omitempty,email"`
			ProjectID  string  `json:"projectId" binding:"required"`
			GuestEmail string  `json:"guestEmail" binding:"omitempty,email"`
			GuestPAN   string  `json:"guestPAN" binding:"omitempty,pan"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := svc.CreateOrder(c.Request.Context(), services.CreateOrderInput{
			Amount:     input.Amount,
			Email:      input.Email,
			CampaignID: input.ProjectID,
			UserID:     c.GetString("user_id"),
			GuestEmail: input.GuestEmail,
			GuestPAN:   input.GuestPAN,
		})
		if err != nil {
			appErr := apperr.From(err)
			c.JSON(appErr.StatusCode, gin.H{"error": appErr.Message})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"orderId":    result.Order.ID,
			"amount":     result.Order.Amount,
			"currency":   result.Order.Currency,
			"keyId":      cfg.RazorpayKeyID,
			"donationId": result.Donation.ID.Hex(),
			"receiptNo":  result.Donation.ReceiptNo,
		})
	}
}

// ---------------- VERIFY PAYMENT ----------------
// Synchronous confirmation path: the client posts the signature Razorpay
// returns from checkout. Defense in depth next to the webhook; settles
// through the same idempotent reconcile, so a webhook landing first (or
// after) is harmless.
func VerifyPayment(cfg *config.Config, svc *services.DonationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			RazorpayOrderID   string `json:"razorpayOrderId" binding:"required"`
			RazorpayPaymentID string `json:"razorpayPaymentId" binding:"required"`
			RazorpaySignature string `json:"razorpaySignature" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !utils.VerifyPaymentSignature(input.RazorpayOrderID, input.RazorpayPaymentID, input.RazorpaySignature, cfg.RazorpayKeySecret) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payment signature mismatch"})
			return
		}

		err := svc.Reconcile(c.Request.Context(), services.GatewayEvent{
			Type:      "payment.captured",
			OrderID:   input.RazorpayOrderID,
			PaymentID: input.RazorpayPaymentID,
		})
		if err != nil {
			appErr := apperr.From(err)
			c.JSON(appErr.StatusCode, gin.H{"error": appErr.Message})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ---------------- LIST BY CAMPAIGN ----------------
func ListCampaignDonations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		requesterID := c.GetString("user_id")

		campaignID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
			return
		}

		db := cfg.MongoClient.Database(cfg.DBName)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var campaign models.Campaign
		if err := db.Collection("campaigns").FindOne(ctx, bson.M{"_id": campaignID}).Decode(&campaign); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		if role != "ADMIN" && campaign.UserID.Hex() != requesterID {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		filter := bson.M{"campaign_id": campaignID}
		if status := c.Query("status"); status != "" {
			if !validStatusFilter(status) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "status must be CREATED, PAID or FAILED"})
				return
			}
			filter["status"] = status
		}

		cursor, err := db.Collection("donations").Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": -1}))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch donations"})
			return
		}

		donations := []models.Donation{}
		if err := cursor.All(ctx, &donations); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode donations"})
			return
		}

		c.JSON(http.StatusOK, donations)
	}
}

// ---------------- LIST MINE ----------------
func ListMyDonations(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := primitive.ObjectIDFromHex(c.GetString("user_id"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		filter := bson.M{"user_id": userID}
		if status := c.Query("status"); status != "" {
			if !validStatusFilter(status) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "status must be CREATED, PAID or FAILED"})
				return
			}
			filter["status"] = status
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("donations")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cursor, err := col.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": -1}))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch donations"})
			return
		}

		donations := []models.Donation{}
		if err := cursor.All(ctx, &donations); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode donations"})
			return
		}

		c.JSON(http.StatusOK, donations)
	}
}

func validStatusFilter(status string) bool {
	switch models.DonationStatus(status) {
	case models.DonationCreated, models.DonationPaid, models.DonationFailed:
		return true
	}
	return false
}
