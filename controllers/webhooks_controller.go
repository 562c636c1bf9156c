package controllers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ananya/studentfund-go/apperr"
	config "github.com/ananya/studentfund-go/config"
	"github.com/ananya/studentfund-go/services"
	utils "github.com/ananya/studentfund-go/utils"
)

// razorpayEnvelope is the webhook event wrapper Razorpay delivers.
type razorpayEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ---------------- WEBHOOK ----------------
func RazorpayWebhook(cfg *config.Config, svc *services.DonationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// The signature covers the body bytes exactly as sent, so read them
		// raw before any JSON decoding.
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
			return
		}

		signature := c.GetHeader("X-Razorpay-Signature")
		if !utils.VerifyWebhookSignature(body, signature, cfg.WebhookSecret) {
			log.Printf("Webhook signature mismatch from %s", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
			return
		}

		var envelope razorpayEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
			return
		}

		err = svc.Reconcile(c.Request.Context(), services.GatewayEvent{
			Type:      envelope.Event,
			OrderID:   envelope.Payload.Payment.Entity.OrderID,
			PaymentID: envelope.Payload.Payment.Entity.ID,
		})
		if err != nil {
			// Non-2xx so Razorpay redelivers after transient storage failures.
			log.Printf("Webhook reconciliation failed for event %s: %v", envelope.Event, err)
			appErr := apperr.From(err)
			c.JSON(appErr.StatusCode, gin.H{"error": appErr.Message})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
