package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Order is a payment order opened with Razorpay. Amount is in the currency's
// minor unit (paise).
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Client opens payment orders with the gateway. Injected into the donation
// service so tests can substitute a fake.
type Client interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*Order, error)
}

type razorpayClient struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
}

// NewRazorpayClient builds a Client backed by the Razorpay Orders API.
func NewRazorpayClient(keyID, keySecret string) Client {
	return &razorpayClient{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   "https://api.razorpay.com/v1",
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *razorpayClient) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*Order, error) {
	orderReq := map[string]interface{}{
		"amount":   amountPaise,
		"currency": currency,
		"receipt":  receipt,
	}
	reqBody, err := json.Marshal(orderReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order request: %v", err)
	}

	var resp *http.Response
	for retries := 3; retries > 0; retries-- {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/orders", bytes.NewBuffer(reqBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create order request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.keyID+":"+c.keySecret)))

		resp, err = c.http.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}
		if err != nil {
			log.Printf("Order request failed (attempt %d): %v", 4-retries, err)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("order creation cancelled: %v", ctx.Err())
			}
			if retries == 1 {
				return nil, fmt.Errorf("order creation failed: %v", err)
			}
		} else {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			log.Printf("Order request failed with status %d (attempt %d): %s", resp.StatusCode, 4-retries, string(body))
			// 4xx responses will not improve on retry
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, fmt.Errorf("order creation rejected, status %d: %s", resp.StatusCode, string(body))
			}
			if retries == 1 {
				return nil, fmt.Errorf("order creation failed, status %d: %s", resp.StatusCode, string(body))
			}
		}
		// Backoff grows with each attempt: 1s before the first retry, 2s
		// before the second.
		time.Sleep(time.Second * time.Duration(4-retries))
	}
	defer resp.Body.Close()

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %v", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("no order id in gateway response")
	}

	log.Printf("Razorpay order created: ID=%s, Amount=%d, Receipt=%s", order.ID, order.Amount, order.Receipt)
	return &order, nil
}
