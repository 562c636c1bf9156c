package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testClient(baseURL string) *razorpayClient {
	return &razorpayClient{
		keyID:     "rzp_test_key",
		keySecret: "key_secret_test",
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func TestCreateOrderRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		attempt := len(hits)
		mu.Unlock()

		if attempt < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"order_retry1","amount":10000,"currency":"INR","receipt":"rcpt1","status":"created"}`))
	}))
	defer srv.Close()

	order, err := testClient(srv.URL).CreateOrder(context.Background(), 10000, "INR", "rcpt1")
	if err != nil {
		t.Fatalf("CreateOrder returned error after retries: %v", err)
	}
	if order.ID != "order_retry1" {
		t.Errorf("order ID = %q, want order_retry1", order.ID)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 3 {
		t.Fatalf("gateway hit %d times, want 3", len(hits))
	}
	// The first retry must wait before re-dialing the gateway.
	if gap := hits[1].Sub(hits[0]); gap < 900*time.Millisecond {
		t.Errorf("first retry fired after %v, want at least ~1s of backoff", gap)
	}
	if gap := hits[2].Sub(hits[1]); gap < hits[1].Sub(hits[0]) {
		t.Errorf("backoff did not grow: second gap %v < first gap %v", gap, hits[1].Sub(hits[0]))
	}
}

func TestCreateOrderClientErrorNotRetried(t *testing.T) {
	var mu sync.Mutex
	hits := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"description":"amount is invalid"}}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).CreateOrder(context.Background(), -1, "INR", "rcpt2"); err == nil {
		t.Fatal("CreateOrder succeeded on a 400 response, want error")
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("gateway hit %d times for a 4xx response, want 1", hits)
	}
}
