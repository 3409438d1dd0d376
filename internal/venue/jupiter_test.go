package venue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"soltrader/internal/config"
)

func newJupiterForTest(t *testing.T, handler http.HandlerFunc) *JupiterClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewJupiterClient(config.VenueConfig{
		Name:    "jupiter",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func quoteForTest() Quote {
	return Quote{
		Venue:     "jupiter",
		Symbol:    "SOL/USDT",
		Side:      SideBuy,
		Price:     100,
		OutAmount: 10,
		RouteRef:  "route-1",
	}
}

func TestJupiterQuote_ParsesResponse(t *testing.T) {
	client := newJupiterForTest(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("slippageBps"); got != "50" {
			t.Errorf("expected slippageBps=50, got %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"price":          "101.5",
			"outAmount":      "9.85",
			"priceImpactPct": "0.3",
			"routePlan":      "route-1",
		})
	})

	quote, err := client.Quote(context.Background(), QuoteRequest{
		Symbol: "SOL/USDT", Side: SideBuy, Amount: 10, SlippageBps: 50,
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	if quote.Price != 101.5 || quote.OutAmount != 9.85 {
		t.Errorf("unexpected quote values: %+v", quote)
	}
	if quote.PriceImpactPct != 0.3 {
		t.Errorf("expected price impact 0.3, got %f", quote.PriceImpactPct)
	}
	if quote.RouteRef != "route-1" {
		t.Errorf("expected route ref, got %q", quote.RouteRef)
	}
}

func TestJupiterQuote_MalformedPriceRejected(t *testing.T) {
	client := newJupiterForTest(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"price": "not-a-number", "outAmount": "9.85", "priceImpactPct": "0.3", "routePlan": "r",
		})
	})

	_, err := client.Quote(context.Background(), QuoteRequest{Symbol: "SOL/USDT", Side: SideBuy, Amount: 10})
	if KindOf(err) != FailureMalformed {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("malformed responses must not be retried")
	}
}

func TestJupiterExecute_SendsIdempotencyKey(t *testing.T) {
	var gotHeader, gotBody string
	client := newJupiterForTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Idempotency-Key")
		var req jupiterSwapRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotBody = req.IdempotencyKey
		_ = json.NewEncoder(w).Encode(jupiterSwapResponse{
			Status: "filled", TxID: "tx-1", FillPrice: 100, FillAmount: 10,
		})
	})

	receipt, err := client.Execute(context.Background(), SwapRequest{Quote: quoteForTest(), IdempotencyKey: "key-1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotHeader != "key-1" || gotBody != "key-1" {
		t.Errorf("idempotency key not propagated: header=%q body=%q", gotHeader, gotBody)
	}
	if receipt.Duplicate {
		t.Error("fresh fill must not be marked duplicate")
	}
}

func TestJupiterExecute_AlreadyProcessedIsDuplicateSuccess(t *testing.T) {
	client := newJupiterForTest(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jupiterSwapResponse{
			Status: "already_processed", TxID: "tx-1", FillPrice: 100, FillAmount: 10,
		})
	})

	receipt, err := client.Execute(context.Background(), SwapRequest{Quote: quoteForTest(), IdempotencyKey: "key-1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !receipt.Duplicate {
		t.Error("expected duplicate flag for already_processed")
	}
	if receipt.TxRef != "tx-1" {
		t.Errorf("expected tx ref, got %q", receipt.TxRef)
	}
}

func TestJupiter_StatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		kind      FailureKind
		retryable bool
	}{
		{http.StatusUnauthorized, FailureRejected, false},
		{http.StatusForbidden, FailureRejected, false},
		{http.StatusBadRequest, FailureRejected, false},
		{http.StatusTooManyRequests, FailureThrottled, true},
		{http.StatusInternalServerError, FailureUnavailable, true},
		{http.StatusBadGateway, FailureUnavailable, true},
	}

	for _, tc := range cases {
		client := newJupiterForTest(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", tc.status)
		})

		_, err := client.Execute(context.Background(), SwapRequest{Quote: quoteForTest(), IdempotencyKey: "key-1"})
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}

		var vErr *Error
		if !errors.As(err, &vErr) {
			t.Fatalf("status %d: expected venue error, got %v", tc.status, err)
		}
		if vErr.Kind != tc.kind {
			t.Errorf("status %d: expected kind %s, got %s", tc.status, tc.kind, vErr.Kind)
		}
		if IsRetryable(err) != tc.retryable {
			t.Errorf("status %d: expected retryable=%v", tc.status, tc.retryable)
		}
	}
}

func TestJupiter_TimeoutIsRetryable(t *testing.T) {
	client := newJupiterForTest(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Quote(ctx, QuoteRequest{Symbol: "SOL/USDT", Side: SideBuy, Amount: 10})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if KindOf(err) != FailureTimeout {
		t.Errorf("expected timeout kind, got %s", KindOf(err))
	}
	if !IsRetryable(err) {
		t.Error("timeouts must be retryable")
	}
}
