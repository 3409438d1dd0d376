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

func newRaydiumForTest(t *testing.T, handler http.HandlerFunc) *RaydiumClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewRaydiumClient(config.VenueConfig{
		Name:    "raydium",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func envelope(success bool, msg string, data any) []byte {
	raw, _ := json.Marshal(data)
	out, _ := json.Marshal(map[string]any{
		"success": success,
		"msg":     msg,
		"data":    json.RawMessage(raw),
	})
	return out
}

func TestRaydiumQuote_ParsesEnvelope(t *testing.T) {
	client := newRaydiumForTest(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/compute/swap-base-in" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write(envelope(true, "", raydiumComputeData{
			Price: 99.5, OutputAmount: 10.05, PriceImpact: 0.4, PoolID: "pool-1",
		}))
	})

	quote, err := client.Quote(context.Background(), QuoteRequest{Symbol: "SOL/USDT", Side: SideBuy, Amount: 10})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Price != 99.5 || quote.RouteRef != "pool-1" {
		t.Errorf("unexpected quote: %+v", quote)
	}
}

func TestRaydium_EnvelopeFailureIsRejected(t *testing.T) {
	client := newRaydiumForTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(envelope(false, "pool frozen", nil))
	})

	_, err := client.Quote(context.Background(), QuoteRequest{Symbol: "SOL/USDT", Side: SideBuy, Amount: 10})
	var vErr *Error
	if !errors.As(err, &vErr) {
		t.Fatalf("expected venue error, got %v", err)
	}
	if vErr.Kind != FailureRejected {
		t.Errorf("expected rejected kind for envelope failure, got %s", vErr.Kind)
	}
	if IsRetryable(err) {
		t.Error("envelope rejections must not be retried")
	}
}

func TestRaydiumExecute_PropagatesClientOrderID(t *testing.T) {
	var gotOrderID string
	client := newRaydiumForTest(t, func(w http.ResponseWriter, r *http.Request) {
		var payload raydiumSwapPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotOrderID = payload.ClientOrderID
		_, _ = w.Write(envelope(true, "", raydiumSwapData{
			TxID: "tx-9", Price: 99.5, Amount: 10, Duplicate: false,
		}))
	})

	receipt, err := client.Execute(context.Background(), SwapRequest{
		Quote:          Quote{Symbol: "SOL/USDT", Side: SideSell, OutAmount: 10, RouteRef: "pool-1"},
		IdempotencyKey: "key-7",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotOrderID != "key-7" {
		t.Errorf("expected client order id key-7, got %q", gotOrderID)
	}
	if receipt.TxRef != "tx-9" {
		t.Errorf("expected tx ref, got %q", receipt.TxRef)
	}
}

func TestRaydiumExecute_DuplicateFlagSurfaced(t *testing.T) {
	client := newRaydiumForTest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(envelope(true, "", raydiumSwapData{
			TxID: "tx-9", Price: 99.5, Amount: 10, Duplicate: true,
		}))
	})

	receipt, err := client.Execute(context.Background(), SwapRequest{
		Quote:          Quote{Symbol: "SOL/USDT", Side: SideSell, OutAmount: 10, RouteRef: "pool-1"},
		IdempotencyKey: "key-7",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !receipt.Duplicate {
		t.Error("expected duplicate flag surfaced")
	}
}
