package strategy

import (
	"context"
	"testing"
)

func TestTrendFollower_InsufficientHistory(t *testing.T) {
	st := NewTrendFollower()
	_, err := st.Evaluate(context.Background(), snapshotWith(trendingPrices(10)))
	if err == nil {
		t.Fatal("expected error for short history")
	}
}

func TestTrendFollower_NoCrossoverHolds(t *testing.T) {
	// 持续单边上行：快线始终在慢线上方，没有新交叉。
	st := NewTrendFollower()
	signal, err := st.Evaluate(context.Background(), snapshotWith(trendingPrices(60)))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if signal.Action != ActionHold {
		t.Errorf("expected hold without a fresh crossover, got %s", signal.Action)
	}
}

func TestMeanReversion_OversoldBuys(t *testing.T) {
	// 末段连续阴线，RSI 压至超卖区。
	prices := make([]float64, 40)
	for i := 0; i < 20; i++ {
		prices[i] = 100
	}
	for i := 20; i < 40; i++ {
		prices[i] = 100 - float64(i-19)*2
	}

	st := NewMeanReversion()
	signal, err := st.Evaluate(context.Background(), snapshotWith(prices))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if signal.Action != ActionBuy {
		t.Errorf("expected buy on oversold RSI, got %s", signal.Action)
	}
	if signal.Confidence < 0.55 {
		t.Errorf("expected confidence above floor for deep oversold, got %f", signal.Confidence)
	}
}

func TestMeanReversion_OverboughtSells(t *testing.T) {
	prices := make([]float64, 40)
	for i := 0; i < 20; i++ {
		prices[i] = 100
	}
	for i := 20; i < 40; i++ {
		prices[i] = 100 + float64(i-19)*2
	}

	st := NewMeanReversion()
	signal, err := st.Evaluate(context.Background(), snapshotWith(prices))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if signal.Action != ActionSell {
		t.Errorf("expected sell on overbought RSI, got %s", signal.Action)
	}
}

func TestMeanReversion_NeutralHolds(t *testing.T) {
	st := NewMeanReversion()
	signal, err := st.Evaluate(context.Background(), snapshotWith(rangingPrices(40)))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if signal.Action != ActionHold {
		t.Errorf("expected hold in neutral RSI band, got %s", signal.Action)
	}
}
