package monitor

import (
	"testing"

	"soltrader/internal/position"
)

func basePosition() *position.Position {
	return &position.Position{
		ID:         "pos-1",
		Symbol:     "SOL/USDT",
		EntryPrice: 100,
		PeakPrice:  100,
		Status:     position.StatusOpen,
		Bracket: position.RiskBracket{
			TakeProfitPct: 20,
			StopLossPct:   10,
		},
	}
}

func TestEvaluateTriggers_TakeProfit(t *testing.T) {
	p := basePosition()

	if _, ok := evaluateTriggers(p, 119.99); ok {
		t.Error("expected no trigger just below take-profit level")
	}

	reason, ok := evaluateTriggers(p, 120)
	if !ok || reason != position.ExitTakeProfit {
		t.Errorf("expected take_profit at level, got %v ok=%v", reason, ok)
	}
}

func TestEvaluateTriggers_StopLoss(t *testing.T) {
	p := basePosition()

	if _, ok := evaluateTriggers(p, 90.01); ok {
		t.Error("expected no trigger just above stop-loss level")
	}

	reason, ok := evaluateTriggers(p, 90)
	if !ok || reason != position.ExitStopLoss {
		t.Errorf("expected stop_loss at level, got %v ok=%v", reason, ok)
	}
}

func TestEvaluateTriggers_TakeProfitWinsWhenMultipleConditionsHold(t *testing.T) {
	// 跟踪止损同样命中（峰值远高于现价），但止盈优先。
	p := basePosition()
	p.Bracket.TrailingStopEnabled = true
	p.Bracket.TrailingStopPct = 5
	p.PeakPrice = 200

	reason, ok := evaluateTriggers(p, 125)
	if !ok {
		t.Fatal("expected a trigger")
	}
	if reason != position.ExitTakeProfit {
		t.Errorf("expected take_profit to take priority, got %s", reason)
	}
}

func TestEvaluateTriggers_StopLossBeatsTrailing(t *testing.T) {
	p := basePosition()
	p.Bracket.TrailingStopEnabled = true
	p.Bracket.TrailingStopPct = 5
	p.PeakPrice = 110

	reason, ok := evaluateTriggers(p, 89)
	if !ok {
		t.Fatal("expected a trigger")
	}
	if reason != position.ExitStopLoss {
		t.Errorf("expected stop_loss over trailing_stop, got %s", reason)
	}
}

func TestEvaluateTriggers_TrailingFromPeak(t *testing.T) {
	p := basePosition()
	p.Bracket.TrailingStopEnabled = true
	p.Bracket.TrailingStopPct = 5
	p.PeakPrice = 115

	// 115 * 0.95 = 109.25
	if _, ok := evaluateTriggers(p, 109.3); ok {
		t.Error("expected no trigger above trailing level")
	}

	reason, ok := evaluateTriggers(p, 109.25)
	if !ok || reason != position.ExitTrailingStop {
		t.Errorf("expected trailing_stop at level, got %v ok=%v", reason, ok)
	}
}

func TestEvaluateTriggers_TrailingDisabled(t *testing.T) {
	p := basePosition()
	p.PeakPrice = 115

	if _, ok := evaluateTriggers(p, 109); ok {
		t.Error("expected no trailing trigger when disabled")
	}
}

func TestEvaluateTriggers_IgnoresNonPositivePrice(t *testing.T) {
	p := basePosition()

	if _, ok := evaluateTriggers(p, 0); ok {
		t.Error("expected no trigger for zero price")
	}
	if _, ok := evaluateTriggers(p, -5); ok {
		t.Error("expected no trigger for negative price")
	}
}
