package strategy

import (
	"context"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"soltrader/internal/marketdata"
)

const (
	fastPeriod = 9
	slowPeriod = 21
	rsiPeriod  = 14

	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// trendFollower 在趋势市中跟随均线交叉方向。
type trendFollower struct{}

// NewTrendFollower 创建趋势跟随策略。
func NewTrendFollower() Strategy {
	return &trendFollower{}
}

func (t *trendFollower) ID() string { return "trend_follower" }

func (t *trendFollower) Applicable(regime Regime) bool { return regime == RegimeTrending }

func (t *trendFollower) Evaluate(_ context.Context, snapshot marketdata.MarketSnapshot) (Signal, error) {
	closes := snapshot.Prices
	if len(closes) <= slowPeriod {
		return Signal{}, fmt.Errorf("strategy: %s 需要至少 %d 根K线, 实际 %d", t.ID(), slowPeriod+1, len(closes))
	}

	fast := talib.Ema(closes, fastPeriod)
	slow := talib.Sma(closes, slowPeriod)

	last := len(closes) - 1
	prev := last - 1

	signal := Signal{StrategyID: t.ID(), Regime: RegimeTrending}

	// 金叉做多，死叉离场，其余保持观望。
	switch {
	case fast[prev] <= slow[prev] && fast[last] > slow[last]:
		signal.Action = ActionBuy
		signal.Confidence = crossoverConfidence(fast[last], slow[last])
		signal.Reason = "快线上穿慢线"
	case fast[prev] >= slow[prev] && fast[last] < slow[last]:
		signal.Action = ActionSell
		signal.Confidence = crossoverConfidence(fast[last], slow[last])
		signal.Reason = "快线下穿慢线"
	default:
		signal.Action = ActionHold
		signal.Reason = "均线未形成交叉"
	}

	return signal, nil
}

// crossoverConfidence 以两线分离幅度衡量交叉的确定性。
func crossoverConfidence(fast, slow float64) float64 {
	if slow == 0 {
		return 0
	}
	gap := math.Abs(fast-slow) / math.Abs(slow)
	conf := 0.55 + gap*20
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}

// meanReversion 在震荡市中做 RSI 超买超卖回归。
type meanReversion struct{}

// NewMeanReversion 创建均值回归策略。
func NewMeanReversion() Strategy {
	return &meanReversion{}
}

func (m *meanReversion) ID() string { return "mean_reversion" }

func (m *meanReversion) Applicable(regime Regime) bool { return regime == RegimeRanging }

func (m *meanReversion) Evaluate(_ context.Context, snapshot marketdata.MarketSnapshot) (Signal, error) {
	closes := snapshot.Prices
	if len(closes) <= rsiPeriod {
		return Signal{}, fmt.Errorf("strategy: %s 需要至少 %d 根K线, 实际 %d", m.ID(), rsiPeriod+1, len(closes))
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	last := rsi[len(rsi)-1]

	signal := Signal{StrategyID: m.ID(), Regime: RegimeRanging}

	switch {
	case last <= rsiOversold:
		signal.Action = ActionBuy
		signal.Confidence = rsiConfidence(rsiOversold - last)
		signal.Reason = fmt.Sprintf("RSI %.1f 超卖", last)
	case last >= rsiOverbought:
		signal.Action = ActionSell
		signal.Confidence = rsiConfidence(last - rsiOverbought)
		signal.Reason = fmt.Sprintf("RSI %.1f 超买", last)
	default:
		signal.Action = ActionHold
		signal.Reason = fmt.Sprintf("RSI %.1f 位于中性区间", last)
	}

	return signal, nil
}

// rsiConfidence 以越界深度衡量信号强度。
func rsiConfidence(depth float64) float64 {
	conf := 0.55 + depth/100
	if conf > 0.9 {
		conf = 0.9
	}
	return conf
}
