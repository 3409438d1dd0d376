package strategy

import (
	"context"

	"soltrader/internal/marketdata"
)

// Action 为策略给出的操作建议。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Regime 表示市场形态。
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
)

// Signal 为策略选择器的最终产出。
type Signal struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	StrategyID string  `json:"strategy_id"`
	Regime     Regime  `json:"regime"`
	Reason     string  `json:"reason,omitempty"`
}

// Hold 返回一个不操作信号。
func Hold(strategyID string, regime Regime, reason string) Signal {
	return Signal{
		Action:     ActionHold,
		Confidence: 0,
		StrategyID: strategyID,
		Regime:     regime,
		Reason:     reason,
	}
}

// Strategy 为单个可注册策略。
type Strategy interface {
	// ID 返回策略的稳定标识。
	ID() string
	// Applicable 判断策略是否适用于当前市场形态。
	Applicable(regime Regime) bool
	// Evaluate 基于行情快照给出信号。
	Evaluate(ctx context.Context, snapshot marketdata.MarketSnapshot) (Signal, error)
}

// BoostSource 提供附加的情绪增益，失败时返回零值。
type BoostSource interface {
	Boost(ctx context.Context, symbol string) float64
}
