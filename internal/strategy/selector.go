package strategy

import (
	"context"

	"go.uber.org/zap"

	"soltrader/internal/config"
	"soltrader/internal/marketdata"
)

// Selector 先判定市场形态，再按注册顺序挑选第一个适用策略。
// 注册表在构造时固定，相同输入必然产出相同信号。
type Selector struct {
	strategies []Strategy
	boost      BoostSource
	cfg        config.StrategyConfig
	logger     *zap.Logger
}

// NewSelector 创建策略选择器。boost 可为 nil。
func NewSelector(cfg config.StrategyConfig, boost BoostSource, logger *zap.Logger, strategies ...Strategy) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(strategies) == 0 {
		strategies = []Strategy{NewTrendFollower(), NewMeanReversion()}
	}
	return &Selector{
		strategies: strategies,
		boost:      boost,
		cfg:        cfg,
		logger:     logger,
	}
}

// Select 基于行情快照产出最终交易信号。
// 历史不足或无适用策略时返回 Hold，不报错。
func (s *Selector) Select(ctx context.Context, snapshot marketdata.MarketSnapshot) (Signal, error) {
	if len(snapshot.Prices) < s.cfg.MinHistory {
		return Hold("", RegimeRanging, "历史数据不足"), nil
	}

	regime := detectRegime(snapshot.Prices, s.cfg.TrendR2Threshold)

	var chosen Strategy
	for _, st := range s.strategies {
		if st.Applicable(regime) {
			chosen = st
			break
		}
	}
	if chosen == nil {
		return Hold("", regime, "无适用策略"), nil
	}

	signal, err := chosen.Evaluate(ctx, snapshot)
	if err != nil {
		return Signal{}, err
	}
	signal.Regime = regime

	if signal.Action != ActionHold && s.boost != nil {
		boost := s.boost.Boost(ctx, snapshot.Symbol)
		if boost > 0 {
			signal.Confidence = clamp01(signal.Confidence + boost)
		}
	}

	// 置信度不达标一律降级为观望。
	if signal.Action != ActionHold && signal.Confidence < s.cfg.MinConfidence {
		s.logger.Debug("信号置信度不足，降级为观望",
			zap.String("symbol", snapshot.Symbol),
			zap.String("strategy", signal.StrategyID),
			zap.Float64("confidence", signal.Confidence),
			zap.Float64("floor", s.cfg.MinConfidence),
		)
		held := Hold(signal.StrategyID, regime, "置信度低于下限")
		return held, nil
	}

	return signal, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
