package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"soltrader/internal/engine"
	"soltrader/internal/position"
	"soltrader/internal/strategy"
)

// tick 对每个标的执行一轮「行情 -> 信号 -> 动作」决策。
// 单个标的失败不影响其他标的，错误记录后继续。
func (a *App) tick(ctx context.Context) error {
	for _, symbol := range a.cfg.Engine.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.decideSymbol(ctx, symbol); err != nil {
			a.logger.Error("标的决策失败",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			a.audit.RecordError(ctx, "标的决策失败", err, map[string]any{"symbol": symbol})
		}
	}
	return nil
}

func (a *App) decideSymbol(ctx context.Context, symbol string) error {
	// 决策必须基于新鲜行情，过期快照宁可放弃本轮。
	snapshot, err := a.market.FreshSnapshot(ctx, symbol)
	if err != nil {
		return err
	}

	signal, err := a.selector.Select(ctx, snapshot)
	if err != nil {
		return err
	}

	a.audit.RecordSignal(ctx, symbol, signal)
	a.logger.Debug("策略信号",
		zap.String("symbol", symbol),
		zap.String("action", string(signal.Action)),
		zap.Float64("confidence", signal.Confidence),
		zap.String("strategy", signal.StrategyID),
		zap.String("regime", string(signal.Regime)),
	)

	switch signal.Action {
	case strategy.ActionBuy:
		return a.handleBuy(ctx, symbol)
	case strategy.ActionSell:
		return a.handleSell(ctx, symbol)
	default:
		return nil
	}
}

func (a *App) handleBuy(ctx context.Context, symbol string) error {
	p, err := a.engine.OpenPosition(ctx, engine.OpenRequest{
		Symbol: symbol,
		Amount: a.cfg.Engine.TradeAmount,
		Bracket: position.RiskBracket{
			TakeProfitPct:       a.cfg.Engine.TakeProfitPct,
			StopLossPct:         a.cfg.Engine.StopLossPct,
			TrailingStopEnabled: a.cfg.Engine.TrailingStop,
			TrailingStopPct:     a.cfg.Engine.TrailingStopPct,
		},
	})
	if err != nil {
		// 已有持仓时的买入信号是常态，不算失败。
		if engine.IsConflict(err) {
			a.logger.Debug("已有活跃持仓，忽略买入信号", zap.String("symbol", symbol))
			return nil
		}
		return err
	}

	a.logger.Info("信号开仓成功",
		zap.String("symbol", symbol),
		zap.String("position_id", p.ID),
		zap.Float64("entry_price", p.EntryPrice),
	)
	return nil
}

func (a *App) handleSell(ctx context.Context, symbol string) error {
	active, err := a.engine.ListActivePositions(ctx)
	if err != nil {
		return err
	}

	for _, p := range active {
		if p.Symbol != symbol {
			continue
		}
		if err := a.engine.ClosePosition(ctx, p.ID); err != nil {
			if errors.Is(err, position.ErrAlreadyClosed) {
				continue
			}
			return err
		}
		a.logger.Info("信号平仓成功",
			zap.String("symbol", symbol),
			zap.String("position_id", p.ID),
		)
	}
	return nil
}
