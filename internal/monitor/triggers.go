package monitor

import "soltrader/internal/position"

// evaluateTriggers 按固定优先级评估退出条件：止盈 > 止损 > 跟踪止损。
// 多个条件同时命中时只返回优先级最高的一个。
func evaluateTriggers(p *position.Position, price float64) (position.ExitReason, bool) {
	if price <= 0 {
		return "", false
	}

	tpLevel := p.EntryPrice * (1 + p.Bracket.TakeProfitPct/100)
	if price >= tpLevel {
		return position.ExitTakeProfit, true
	}

	slLevel := p.EntryPrice * (1 - p.Bracket.StopLossPct/100)
	if price <= slLevel {
		return position.ExitStopLoss, true
	}

	if p.Bracket.TrailingStopEnabled && p.PeakPrice > 0 {
		trailLevel := p.PeakPrice * (1 - p.Bracket.TrailingStopPct/100)
		if price <= trailLevel {
			return position.ExitTrailingStop, true
		}
	}

	return "", false
}
