package strategy

// trendStrength 对收盘序列做一元线性回归，返回拟合优度 R²。
// R² 接近 1 说明价格沿直线运动，视为趋势市。
func trendStrength(closes []float64) float64 {
	n := len(closes)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range closes {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}

	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	meanY := sumY / fn
	var ssTot, ssRes float64
	for i, y := range closes {
		fit := slope*float64(i) + intercept
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - meanY) * (y - meanY)
	}

	if ssTot == 0 {
		// 价格完全持平：没有趋势可言。
		return 0
	}

	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}

// detectRegime 根据 R² 阈值划分市场形态。
func detectRegime(closes []float64, r2Threshold float64) Regime {
	if trendStrength(closes) >= r2Threshold {
		return RegimeTrending
	}
	return RegimeRanging
}
