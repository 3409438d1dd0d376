package marketdata

import "time"

const (
	// TimeframeHistory 为策略决策使用的历史周期。
	TimeframeHistory = "1h"
	// TimeframeRecent 为最新价采样周期。
	TimeframeRecent = "1m"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// MarketSnapshot 聚合一次决策所需的行情数据。
// 快照不可变，每个决策周期新建一份，用完即弃。
type MarketSnapshot struct {
	Symbol      string
	Candles     []Candle
	Prices      []float64
	Volume      float64
	RetrievedAt time.Time
}

// Age 返回快照相对 now 的陈旧程度。
func (s MarketSnapshot) Age(now time.Time) time.Duration {
	if s.RetrievedAt.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(s.RetrievedAt)
}

// LastPrice 返回快照中最新的收盘价。
func (s MarketSnapshot) LastPrice() float64 {
	if len(s.Prices) == 0 {
		return 0
	}
	return s.Prices[len(s.Prices)-1]
}
