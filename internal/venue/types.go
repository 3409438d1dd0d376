package venue

import (
	"context"
	"time"
)

// Side 表示兑换方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// QuoteRequest 描述一次询价。
type QuoteRequest struct {
	Symbol      string
	Side        Side
	Amount      float64
	SlippageBps int
}

// Quote 为执行场所返回的报价。
type Quote struct {
	Venue          string
	Symbol         string
	Side           Side
	Price          float64
	OutAmount      float64
	PriceImpactPct float64
	RouteRef       string
	RetrievedAt    time.Time
}

// SwapRequest 基于已获得的报价发起执行。
// IdempotencyKey 由调用方生成，场所据此去重被重放的请求。
type SwapRequest struct {
	Quote          Quote
	IdempotencyKey string
}

// Receipt 为一次成功执行的回执。
// Duplicate 表示场所识别出重复请求并返回了此前的成交结果。
type Receipt struct {
	Venue      string
	Symbol     string
	Side       Side
	FillPrice  float64
	FillAmount float64
	TxRef      string
	Duplicate  bool
}

// Client 抽象单个执行场所的询价与执行能力。
// 实现必须无状态，超时通过 ctx 控制。
type Client interface {
	Name() string
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	Execute(ctx context.Context, req SwapRequest) (Receipt, error)
}
