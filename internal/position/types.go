package position

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Status 表示持仓生命周期状态。
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusDegraded Status = "DEGRADED"
	StatusClosed   Status = "CLOSED"
)

// ExitReason 表示平仓原因。
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "take_profit"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitManual       ExitReason = "manual"
)

// RiskBracket 为开仓时固化的风控参数，持仓期间不可变。
type RiskBracket struct {
	TakeProfitPct       float64 `json:"take_profit_pct"`
	StopLossPct         float64 `json:"stop_loss_pct"`
	TrailingStopEnabled bool    `json:"trailing_stop_enabled"`
	TrailingStopPct     float64 `json:"trailing_stop_pct"`
}

// Validate 校验风控参数取值范围。
func (b RiskBracket) Validate() error {
	var err error
	if b.TakeProfitPct <= 0 {
		err = multierr.Append(err, errors.New("take_profit_pct 必须大于0"))
	}
	if b.StopLossPct <= 0 || b.StopLossPct >= 100 {
		err = multierr.Append(err, errors.New("stop_loss_pct 必须位于(0,100)"))
	}
	if b.TrailingStopEnabled && (b.TrailingStopPct <= 0 || b.TrailingStopPct >= 100) {
		err = multierr.Append(err, errors.New("trailing_stop_pct 必须位于(0,100)"))
	}
	if err != nil {
		return fmt.Errorf("风控参数非法: %w", err)
	}
	return nil
}

// Position 为一条持仓记录。
type Position struct {
	ID            string      `json:"id"`
	Owner         string      `json:"owner"`
	Symbol        string      `json:"symbol"`
	EntryPrice    float64     `json:"entry_price"`
	EntryAmount   float64     `json:"entry_amount"`
	Bracket       RiskBracket `json:"bracket"`
	PeakPrice     float64     `json:"peak_price"`
	Status        Status      `json:"status"`
	VenueUsed     string      `json:"venue_used"`
	OpenedAt      time.Time   `json:"opened_at"`
	ClosedAt      *time.Time  `json:"closed_at,omitempty"`
	ExitReason    ExitReason  `json:"exit_reason,omitempty"`
	ExitPrice     float64     `json:"exit_price,omitempty"`
	CloseFailures int         `json:"close_failures"`
}

// Active 判断持仓是否仍需监控。
func (p *Position) Active() bool {
	return p.Status == StatusOpen || p.Status == StatusDegraded
}
