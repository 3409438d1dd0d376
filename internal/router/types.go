package router

import (
	"time"

	"soltrader/internal/venue"
)

// Order 描述一次待提交的交易意图，开仓与平仓共用。
type Order struct {
	Symbol     string
	Side       venue.Side
	Amount     float64
	PositionID string
	Reason     string
}

// AttemptOutcome 表示单次尝试的结局。
type AttemptOutcome string

const (
	OutcomeSuccess        AttemptOutcome = "success"
	OutcomeFailure        AttemptOutcome = "failure"
	OutcomeShortCircuited AttemptOutcome = "short_circuited"
)

// ExecutionAttempt 为一次场所调用的审计记录，只追加不修改。
type ExecutionAttempt struct {
	Venue       string            `json:"venue"`
	Operation   string            `json:"operation"`
	Symbol      string            `json:"symbol"`
	Side        venue.Side        `json:"side"`
	Amount      float64           `json:"amount"`
	Outcome     AttemptOutcome    `json:"outcome"`
	FailureKind venue.FailureKind `json:"failure_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	Latency     time.Duration     `json:"latency"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Submission 为一次成功提交的结果。
type Submission struct {
	Receipt        venue.Receipt
	VenueUsed      string
	IdempotencyKey string
	Attempts       []ExecutionAttempt
}
