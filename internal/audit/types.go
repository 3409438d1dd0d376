package audit

import (
	"time"

	"soltrader/internal/position"
	"soltrader/internal/router"
	"soltrader/internal/strategy"
)

// EventType 表示审计事件类型。
type EventType string

const (
	EventSignal    EventType = "signal"
	EventOpen      EventType = "position_open"
	EventClose     EventType = "position_close"
	EventTrigger   EventType = "exit_trigger"
	EventSubmitted EventType = "submission"
	EventAlert     EventType = "alert"
	EventError     EventType = "error"
)

// Event 封装通用审计事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StoredEvent 为读出的持久化事件。
type StoredEvent struct {
	ID        int64          `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// SignalPayload 记录策略选择器的产出。
type SignalPayload struct {
	Symbol string          `json:"symbol"`
	Signal strategy.Signal `json:"signal"`
}

// OpenPayload 记录开仓结果。
type OpenPayload struct {
	Position position.Position         `json:"position"`
	Venue    string                    `json:"venue"`
	Attempts []router.ExecutionAttempt `json:"attempts,omitempty"`
}

// ClosePayload 记录平仓结果。
type ClosePayload struct {
	PositionID string                    `json:"position_id"`
	Symbol     string                    `json:"symbol"`
	Reason     position.ExitReason       `json:"reason"`
	ExitPrice  float64                   `json:"exit_price"`
	Attempts   []router.ExecutionAttempt `json:"attempts,omitempty"`
}

// TriggerPayload 记录退出条件触发。
type TriggerPayload struct {
	PositionID string              `json:"position_id"`
	Symbol     string              `json:"symbol"`
	Reason     position.ExitReason `json:"reason"`
	Price      float64             `json:"price"`
	EntryPrice float64             `json:"entry_price"`
	PeakPrice  float64             `json:"peak_price"`
}

// SubmissionPayload 记录一次提交的完整尝试轨迹。
type SubmissionPayload struct {
	Symbol   string                    `json:"symbol"`
	Side     string                    `json:"side"`
	Success  bool                      `json:"success"`
	Venue    string                    `json:"venue,omitempty"`
	Attempts []router.ExecutionAttempt `json:"attempts"`
}

// AlertPayload 记录需要人工介入的告警。
type AlertPayload struct {
	PositionID string `json:"position_id,omitempty"`
	Symbol     string `json:"symbol,omitempty"`
	Message    string `json:"message"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string         `json:"message"`
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}
