package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"soltrader/internal/position"
	"soltrader/internal/router"
	"soltrader/internal/store"
	"soltrader/internal/strategy"
)

// Service 负责持久化审计事件。
// 审计失败只记日志，绝不阻断交易主链路。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化审计服务，创建所需表结构。
func NewService(st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("audit: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     st.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("audit: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("audit: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("audit: 写入事件失败: %w", err)
	}

	return nil
}

// RecordSignal 记录策略信号。
func (s *Service) RecordSignal(ctx context.Context, symbol string, signal strategy.Signal) {
	s.record(ctx, Event{
		Type:    EventSignal,
		Payload: SignalPayload{Symbol: symbol, Signal: signal},
	}, "记录策略信号事件失败")
}

// RecordOpen 记录开仓。
func (s *Service) RecordOpen(ctx context.Context, p position.Position, venueName string, attempts []router.ExecutionAttempt) {
	s.record(ctx, Event{
		Type:    EventOpen,
		Payload: OpenPayload{Position: p, Venue: venueName, Attempts: attempts},
	}, "记录开仓事件失败")
}

// RecordClose 记录平仓。
func (s *Service) RecordClose(ctx context.Context, positionID, symbol string, reason position.ExitReason, exitPrice float64, attempts []router.ExecutionAttempt) {
	s.record(ctx, Event{
		Type: EventClose,
		Payload: ClosePayload{
			PositionID: positionID,
			Symbol:     symbol,
			Reason:     reason,
			ExitPrice:  exitPrice,
			Attempts:   attempts,
		},
	}, "记录平仓事件失败")
}

// RecordTrigger 记录退出条件触发。
func (s *Service) RecordTrigger(ctx context.Context, p position.Position, reason position.ExitReason, price float64) {
	s.record(ctx, Event{
		Type: EventTrigger,
		Payload: TriggerPayload{
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Reason:     reason,
			Price:      price,
			EntryPrice: p.EntryPrice,
			PeakPrice:  p.PeakPrice,
		},
	}, "记录触发事件失败")
}

// RecordSubmission 记录一次提交的完整尝试轨迹。
func (s *Service) RecordSubmission(ctx context.Context, symbol, side string, success bool, venueName string, attempts []router.ExecutionAttempt) {
	s.record(ctx, Event{
		Type: EventSubmitted,
		Payload: SubmissionPayload{
			Symbol:   symbol,
			Side:     side,
			Success:  success,
			Venue:    venueName,
			Attempts: attempts,
		},
	}, "记录提交事件失败")
}

// RecordAlert 记录告警。
func (s *Service) RecordAlert(ctx context.Context, positionID, symbol, message string) {
	s.record(ctx, Event{
		Type:    EventAlert,
		Payload: AlertPayload{PositionID: positionID, Symbol: symbol, Message: message},
	}, "记录告警事件失败")
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, message string, cause error, extra map[string]any) {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	s.record(ctx, Event{
		Type:    EventError,
		Payload: ErrorPayload{Message: message, Error: errText, Context: extra},
	}, "记录异常事件失败")
}

func (s *Service) record(ctx context.Context, event Event, failMsg string) {
	if s == nil {
		return
	}
	if err := s.Record(ctx, event); err != nil {
		s.logger.Warn(failMsg, zap.Error(err))
	}
}

// ListEvents 按时间倒序返回最近的事件，eventType 为空时不过滤。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, event_type, payload, created_at FROM audit_events`
	args := make([]any, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: 查询事件失败: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev        StoredEvent
			payload   string
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("audit: 读取事件行失败: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
			ev.Timestamp = ts
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			ev.Payload = map[string]any{"raw": payload}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: 遍历事件失败: %w", err)
	}
	return out, nil
}
