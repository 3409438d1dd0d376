package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"soltrader/internal/audit"
	"soltrader/internal/config"
	"soltrader/internal/metrics"
	"soltrader/internal/position"
	"soltrader/internal/router"
	"soltrader/internal/venue"
)

// Submitter 把交易意图路由到执行场所。
type Submitter interface {
	Submit(ctx context.Context, order router.Order) (router.Submission, error)
}

// OpenRequest 描述一次开仓请求。Owner 为空时使用配置中的默认账户。
type OpenRequest struct {
	Owner   string
	Symbol  string
	Amount  float64
	Bracket position.RiskBracket
}

// Engine 串联提交路由器与持仓存储，是开平仓的唯一入口。
type Engine struct {
	submitter Submitter
	positions *position.Store
	audit     *audit.Service
	metrics   *metrics.Metrics
	owner     string
	logger    *zap.Logger
}

// New 创建交易引擎。
func New(
	submitter Submitter,
	positions *position.Store,
	auditSvc *audit.Service,
	m *metrics.Metrics,
	appCfg config.AppConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		submitter: submitter,
		positions: positions,
		audit:     auditSvc,
		metrics:   m,
		owner:     appCfg.Owner,
		logger:    logger,
	}
}

// OpenPosition 校验参数后提交买入，成交则落库为 OPEN 持仓。
// 提交失败不产生任何持仓记录。
func (e *Engine) OpenPosition(ctx context.Context, req OpenRequest) (*position.Position, error) {
	if req.Symbol == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "不能为空"}
	}
	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "必须大于0"}
	}
	if err := req.Bracket.Validate(); err != nil {
		return nil, &ValidationError{Field: "bracket", Reason: err.Error()}
	}

	owner := req.Owner
	if owner == "" {
		owner = e.owner
	}

	// 先查重，避免明知会冲突仍去场所成交。
	active, err := e.positions.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: 查询活跃持仓失败: %w", err)
	}
	for _, p := range active {
		if p.Owner == owner && p.Symbol == req.Symbol {
			return nil, &ConflictError{PositionID: p.ID, Reason: "该标的已有活跃持仓"}
		}
	}

	sub, err := e.submitter.Submit(ctx, router.Order{
		Symbol: req.Symbol,
		Side:   venue.SideBuy,
		Amount: req.Amount,
		Reason: "open",
	})
	e.audit.RecordSubmission(ctx, req.Symbol, string(venue.SideBuy), err == nil, sub.VenueUsed, submissionAttempts(sub, err))
	if err != nil {
		return nil, err
	}

	p := &position.Position{
		Owner:       owner,
		Symbol:      req.Symbol,
		EntryPrice:  sub.Receipt.FillPrice,
		EntryAmount: sub.Receipt.FillAmount,
		Bracket:     req.Bracket,
		VenueUsed:   sub.VenueUsed,
	}
	if err := e.positions.Create(ctx, p); err != nil {
		if errors.Is(err, position.ErrDuplicateOpen) {
			// 成交与落库之间被并发开仓抢先，必须暴露给人工对账。
			e.audit.RecordError(ctx, "开仓成交后落库冲突", err, map[string]any{
				"symbol":      req.Symbol,
				"venue":       sub.VenueUsed,
				"tx_ref":      sub.Receipt.TxRef,
				"fill_amount": sub.Receipt.FillAmount,
				"fill_price":  sub.Receipt.FillPrice,
			})
			return nil, &ConflictError{Reason: "该标的已有活跃持仓"}
		}
		return nil, err
	}

	e.audit.RecordOpen(ctx, *p, sub.VenueUsed, sub.Attempts)
	e.logger.Info("开仓完成",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.Float64("entry_price", p.EntryPrice),
		zap.Float64("entry_amount", p.EntryAmount),
		zap.String("venue", p.VenueUsed),
	)
	return p, nil
}

// ClosePosition 手动平仓。
func (e *Engine) ClosePosition(ctx context.Context, positionID string) error {
	return e.closePosition(ctx, positionID, position.ExitManual)
}

// CloseTriggered 由监控触发的平仓。
func (e *Engine) CloseTriggered(ctx context.Context, positionID string, reason position.ExitReason) error {
	return e.closePosition(ctx, positionID, reason)
}

// closePosition 在持仓锁内完成卖出与状态迁移。
// 并发的两次平仓恰好有一次成交，另一次得到 ErrAlreadyClosed。
func (e *Engine) closePosition(ctx context.Context, positionID string, reason position.ExitReason) error {
	release := e.positions.Acquire(positionID)
	defer release()

	p, err := e.positions.Get(ctx, positionID)
	if err != nil {
		return err
	}
	if p.Status == position.StatusClosed {
		return position.ErrAlreadyClosed
	}

	sub, err := e.submitter.Submit(ctx, router.Order{
		Symbol:     p.Symbol,
		Side:       venue.SideSell,
		Amount:     p.EntryAmount,
		PositionID: p.ID,
		Reason:     string(reason),
	})
	e.audit.RecordSubmission(ctx, p.Symbol, string(venue.SideSell), err == nil, sub.VenueUsed, submissionAttempts(sub, err))
	if err != nil {
		return fmt.Errorf("engine: 平仓提交失败: %w", err)
	}

	if err := e.positions.Close(ctx, p.ID, reason, sub.Receipt.FillPrice); err != nil {
		return err
	}

	e.metrics.RecordExit(string(reason))
	e.audit.RecordClose(ctx, p.ID, p.Symbol, reason, sub.Receipt.FillPrice, sub.Attempts)
	e.logger.Info("平仓完成",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit_price", sub.Receipt.FillPrice),
	)
	return nil
}

// GetPosition 查询单条持仓。
func (e *Engine) GetPosition(ctx context.Context, positionID string) (*position.Position, error) {
	return e.positions.Get(ctx, positionID)
}

// ListPositions 返回全部持仓。
func (e *Engine) ListPositions(ctx context.Context) ([]*position.Position, error) {
	return e.positions.List(ctx)
}

// ListActivePositions 返回全部活跃持仓。
func (e *Engine) ListActivePositions(ctx context.Context) ([]*position.Position, error) {
	return e.positions.ListActive(ctx)
}

// MetricsSnapshot 返回当前运行指标。
func (e *Engine) MetricsSnapshot() metrics.Snapshot {
	return e.metrics.Snapshot()
}

func submissionAttempts(sub router.Submission, err error) []router.ExecutionAttempt {
	if err != nil {
		return router.AttemptTrail(err)
	}
	return sub.Attempts
}
