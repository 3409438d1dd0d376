package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"soltrader/internal/audit"
	"soltrader/internal/config"
	"soltrader/internal/position"
)

// PriceSource 提供标的的最新价格。
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Closer 执行由监控触发的平仓。
type Closer interface {
	CloseTriggered(ctx context.Context, positionID string, reason position.ExitReason) error
}

// Alert 为需要人工介入的监控告警。
type Alert struct {
	PositionID string
	Symbol     string
	Message    string
	Timestamp  time.Time
}

// Service 周期巡检全部活跃持仓，命中退出条件时发起平仓。
// 单个持仓的异常不会影响同一轮的其他持仓。
type Service struct {
	positions *position.Store
	prices    PriceSource
	closer    Closer
	audit     *audit.Service
	cfg       config.MonitorConfig
	logger    *zap.Logger

	alerts chan Alert
}

// NewService 创建持仓监控。
func NewService(
	positions *position.Store,
	prices PriceSource,
	closer Closer,
	auditSvc *audit.Service,
	cfg config.MonitorConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		positions: positions,
		prices:    prices,
		closer:    closer,
		audit:     auditSvc,
		cfg:       cfg,
		logger:    logger,
		alerts:    make(chan Alert, 16),
	}
}

// Alerts 返回告警通道。通道满时告警只记日志，不阻塞巡检。
func (s *Service) Alerts() <-chan Alert {
	return s.alerts
}

// Run 启动巡检循环，直至 ctx 取消。
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("持仓监控已启动", zap.Duration("interval", s.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("持仓监控退出")
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle 执行一轮巡检。持仓之间并发评估，互不阻塞。
func (s *Service) RunCycle(ctx context.Context) {
	active, err := s.positions.ListActive(ctx)
	if err != nil {
		s.logger.Error("查询活跃持仓失败", zap.Error(err))
		s.audit.RecordError(ctx, "查询活跃持仓失败", err, nil)
		return
	}
	if len(active) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, p := range active {
		p := p
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("巡检单个持仓时发生 panic",
						zap.String("position_id", p.ID),
						zap.Any("panic", r),
					)
				}
			}()
			s.checkPosition(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) checkPosition(ctx context.Context, p *position.Position) {
	priceCtx, cancel := context.WithTimeout(ctx, s.cfg.PriceTimeout)
	price, err := s.prices.CurrentPrice(priceCtx, p.Symbol)
	cancel()
	if err != nil {
		// 拿不到价格就跳过本轮，下一轮重试。
		s.logger.Warn("获取价格失败，跳过本轮巡检",
			zap.String("position_id", p.ID),
			zap.String("symbol", p.Symbol),
			zap.Error(err),
		)
		return
	}

	// 价格可得说明链路恢复，DEGRADED 持仓回到 OPEN 继续自动管理。
	if p.Status == position.StatusDegraded {
		if err := s.positions.MarkOpen(ctx, p.ID); err != nil {
			s.logger.Warn("恢复降级持仓失败", zap.String("position_id", p.ID), zap.Error(err))
			return
		}
		p.Status = position.StatusOpen
		s.logger.Info("降级持仓已恢复", zap.String("position_id", p.ID))
	}

	// 峰值价只涨不跌。
	if price > p.PeakPrice {
		if err := s.positions.UpdatePeak(ctx, p.ID, price); err != nil {
			s.logger.Warn("更新峰值价失败", zap.String("position_id", p.ID), zap.Error(err))
		} else {
			p.PeakPrice = price
		}
	}

	reason, triggered := evaluateTriggers(p, price)
	if !triggered {
		return
	}

	s.audit.RecordTrigger(ctx, *p, reason, price)
	s.logger.Info("退出条件触发",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("price", price),
	)

	if err := s.closer.CloseTriggered(ctx, p.ID, reason); err != nil {
		if errors.Is(err, position.ErrAlreadyClosed) {
			// 与手动平仓竞争失败，视为本轮无事可做。
			return
		}
		s.handleCloseFailure(ctx, p, reason, err)
	}
}

func (s *Service) handleCloseFailure(ctx context.Context, p *position.Position, reason position.ExitReason, cause error) {
	s.logger.Error("自动平仓失败",
		zap.String("position_id", p.ID),
		zap.String("reason", string(reason)),
		zap.Error(cause),
	)

	count, err := s.positions.RecordCloseFailure(ctx, p.ID)
	if err != nil {
		s.logger.Error("记录平仓失败次数失败", zap.String("position_id", p.ID), zap.Error(err))
		return
	}

	if count < s.cfg.MaxCloseFailures {
		return
	}

	if err := s.positions.MarkDegraded(ctx, p.ID); err != nil {
		if !errors.Is(err, position.ErrAlreadyClosed) {
			s.logger.Error("标记降级失败", zap.String("position_id", p.ID), zap.Error(err))
		}
		return
	}

	msg := fmt.Sprintf("持仓连续 %d 次平仓失败，已降级，需人工处理", count)
	s.audit.RecordAlert(ctx, p.ID, p.Symbol, msg)
	s.emitAlert(Alert{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Message:    msg,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *Service) emitAlert(a Alert) {
	select {
	case s.alerts <- a:
	default:
		s.logger.Warn("告警通道已满，丢弃告警",
			zap.String("position_id", a.PositionID),
			zap.String("message", a.Message),
		)
	}
}
