package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"soltrader/internal/audit"
	"soltrader/internal/config"
	"soltrader/internal/engine"
	"soltrader/internal/marketdata"
	"soltrader/internal/metrics"
	"soltrader/internal/monitor"
	"soltrader/internal/position"
	"soltrader/internal/router"
	"soltrader/internal/sentiment"
	"soltrader/internal/store"
	"soltrader/internal/strategy"
	"soltrader/internal/venue"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store

	engine   *engine.Engine
	monitor  *monitor.Service
	audit    *audit.Service
	metrics  *metrics.Metrics
	selector *strategy.Selector
	market   *marketdata.Service
}

// New 创建 App 实例并完成全部组件装配。
func New(cfg *config.Config, logger *zap.Logger, st *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := metrics.New()

	auditSvc, err := audit.NewService(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化审计服务失败: %w", err)
	}

	positions, err := position.NewStore(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化持仓存储失败: %w", err)
	}

	mdClient, err := marketdata.NewClient(cfg.MarketData, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化行情客户端失败: %w", err)
	}
	market := marketdata.NewService(mdClient, cfg.MarketData, logger)

	primary, err := venue.NewJupiterClient(cfg.Venues.Primary, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化主执行场所失败: %w", err)
	}
	fallback, err := venue.NewRaydiumClient(cfg.Venues.Fallback, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化备用执行场所失败: %w", err)
	}

	submitter := router.NewRouter(primary, fallback, cfg.Venues, cfg.Router, m, logger)

	eng := engine.New(submitter, positions, auditSvc, m, cfg.App, logger)

	var boost strategy.BoostSource
	if cfg.Sentiment.Enabled {
		boost = sentiment.NewClient(cfg.Sentiment, logger)
	}
	selector := strategy.NewSelector(cfg.Strategy, boost, logger)

	mon := monitor.NewService(positions, market, eng, auditSvc, cfg.Monitor, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		engine:   eng,
		monitor:  mon,
		audit:    auditSvc,
		metrics:  m,
		selector: selector,
		market:   market,
	}, nil
}

// Run 启动监控循环、管理接口与决策循环，阻塞直至退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易引擎已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Strings("symbols", a.cfg.Engine.Symbols),
		zap.String("primary_venue", a.cfg.Venues.Primary.Name),
		zap.String("fallback_venue", a.cfg.Venues.Fallback.Name),
	)

	if err := a.startAdminServer(ctx); err != nil {
		return err
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.monitor.Run(runCtx)
	})

	g.Go(func() error {
		return a.consumeAlerts(runCtx)
	})

	g.Go(func() error {
		return a.runDecisionLoop(runCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}

func (a *App) runDecisionLoop(ctx context.Context) error {
	interval := a.cfg.Scheduler.DecisionInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	if err := a.tick(ctx); err != nil {
		a.logger.Error("首次决策执行失败", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				a.logger.Error("决策执行失败", zap.Error(err))
			}
		}
	}
}

func (a *App) consumeAlerts(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case alert := <-a.monitor.Alerts():
			a.logger.Warn("收到持仓告警",
				zap.String("position_id", alert.PositionID),
				zap.String("symbol", alert.Symbol),
				zap.String("message", alert.Message),
			)
		}
	}
}
