package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"soltrader/internal/config"
)

type candleSource interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]Candle, error)
}

// Service 聚合行情快照与最新价查询。
// 协作方允许返回缓存数据，快照因此携带显式的采集时间，
// 由调用方按 max_staleness 决定是否接受。
type Service struct {
	client candleSource
	cfg    config.MarketDataConfig
	logger *zap.Logger

	cacheMu sync.Mutex
	cache   map[string]MarketSnapshot
}

// NewService 创建行情服务。
func NewService(client candleSource, cfg config.MarketDataConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client: client,
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]MarketSnapshot),
	}
}

// GetSnapshot 拉取包含历史K线与最新价采样的行情快照。
// 命中缓存时直接返回旧快照，陈旧判断交由调用方。
func (s *Service) GetSnapshot(ctx context.Context, symbol string) (MarketSnapshot, error) {
	if ttl := s.cfg.CacheTTL; ttl > 0 {
		s.cacheMu.Lock()
		cached, ok := s.cache[symbol]
		s.cacheMu.Unlock()
		if ok && time.Since(cached.RetrievedAt) < ttl {
			return cached, nil
		}
	}

	limit := int64(s.cfg.HistoryLimit)
	if limit <= 0 {
		limit = 120
	}

	var (
		history []Candle
		recent  []Candle
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.client.FetchCandles(groupCtx, symbol, TimeframeHistory, limit)
		if err != nil {
			return err
		}
		history = data
		return nil
	})

	group.Go(func() error {
		data, err := s.client.FetchCandles(groupCtx, symbol, TimeframeRecent, 30)
		if err != nil {
			return err
		}
		recent = data
		return nil
	})

	if err := group.Wait(); err != nil {
		return MarketSnapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	prices := make([]float64, 0, len(history)+1)
	for _, candle := range history {
		prices = append(prices, candle.Close)
	}

	var volume float64
	for _, candle := range recent {
		volume += candle.Volume
	}
	if len(recent) > 0 {
		prices = append(prices, recent[len(recent)-1].Close)
	}

	snapshot := MarketSnapshot{
		Symbol:      symbol,
		Candles:     history,
		Prices:      prices,
		Volume:      volume,
		RetrievedAt: time.Now().UTC(),
	}

	if s.cfg.CacheTTL > 0 {
		s.cacheMu.Lock()
		s.cache[symbol] = snapshot
		s.cacheMu.Unlock()
	}

	s.logger.Debug("行情快照获取完成",
		zap.String("symbol", symbol),
		zap.Time("retrieved_at", snapshot.RetrievedAt),
		zap.Int("price_count", len(snapshot.Prices)),
	)

	return snapshot, nil
}

// FreshSnapshot 在 GetSnapshot 基础上拒绝超过陈旧时限的快照。
func (s *Service) FreshSnapshot(ctx context.Context, symbol string) (MarketSnapshot, error) {
	snapshot, err := s.GetSnapshot(ctx, symbol)
	if err != nil {
		return MarketSnapshot{}, err
	}
	if snapshot.Age(time.Now().UTC()) > s.cfg.MaxStaleness {
		return MarketSnapshot{}, fmt.Errorf("%w: symbol=%s age=%s", ErrStale, symbol, snapshot.Age(time.Now().UTC()))
	}
	return snapshot, nil
}

// CurrentPrice 获取最新成交价，供持仓监控轮询使用。
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := s.client.FetchCandles(ctx, symbol, TimeframeRecent, 2)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("%w: 无最新K线 symbol=%s", ErrUnavailable, symbol)
	}
	return candles[len(candles)-1].Close, nil
}
