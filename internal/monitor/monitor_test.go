package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"soltrader/internal/config"
	"soltrader/internal/position"
	"soltrader/internal/store"
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (f *fakePrices) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.prices[symbol], nil
}

type fakeCloser struct {
	mu     sync.Mutex
	calls  []string
	errs   map[string]error
	closed func(positionID string, reason position.ExitReason)
}

func (f *fakeCloser) CloseTriggered(_ context.Context, positionID string, reason position.ExitReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, positionID)
	if err, ok := f.errs[positionID]; ok && err != nil {
		return err
	}
	if f.closed != nil {
		f.closed(positionID, reason)
	}
	return nil
}

func (f *fakeCloser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newMonitorFixture(t *testing.T) (*Service, *position.Store, *fakePrices, *fakeCloser) {
	t.Helper()

	base, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:        true,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = base.Close() })

	positions, err := position.NewStore(base, nil)
	if err != nil {
		t.Fatalf("init position store: %v", err)
	}

	prices := &fakePrices{prices: map[string]float64{}}
	closer := &fakeCloser{errs: map[string]error{}}

	svc := NewService(positions, prices, closer, nil, config.MonitorConfig{
		Interval:         time.Minute,
		PriceTimeout:     time.Second,
		MaxCloseFailures: 3,
	}, nil)

	return svc, positions, prices, closer
}

func openPosition(t *testing.T, positions *position.Store, symbol string, trailing bool) *position.Position {
	t.Helper()

	p := &position.Position{
		Owner:       "alice",
		Symbol:      symbol,
		EntryPrice:  100,
		EntryAmount: 5,
		VenueUsed:   "jupiter",
		Bracket: position.RiskBracket{
			TakeProfitPct:       20,
			StopLossPct:         10,
			TrailingStopEnabled: trailing,
			TrailingStopPct:     5,
		},
	}
	if err := positions.Create(context.Background(), p); err != nil {
		t.Fatalf("create position: %v", err)
	}
	return p
}

func TestRunCycle_ClosesOnTakeProfit(t *testing.T) {
	svc, positions, prices, closer := newMonitorFixture(t)
	ctx := context.Background()

	p := openPosition(t, positions, "SOL/USDT", false)
	prices.prices["SOL/USDT"] = 125

	closer.closed = func(id string, reason position.ExitReason) {
		if reason != position.ExitTakeProfit {
			t.Errorf("expected take_profit reason, got %s", reason)
		}
		if err := positions.Close(ctx, id, reason, 125); err != nil {
			t.Errorf("close in fake: %v", err)
		}
	}

	svc.RunCycle(ctx)

	if closer.callCount() != 1 {
		t.Fatalf("expected one close call, got %d", closer.callCount())
	}
	got, err := positions.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != position.StatusClosed {
		t.Errorf("expected CLOSED, got %s", got.Status)
	}
}

func TestRunCycle_PriceFetchFailureSkipsPosition(t *testing.T) {
	svc, positions, prices, closer := newMonitorFixture(t)
	ctx := context.Background()

	p := openPosition(t, positions, "SOL/USDT", false)
	prices.err = errors.New("exchange down")

	svc.RunCycle(ctx)

	if closer.callCount() != 0 {
		t.Fatalf("expected no close attempts without a price, got %d", closer.callCount())
	}
	got, err := positions.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != position.StatusOpen {
		t.Errorf("expected position untouched, got %s", got.Status)
	}
}

func TestRunCycle_PeakRatchetsAndTrailingFires(t *testing.T) {
	svc, positions, prices, closer := newMonitorFixture(t)
	ctx := context.Background()

	p := openPosition(t, positions, "SOL/USDT", true)

	// 第一轮：价格上行，峰值抬升，无触发。
	prices.prices["SOL/USDT"] = 115
	svc.RunCycle(ctx)
	if closer.callCount() != 0 {
		t.Fatalf("expected no trigger on the way up, got %d calls", closer.callCount())
	}
	got, err := positions.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PeakPrice != 115 {
		t.Fatalf("expected peak 115, got %f", got.PeakPrice)
	}

	// 第二轮：回撤 5% 触发跟踪止损（115 * 0.95 = 109.25）。
	closer.closed = func(id string, reason position.ExitReason) {
		if reason != position.ExitTrailingStop {
			t.Errorf("expected trailing_stop, got %s", reason)
		}
		if err := positions.Close(ctx, id, reason, 109); err != nil {
			t.Errorf("close in fake: %v", err)
		}
	}
	prices.prices["SOL/USDT"] = 109
	svc.RunCycle(ctx)

	if closer.callCount() != 1 {
		t.Fatalf("expected trailing close call, got %d", closer.callCount())
	}
}

func TestRunCycle_DegradesAfterRepeatedCloseFailures(t *testing.T) {
	svc, positions, prices, closer := newMonitorFixture(t)
	ctx := context.Background()

	p := openPosition(t, positions, "SOL/USDT", false)
	prices.prices["SOL/USDT"] = 125
	closer.errs[p.ID] = errors.New("all venues exhausted")

	for i := 0; i < 3; i++ {
		svc.RunCycle(ctx)
	}

	got, err := positions.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != position.StatusDegraded {
		t.Fatalf("expected DEGRADED after 3 failed closes, got %s", got.Status)
	}

	select {
	case alert := <-svc.Alerts():
		if alert.PositionID != p.ID {
			t.Errorf("alert for wrong position: %s", alert.PositionID)
		}
	default:
		t.Error("expected an alert after degradation")
	}
}

func TestRunCycle_CloseSucceedsAfterEarlierFailure(t *testing.T) {
	svc, positions, prices, closer := newMonitorFixture(t)
	ctx := context.Background()

	p := openPosition(t, positions, "SOL/USDT", false)
	prices.prices["SOL/USDT"] = 125

	// 第一轮平仓失败，计数累加但未达降级阈值。
	closer.errs[p.ID] = errors.New("venue down")
	svc.RunCycle(ctx)

	got, err := positions.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != position.StatusOpen {
		t.Fatalf("expected OPEN after single failure, got %s", got.Status)
	}
	if got.CloseFailures != 1 {
		t.Fatalf("expected one recorded failure, got %d", got.CloseFailures)
	}

	// 第二轮卖出恢复，持仓正常进入终态。
	delete(closer.errs, p.ID)
	closer.closed = func(id string, reason position.ExitReason) {
		if err := positions.Close(ctx, id, reason, 125); err != nil {
			t.Errorf("close in fake: %v", err)
		}
	}
	svc.RunCycle(ctx)

	got, err = positions.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != position.StatusClosed {
		t.Errorf("expected CLOSED after recovered sell path, got %s", got.Status)
	}
}

func TestRunCycle_DegradedRecoversWhenPriceAvailable(t *testing.T) {
	svc, positions, prices, closer := newMonitorFixture(t)
	ctx := context.Background()

	p := openPosition(t, positions, "SOL/USDT", false)
	if err := positions.MarkDegraded(ctx, p.ID); err != nil {
		t.Fatalf("mark degraded: %v", err)
	}

	// 价格可得且未触发任何退出条件。
	prices.prices["SOL/USDT"] = 105
	svc.RunCycle(ctx)

	if closer.callCount() != 0 {
		t.Fatalf("expected no close call, got %d", closer.callCount())
	}
	got, err := positions.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != position.StatusOpen {
		t.Errorf("expected recovery to OPEN, got %s", got.Status)
	}
}

func TestRunCycle_AlreadyClosedRaceIsBenign(t *testing.T) {
	svc, positions, prices, closer := newMonitorFixture(t)
	ctx := context.Background()

	p := openPosition(t, positions, "SOL/USDT", false)
	prices.prices["SOL/USDT"] = 125
	closer.errs[p.ID] = position.ErrAlreadyClosed

	svc.RunCycle(ctx)

	// 竞争失败不计入平仓失败，也不降级。
	got, err := positions.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != position.StatusOpen {
		t.Errorf("expected OPEN, got %s", got.Status)
	}
	if got.CloseFailures != 0 {
		t.Errorf("expected no close failures recorded, got %d", got.CloseFailures)
	}
}

func TestRunCycle_IsolatesFailuresBetweenPositions(t *testing.T) {
	svc, positions, prices, closer := newMonitorFixture(t)
	ctx := context.Background()

	bad := openPosition(t, positions, "SOL/USDT", false)
	good := openPosition(t, positions, "BONK/USDT", false)

	prices.prices["SOL/USDT"] = 125
	prices.prices["BONK/USDT"] = 125
	closer.errs[bad.ID] = errors.New("venue down")
	closer.closed = func(id string, reason position.ExitReason) {
		if id == good.ID {
			if err := positions.Close(ctx, id, reason, 125); err != nil {
				t.Errorf("close in fake: %v", err)
			}
		}
	}

	svc.RunCycle(ctx)

	gotGood, err := positions.Get(ctx, good.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotGood.Status != position.StatusClosed {
		t.Errorf("expected healthy position to close despite sibling failure, got %s", gotGood.Status)
	}
}
