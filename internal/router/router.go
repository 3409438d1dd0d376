package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"soltrader/internal/config"
	"soltrader/internal/metrics"
	"soltrader/internal/venue"
)

// Router 负责把交易意图路由到执行场所：先询价后执行，
// 主场所耗尽或被明确拒绝时切换到备用场所。
type Router struct {
	primary  venue.Client
	fallback venue.Client
	venueCfg map[string]config.VenueConfig
	breakers map[string]*Breaker
	cfg      config.RouterConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	newKey func() string
}

// NewRouter 创建提交路由器，为每个场所独立挂一个熔断器。
func NewRouter(primary, fallback venue.Client, venues config.VenuesConfig, cfg config.RouterConfig, m *metrics.Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		primary:  primary,
		fallback: fallback,
		venueCfg: map[string]config.VenueConfig{
			primary.Name():  venues.Primary,
			fallback.Name(): venues.Fallback,
		},
		breakers: map[string]*Breaker{
			primary.Name():  NewBreaker(primary.Name(), cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerCooldown),
			fallback.Name(): NewBreaker(fallback.Name(), cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerCooldown),
		},
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		sleep:   sleepCtx,
		newKey:  uuid.NewString,
	}

	for _, br := range r.breakers {
		br.SetStateChangeHandler(func(name string, from, to BreakerState) {
			logger.Warn("场所熔断器状态变更",
				zap.String("venue", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		})
	}

	return r
}

// Submit 提交一次交易意图。整个提交共用一个幂等键，
// 即便切换场所也不更换，保证超时重放不会重复成交。
func (r *Router) Submit(ctx context.Context, order Order) (Submission, error) {
	key := r.newKey()
	attempts := make([]ExecutionAttempt, 0, 8)
	var lastErr error

	for i, vc := range []venue.Client{r.primary, r.fallback} {
		role := metrics.RolePrimary
		if i > 0 {
			role = metrics.RoleFallback
		}

		sub, venueAttempts, err := r.submitVenue(ctx, vc, order, key)
		attempts = append(attempts, venueAttempts...)
		if err == nil {
			sub.IdempotencyKey = key
			sub.Attempts = attempts
			r.metrics.RecordTrade(vc.Name(), role, sub.Receipt.FillPrice*sub.Receipt.FillAmount)
			r.logger.Info("提交成功",
				zap.String("venue", vc.Name()),
				zap.String("symbol", order.Symbol),
				zap.String("side", string(order.Side)),
				zap.Float64("fill_price", sub.Receipt.FillPrice),
				zap.Float64("fill_amount", sub.Receipt.FillAmount),
				zap.Bool("duplicate", sub.Receipt.Duplicate),
			)
			return sub, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i == 0 {
			r.logger.Warn("主场所提交失败，切换备用场所",
				zap.String("venue", vc.Name()),
				zap.String("symbol", order.Symbol),
				zap.Error(err),
			)
		}
	}

	r.metrics.RecordSubmissionRejected()
	return Submission{}, &SubmissionError{Kind: ErrKindExhausted, Attempts: attempts, cause: lastErr}
}

func (r *Router) submitVenue(ctx context.Context, vc venue.Client, order Order, key string) (Submission, []ExecutionAttempt, error) {
	name := vc.Name()
	breaker := r.breakers[name]
	attempts := make([]ExecutionAttempt, 0, 4)

	if breaker != nil && !breaker.Allow() {
		attempts = append(attempts, ExecutionAttempt{
			Venue:     name,
			Operation: "quote",
			Symbol:    order.Symbol,
			Side:      order.Side,
			Amount:    order.Amount,
			Outcome:   OutcomeShortCircuited,
			Error:     "circuit breaker open",
			Timestamp: time.Now().UTC(),
		})
		return Submission{}, attempts, &SubmissionError{
			Kind:  ErrKindTransient,
			cause: fmt.Errorf("router: 场所 %s 熔断中", name),
		}
	}

	// 询价：失败不在同场所重试，直接切换，避免重复意图。
	quoteCtx, cancel := context.WithTimeout(ctx, r.cfg.QuoteTimeout)
	quote, quoteAttempt, err := r.quote(quoteCtx, vc, order)
	cancel()
	attempts = append(attempts, quoteAttempt)
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		r.metrics.RecordAttemptFailure(name)
		return Submission{}, attempts, &SubmissionError{Kind: ErrKindQuote, cause: err}
	}

	if quote.PriceImpactPct > r.cfg.MaxPriceImpactPct {
		// 场所本身应答正常，只是市场深度不够：
		// 计为熔断器成功，否则 HALF-OPEN 探测会悬挂在途。
		if breaker != nil {
			breaker.RecordSuccess()
		}
		attempts = append(attempts, ExecutionAttempt{
			Venue:     name,
			Operation: "slippage_check",
			Symbol:    order.Symbol,
			Side:      order.Side,
			Amount:    order.Amount,
			Outcome:   OutcomeFailure,
			Error:     fmt.Sprintf("price impact %.4f%% exceeds tolerance %.4f%%", quote.PriceImpactPct, r.cfg.MaxPriceImpactPct),
			Timestamp: time.Now().UTC(),
		})
		return Submission{}, attempts, &SubmissionError{
			Kind:  ErrKindQuote,
			cause: fmt.Errorf("router: 场所 %s 价格冲击 %.4f%% 超出容忍", name, quote.PriceImpactPct),
		}
	}

	var execErr error
	for attempt := 1; attempt <= r.cfg.MaxExecuteAttempts; attempt++ {
		start := time.Now()
		receipt, err := vc.Execute(ctx, venue.SwapRequest{Quote: quote, IdempotencyKey: key})
		record := ExecutionAttempt{
			Venue:     name,
			Operation: "execute",
			Symbol:    order.Symbol,
			Side:      order.Side,
			Amount:    order.Amount,
			Latency:   time.Since(start),
			Timestamp: start.UTC(),
		}

		if err == nil {
			record.Outcome = OutcomeSuccess
			attempts = append(attempts, record)
			if breaker != nil {
				breaker.RecordSuccess()
			}
			return Submission{Receipt: receipt, VenueUsed: name}, attempts, nil
		}

		record.Outcome = OutcomeFailure
		record.FailureKind = venue.KindOf(err)
		record.Error = err.Error()
		attempts = append(attempts, record)

		if breaker != nil {
			breaker.RecordFailure()
		}
		r.metrics.RecordAttemptFailure(name)
		execErr = err

		if !venue.IsRetryable(err) {
			return Submission{}, attempts, &SubmissionError{Kind: ErrKindVenueRejected, cause: err}
		}

		if attempt < r.cfg.MaxExecuteAttempts {
			wait := backoffDelay(attempt, r.cfg.BackoffBase, r.cfg.BackoffMax)
			r.logger.Warn("执行失败，等待重试",
				zap.String("venue", name),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
				return Submission{}, attempts, &SubmissionError{Kind: ErrKindTransient, cause: sleepErr}
			}
		}
	}

	return Submission{}, attempts, &SubmissionError{Kind: ErrKindTransient, cause: execErr}
}

func (r *Router) quote(ctx context.Context, vc venue.Client, order Order) (venue.Quote, ExecutionAttempt, error) {
	slippage := r.venueCfg[vc.Name()].SlippageBps

	start := time.Now()
	quote, err := vc.Quote(ctx, venue.QuoteRequest{
		Symbol:      order.Symbol,
		Side:        order.Side,
		Amount:      order.Amount,
		SlippageBps: slippage,
	})

	record := ExecutionAttempt{
		Venue:     vc.Name(),
		Operation: "quote",
		Symbol:    order.Symbol,
		Side:      order.Side,
		Amount:    order.Amount,
		Latency:   time.Since(start),
		Timestamp: start.UTC(),
	}
	if err != nil {
		record.Outcome = OutcomeFailure
		record.FailureKind = venue.KindOf(err)
		record.Error = err.Error()
		return venue.Quote{}, record, err
	}
	record.Outcome = OutcomeSuccess
	return quote, record, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
