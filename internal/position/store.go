package position

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"soltrader/internal/store"
)

var (
	// ErrNotFound 表示持仓不存在。
	ErrNotFound = errors.New("position: 持仓不存在")
	// ErrDuplicateOpen 表示同一账户同一标的已有活跃持仓。
	ErrDuplicateOpen = errors.New("position: 该标的已有活跃持仓")
	// ErrAlreadyClosed 表示持仓已处于终态。
	ErrAlreadyClosed = errors.New("position: 持仓已平仓")
)

const createPositionsTable = `
CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	symbol TEXT NOT NULL,
	entry_price REAL NOT NULL,
	entry_amount REAL NOT NULL,
	take_profit_pct REAL NOT NULL,
	stop_loss_pct REAL NOT NULL,
	trailing_enabled INTEGER NOT NULL DEFAULT 0,
	trailing_pct REAL NOT NULL DEFAULT 0,
	peak_price REAL NOT NULL,
	status TEXT NOT NULL,
	venue_used TEXT NOT NULL,
	opened_at DATETIME NOT NULL,
	closed_at DATETIME,
	exit_reason TEXT,
	exit_price REAL,
	close_failures INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_owner_symbol_active
	ON positions(owner, symbol) WHERE status IN ('OPEN', 'DEGRADED');
`

// Store 负责持仓的持久化与并发控制。
// 每条持仓附带一把进程内互斥锁，保证监控与手动平仓互斥。
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore 创建持仓存储并初始化表结构。
func NewStore(st *store.Store, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := st.DB().Exec(createPositionsTable); err != nil {
		return nil, fmt.Errorf("position: 初始化持仓表失败: %w", err)
	}

	return &Store{
		db:     st.DB(),
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Acquire 获取指定持仓的互斥锁，返回释放函数。
func (s *Store) Acquire(id string) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Create 写入一条新的 OPEN 持仓。
// 同一 (owner, symbol) 已有活跃持仓时返回 ErrDuplicateOpen。
func (s *Store) Create(ctx context.Context, p *Position) error {
	if err := p.Bracket.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusOpen
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = s.now().UTC()
	}
	if p.PeakPrice < p.EntryPrice {
		p.PeakPrice = p.EntryPrice
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (
			id, owner, symbol, entry_price, entry_amount,
			take_profit_pct, stop_loss_pct, trailing_enabled, trailing_pct,
			peak_price, status, venue_used, opened_at, close_failures
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		p.ID, p.Owner, p.Symbol, p.EntryPrice, p.EntryAmount,
		p.Bracket.TakeProfitPct, p.Bracket.StopLossPct,
		boolToInt(p.Bracket.TrailingStopEnabled), p.Bracket.TrailingStopPct,
		p.PeakPrice, string(p.Status), p.VenueUsed, p.OpenedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOpen
		}
		return fmt.Errorf("position: 写入持仓失败: %w", err)
	}

	s.logger.Info("持仓已创建",
		zap.String("position_id", p.ID),
		zap.String("owner", p.Owner),
		zap.String("symbol", p.Symbol),
		zap.Float64("entry_price", p.EntryPrice),
		zap.Float64("entry_amount", p.EntryAmount),
	)
	return nil
}

// Get 查询单条持仓。
func (s *Store) Get(ctx context.Context, id string) (*Position, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	return scanPosition(row)
}

// List 返回全部持仓，按开仓时间倒序。
func (s *Store) List(ctx context.Context) ([]*Position, error) {
	return s.query(ctx, selectColumns+" ORDER BY opened_at DESC")
}

// ListActive 返回全部 OPEN 与 DEGRADED 持仓。
func (s *Store) ListActive(ctx context.Context) ([]*Position, error) {
	return s.query(ctx, selectColumns+" WHERE status IN ('OPEN', 'DEGRADED') ORDER BY opened_at ASC")
}

// UpdatePeak 抬升峰值价。峰值只涨不跌，回落时不写库。
func (s *Store) UpdatePeak(ctx context.Context, id string, price float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET peak_price = ?
		WHERE id = ? AND status IN ('OPEN', 'DEGRADED') AND peak_price < ?`,
		price, id, price,
	)
	if err != nil {
		return fmt.Errorf("position: 更新峰值价失败: %w", err)
	}
	return nil
}

// Close 将持仓迁入 CLOSED 终态。
// 仅活跃状态可迁移，已平仓返回 ErrAlreadyClosed。
func (s *Store) Close(ctx context.Context, id string, reason ExitReason, exitPrice float64) error {
	closedAt := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, closed_at = ?, exit_reason = ?, exit_price = ?
		WHERE id = ? AND status IN ('OPEN', 'DEGRADED')`,
		string(StatusClosed), closedAt, string(reason), exitPrice, id,
	)
	if err != nil {
		return fmt.Errorf("position: 平仓写入失败: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("position: 读取平仓结果失败: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		return ErrNotFound
	}

	// 终态持仓不会再被加锁，回收互斥锁防止锁表无限增长。
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()

	s.logger.Info("持仓已平仓",
		zap.String("position_id", id),
		zap.String("reason", string(reason)),
		zap.Float64("exit_price", exitPrice),
	)
	return nil
}

// RecordCloseFailure 累加平仓失败次数并返回累计值。
func (s *Store) RecordCloseFailure(ctx context.Context, id string) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET close_failures = close_failures + 1
		WHERE id = ? AND status IN ('OPEN', 'DEGRADED')`, id,
	)
	if err != nil {
		return 0, fmt.Errorf("position: 记录平仓失败次数失败: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT close_failures FROM positions WHERE id = ?", id,
	).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("position: 查询平仓失败次数失败: %w", err)
	}
	return count, nil
}

// MarkDegraded 将持仓标记为 DEGRADED，仅 OPEN 可迁移。
func (s *Store) MarkDegraded(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusOpen, StatusDegraded)
}

// MarkOpen 将 DEGRADED 持仓恢复为 OPEN。
func (s *Store) MarkOpen(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusDegraded, StatusOpen)
}

func (s *Store) setStatus(ctx context.Context, id string, from, to Status) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE positions SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("position: 状态迁移 %s -> %s 失败: %w", from, to, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("position: 读取状态迁移结果失败: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		// 已处于目标状态视为幂等成功。
		if existing.Status == to {
			return nil
		}
		return fmt.Errorf("position: 持仓 %s 当前状态 %s 不允许迁移至 %s", id, existing.Status, to)
	}

	s.logger.Info("持仓状态迁移",
		zap.String("position_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

const selectColumns = `
	SELECT id, owner, symbol, entry_price, entry_amount,
	       take_profit_pct, stop_loss_pct, trailing_enabled, trailing_pct,
	       peak_price, status, venue_used, opened_at, closed_at,
	       exit_reason, exit_price, close_failures
	FROM positions`

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("position: 查询持仓失败: %w", err)
	}
	defer rows.Close()

	var out []*Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("position: 遍历持仓失败: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*Position, error) {
	var (
		p           Position
		trailingInt int
		status      string
		closedAt    sql.NullTime
		exitReason  sql.NullString
		exitPrice   sql.NullFloat64
	)

	err := row.Scan(
		&p.ID, &p.Owner, &p.Symbol, &p.EntryPrice, &p.EntryAmount,
		&p.Bracket.TakeProfitPct, &p.Bracket.StopLossPct, &trailingInt, &p.Bracket.TrailingStopPct,
		&p.PeakPrice, &status, &p.VenueUsed, &p.OpenedAt, &closedAt,
		&exitReason, &exitPrice, &p.CloseFailures,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("position: 读取持仓行失败: %w", err)
	}

	p.Bracket.TrailingStopEnabled = trailingInt != 0
	p.Status = Status(status)
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	if exitReason.Valid {
		p.ExitReason = ExitReason(exitReason.String)
	}
	if exitPrice.Valid {
		p.ExitPrice = exitPrice.Float64
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
