package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Venues     VenuesConfig     `mapstructure:"venues"`
	Router     RouterConfig     `mapstructure:"router"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Server     ServerConfig     `mapstructure:"server"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
	Owner       string `mapstructure:"owner"`
}

// MarketDataConfig 描述行情协作方连接信息。
type MarketDataConfig struct {
	Exchange     string        `mapstructure:"exchange"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	UseSandbox   bool          `mapstructure:"use_sandbox"`
	Retry        RetryConfig   `mapstructure:"retry"`
	HistoryLimit int           `mapstructure:"history_limit"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	MaxStaleness time.Duration `mapstructure:"max_staleness"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// SentimentConfig 描述情绪信号协作方。
type SentimentConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StrategyConfig 控制策略选择器行为。
type StrategyConfig struct {
	TrendR2Threshold float64 `mapstructure:"trend_r2_threshold"`
	MinHistory       int     `mapstructure:"min_history"`
	MinConfidence    float64 `mapstructure:"min_confidence"`
}

// VenueConfig 描述单个执行场所。
type VenueConfig struct {
	Name        string        `mapstructure:"name"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SlippageBps int           `mapstructure:"slippage_bps"`
}

// VenuesConfig 定义主备两个执行场所。
type VenuesConfig struct {
	Primary  VenueConfig `mapstructure:"primary"`
	Fallback VenueConfig `mapstructure:"fallback"`
}

// RouterConfig 控制提交路由器的重试与熔断策略。
type RouterConfig struct {
	QuoteTimeout       time.Duration `mapstructure:"quote_timeout"`
	MaxExecuteAttempts int           `mapstructure:"max_execute_attempts"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	MaxPriceImpactPct  float64       `mapstructure:"max_price_impact_pct"`
	BreakerThreshold   int           `mapstructure:"breaker_threshold"`
	BreakerWindow      time.Duration `mapstructure:"breaker_window"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown"`
}

// MonitorConfig 控制持仓监控循环。
type MonitorConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	PriceTimeout     time.Duration `mapstructure:"price_timeout"`
	MaxCloseFailures int           `mapstructure:"max_close_failures"`
}

// EngineConfig 控制自动开仓时使用的默认参数。
type EngineConfig struct {
	Symbols         []string `mapstructure:"symbols"`
	TradeAmount     float64  `mapstructure:"trade_amount"`
	TakeProfitPct   float64  `mapstructure:"take_profit_pct"`
	StopLossPct     float64  `mapstructure:"stop_loss_pct"`
	TrailingStop    bool     `mapstructure:"trailing_stop"`
	TrailingStopPct float64  `mapstructure:"trailing_stop_pct"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制决策循环节奏。
type SchedulerConfig struct {
	DecisionInterval time.Duration `mapstructure:"decision_interval"`
}

// ServerConfig 控制管理接口。
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.App.Owner == "" {
		err = multierr.Append(err, errors.New("app.owner 不能为空"))
	}
	if c.MarketData.Exchange == "" {
		err = multierr.Append(err, errors.New("market_data.exchange 不能为空"))
	}
	if c.MarketData.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("market_data.retry.max_attempts 必须大于0"))
	}
	if c.MarketData.Retry.MinDelay <= 0 || c.MarketData.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("market_data.retry.delay 必须为正"))
	}
	if c.MarketData.Retry.MinDelay > c.MarketData.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("market_data.retry.min_delay 不能大于 max_delay"))
	}
	if c.MarketData.HistoryLimit < 10 {
		err = multierr.Append(err, errors.New("market_data.history_limit 不能小于10"))
	}
	if c.MarketData.MaxStaleness <= 0 {
		err = multierr.Append(err, errors.New("market_data.max_staleness 必须大于0"))
	}
	if c.Sentiment.Enabled && c.Sentiment.BaseURL == "" {
		err = multierr.Append(err, errors.New("sentiment.base_url 启用后不能为空"))
	}
	if c.Strategy.TrendR2Threshold <= 0 || c.Strategy.TrendR2Threshold >= 1 {
		err = multierr.Append(err, errors.New("strategy.trend_r2_threshold 必须位于(0,1)"))
	}
	if c.Strategy.MinConfidence < 0 || c.Strategy.MinConfidence > 1 {
		err = multierr.Append(err, errors.New("strategy.min_confidence 必须位于[0,1]"))
	}
	if c.Strategy.MinHistory < 2 {
		err = multierr.Append(err, errors.New("strategy.min_history 不能小于2"))
	}
	for _, vc := range []struct {
		prefix string
		cfg    VenueConfig
	}{{"venues.primary", c.Venues.Primary}, {"venues.fallback", c.Venues.Fallback}} {
		if vc.cfg.Name == "" {
			err = multierr.Append(err, fmt.Errorf("%s.name 不能为空", vc.prefix))
		}
		if vc.cfg.BaseURL == "" {
			err = multierr.Append(err, fmt.Errorf("%s.base_url 不能为空", vc.prefix))
		}
		if vc.cfg.Timeout <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.timeout 必须大于0", vc.prefix))
		}
		if vc.cfg.SlippageBps < 0 || vc.cfg.SlippageBps > 2000 {
			err = multierr.Append(err, fmt.Errorf("%s.slippage_bps 应位于[0,2000]", vc.prefix))
		}
	}
	if c.Venues.Primary.Name != "" && c.Venues.Primary.Name == c.Venues.Fallback.Name {
		err = multierr.Append(err, errors.New("venues.primary 与 venues.fallback 不能同名"))
	}
	if c.Router.QuoteTimeout <= 0 {
		err = multierr.Append(err, errors.New("router.quote_timeout 必须大于0"))
	}
	if c.Router.MaxExecuteAttempts <= 0 {
		err = multierr.Append(err, errors.New("router.max_execute_attempts 必须大于0"))
	}
	if c.Router.BackoffBase <= 0 || c.Router.BackoffMax <= 0 {
		err = multierr.Append(err, errors.New("router.backoff 必须为正"))
	}
	if c.Router.BackoffBase > c.Router.BackoffMax {
		err = multierr.Append(err, errors.New("router.backoff_base 不能大于 backoff_max"))
	}
	if c.Router.MaxPriceImpactPct <= 0 {
		err = multierr.Append(err, errors.New("router.max_price_impact_pct 必须大于0"))
	}
	if c.Router.BreakerThreshold <= 0 {
		err = multierr.Append(err, errors.New("router.breaker_threshold 必须大于0"))
	}
	if c.Router.BreakerWindow <= 0 || c.Router.BreakerCooldown <= 0 {
		err = multierr.Append(err, errors.New("router.breaker 窗口与冷却时间必须为正"))
	}
	if c.Monitor.Interval <= 0 {
		err = multierr.Append(err, errors.New("monitor.interval 必须大于0"))
	}
	if c.Monitor.PriceTimeout <= 0 {
		err = multierr.Append(err, errors.New("monitor.price_timeout 必须大于0"))
	}
	if c.Monitor.MaxCloseFailures <= 0 {
		err = multierr.Append(err, errors.New("monitor.max_close_failures 必须大于0"))
	}
	if len(c.Engine.Symbols) == 0 {
		err = multierr.Append(err, errors.New("engine.symbols 至少包含一个交易标的"))
	}
	if c.Engine.TradeAmount <= 0 {
		err = multierr.Append(err, errors.New("engine.trade_amount 必须大于0"))
	}
	if c.Engine.TakeProfitPct <= 0 {
		err = multierr.Append(err, errors.New("engine.take_profit_pct 必须大于0"))
	}
	if c.Engine.StopLossPct <= 0 || c.Engine.StopLossPct >= 100 {
		err = multierr.Append(err, errors.New("engine.stop_loss_pct 必须位于(0,100)"))
	}
	if c.Engine.TrailingStop && (c.Engine.TrailingStopPct <= 0 || c.Engine.TrailingStopPct >= 100) {
		err = multierr.Append(err, errors.New("engine.trailing_stop_pct 必须位于(0,100)"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.DecisionInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.decision_interval 必须大于0"))
	}
	if c.Scheduler.DecisionInterval < c.Monitor.Interval {
		err = multierr.Append(err, errors.New("scheduler.decision_interval 不应小于 monitor.interval"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
