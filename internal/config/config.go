package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "soltrader"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.owner", "default")

	v.SetDefault("market_data.exchange", "binance")
	v.SetDefault("market_data.use_sandbox", false)
	v.SetDefault("market_data.retry.max_attempts", 5)
	v.SetDefault("market_data.retry.min_delay", "500ms")
	v.SetDefault("market_data.retry.max_delay", "5s")
	v.SetDefault("market_data.history_limit", 120)
	v.SetDefault("market_data.cache_ttl", "10s")
	v.SetDefault("market_data.max_staleness", "30s")

	v.SetDefault("sentiment.enabled", false)
	v.SetDefault("sentiment.timeout", "2s")

	v.SetDefault("strategy.trend_r2_threshold", 0.60)
	v.SetDefault("strategy.min_history", 30)
	v.SetDefault("strategy.min_confidence", 0.55)

	v.SetDefault("venues.primary.name", "jupiter")
	v.SetDefault("venues.primary.base_url", "https://quote-api.jup.ag/v6")
	v.SetDefault("venues.primary.timeout", "10s")
	v.SetDefault("venues.primary.slippage_bps", 50)
	v.SetDefault("venues.fallback.name", "raydium")
	v.SetDefault("venues.fallback.base_url", "https://transaction-v1.raydium.io")
	v.SetDefault("venues.fallback.timeout", "10s")
	v.SetDefault("venues.fallback.slippage_bps", 50)

	v.SetDefault("router.quote_timeout", "3s")
	v.SetDefault("router.max_execute_attempts", 3)
	v.SetDefault("router.backoff_base", "1s")
	v.SetDefault("router.backoff_max", "8s")
	v.SetDefault("router.max_price_impact_pct", 1.5)
	v.SetDefault("router.breaker_threshold", 5)
	v.SetDefault("router.breaker_window", "60s")
	v.SetDefault("router.breaker_cooldown", "30s")

	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.price_timeout", "10s")
	v.SetDefault("monitor.max_close_failures", 3)

	v.SetDefault("engine.symbols", []string{"SOL/USDT"})
	v.SetDefault("engine.trade_amount", 10)
	v.SetDefault("engine.take_profit_pct", 20)
	v.SetDefault("engine.stop_loss_pct", 10)
	v.SetDefault("engine.trailing_stop", false)
	v.SetDefault("engine.trailing_stop_pct", 5)

	v.SetDefault("database.path", "data/soltrader.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.decision_interval", "5m")

	v.SetDefault("server.port", 8086)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
