package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"soltrader/internal/config"
)

// Client 从情绪服务拉取标的的热度增益。
// 情绪只是锦上添花：任何失败都返回零增益，不影响主链路。
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient 创建情绪客户端。
func NewClient(cfg config.SentimentConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type boostResponse struct {
	Symbol string  `json:"symbol"`
	Boost  float64 `json:"boost"`
}

// Boost 返回 [0, 0.2] 范围内的置信度增益。
func (c *Client) Boost(ctx context.Context, symbol string) float64 {
	endpoint := fmt.Sprintf("%s/sentiment/boost?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Debug("构建情绪请求失败", zap.String("symbol", symbol), zap.Error(err))
		return 0
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("情绪服务不可用", zap.String("symbol", symbol), zap.Error(err))
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("情绪服务返回异常状态",
			zap.String("symbol", symbol),
			zap.Int("status", resp.StatusCode),
		)
		return 0
	}

	var body boostResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		c.logger.Debug("解析情绪响应失败", zap.String("symbol", symbol), zap.Error(err))
		return 0
	}

	boost := body.Boost
	if boost < 0 {
		boost = 0
	}
	if boost > 0.2 {
		boost = 0.2
	}
	return boost
}
