package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"soltrader/internal/config"
)

// RaydiumClient 对接 Raydium 风格的兑换接口，作为备用执行场所。
// 接口形态与 Jupiter 不同：询价按池计算，执行引用池而非路由。
type RaydiumClient struct {
	cfg        config.VenueConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRaydiumClient 根据配置构造客户端。
func NewRaydiumClient(cfg config.VenueConfig, logger *zap.Logger) (*RaydiumClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("venue: %s base_url 不能为空", cfg.Name)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("venue: 解析 %s base_url 失败: %w", cfg.Name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RaydiumClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Name 返回场所标识。
func (c *RaydiumClient) Name() string {
	return c.cfg.Name
}

type raydiumEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type raydiumComputeData struct {
	Price        float64 `json:"price"`
	OutputAmount float64 `json:"outputAmount"`
	PriceImpact  float64 `json:"priceImpact"`
	PoolID       string  `json:"poolId"`
}

type raydiumSwapPayload struct {
	PoolID        string  `json:"poolId"`
	Side          string  `json:"side"`
	Amount        float64 `json:"amount"`
	ClientOrderID string  `json:"clientOrderId"`
}

type raydiumSwapData struct {
	TxID      string  `json:"txId"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Duplicate bool    `json:"duplicate"`
}

// Quote 请求一次兑换报价。
func (c *RaydiumClient) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	query := url.Values{}
	query.Set("symbol", req.Symbol)
	query.Set("side", string(req.Side))
	query.Set("amount", strconv.FormatFloat(req.Amount, 'f', -1, 64))
	query.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	var data raydiumComputeData
	if err := c.do(ctx, http.MethodGet, "/compute/swap-base-in?"+query.Encode(), nil, "", &data); err != nil {
		return Quote{}, err
	}

	if data.Price <= 0 || data.OutputAmount <= 0 {
		return Quote{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: "报价缺少价格或数量"}
	}
	if data.PoolID == "" {
		return Quote{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: "报价缺少池标识"}
	}

	return Quote{
		Venue:          c.cfg.Name,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Price:          data.Price,
		OutAmount:      data.OutputAmount,
		PriceImpactPct: data.PriceImpact,
		RouteRef:       data.PoolID,
		RetrievedAt:    time.Now().UTC(),
	}, nil
}

// Execute 按报价执行兑换。Duplicate 回执同样视为成功。
func (c *RaydiumClient) Execute(ctx context.Context, req SwapRequest) (Receipt, error) {
	payload := raydiumSwapPayload{
		PoolID:        req.Quote.RouteRef,
		Side:          string(req.Quote.Side),
		Amount:        req.Quote.OutAmount,
		ClientOrderID: req.IdempotencyKey,
	}

	var data raydiumSwapData
	if err := c.do(ctx, http.MethodPost, "/transaction/swap", payload, req.IdempotencyKey, &data); err != nil {
		return Receipt{}, err
	}

	if data.Price <= 0 || data.Amount <= 0 {
		return Receipt{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: "成交回执缺少价格或数量"}
	}

	return Receipt{
		Venue:      c.cfg.Name,
		Symbol:     req.Quote.Symbol,
		Side:       req.Quote.Side,
		FillPrice:  data.Price,
		FillAmount: data.Amount,
		TxRef:      data.TxID,
		Duplicate:  data.Duplicate,
	}, nil
}

func (c *RaydiumClient) do(ctx context.Context, method, path string, payload interface{}, idempotencyKey string, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("venue: 序列化请求失败: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("venue: 构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(c.cfg.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return classifyTransport(c.cfg.Name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(c.cfg.Name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope raydiumEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: fmt.Sprintf("解析响应失败: %v", err)}
	}
	if !envelope.Success {
		return &Error{Venue: c.cfg.Name, Kind: FailureRejected, Message: envelope.Message}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: fmt.Sprintf("解析响应数据失败: %v", err)}
		}
	}
	return nil
}
