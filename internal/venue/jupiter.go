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

// JupiterClient 对接 Jupiter 风格的聚合器接口（先询价后执行）。
type JupiterClient struct {
	cfg        config.VenueConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewJupiterClient 根据配置构造客户端。
func NewJupiterClient(cfg config.VenueConfig, logger *zap.Logger) (*JupiterClient, error) {
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
	return &JupiterClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Name 返回场所标识。
func (c *JupiterClient) Name() string {
	return c.cfg.Name
}

type jupiterQuoteResponse struct {
	Price          string `json:"price"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	RoutePlan      string `json:"routePlan"`
}

type jupiterSwapRequest struct {
	RoutePlan      string `json:"routePlan"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type jupiterSwapResponse struct {
	Status     string  `json:"status"`
	TxID       string  `json:"txid"`
	FillPrice  float64 `json:"fillPrice"`
	FillAmount float64 `json:"fillAmount"`
}

// Quote 请求一次兑换报价。
func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	query := url.Values{}
	query.Set("symbol", req.Symbol)
	query.Set("side", string(req.Side))
	query.Set("amount", strconv.FormatFloat(req.Amount, 'f', -1, 64))
	query.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	var resp jupiterQuoteResponse
	if err := c.do(ctx, http.MethodGet, "/quote?"+query.Encode(), nil, "", &resp); err != nil {
		return Quote{}, err
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return Quote{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: fmt.Sprintf("报价价格无效: %q", resp.Price)}
	}
	outAmount, err := strconv.ParseFloat(resp.OutAmount, 64)
	if err != nil || outAmount <= 0 {
		return Quote{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: fmt.Sprintf("报价数量无效: %q", resp.OutAmount)}
	}
	impact, err := strconv.ParseFloat(resp.PriceImpactPct, 64)
	if err != nil {
		return Quote{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: fmt.Sprintf("价格冲击无效: %q", resp.PriceImpactPct)}
	}
	if resp.RoutePlan == "" {
		return Quote{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: "报价缺少路由信息"}
	}

	return Quote{
		Venue:          c.cfg.Name,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Price:          price,
		OutAmount:      outAmount,
		PriceImpactPct: impact,
		RouteRef:       resp.RoutePlan,
		RetrievedAt:    time.Now().UTC(),
	}, nil
}

// Execute 按报价执行兑换。场所返回 already_processed 时视为成功，
// 以免确认丢失后的重放造成重复成交。
func (c *JupiterClient) Execute(ctx context.Context, req SwapRequest) (Receipt, error) {
	payload := jupiterSwapRequest{
		RoutePlan:      req.Quote.RouteRef,
		IdempotencyKey: req.IdempotencyKey,
	}

	var resp jupiterSwapResponse
	if err := c.do(ctx, http.MethodPost, "/swap", payload, req.IdempotencyKey, &resp); err != nil {
		return Receipt{}, err
	}

	switch resp.Status {
	case "filled", "already_processed":
	default:
		return Receipt{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: fmt.Sprintf("未知执行状态: %q", resp.Status)}
	}
	if resp.FillPrice <= 0 || resp.FillAmount <= 0 {
		return Receipt{}, &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: "成交回执缺少价格或数量"}
	}

	return Receipt{
		Venue:      c.cfg.Name,
		Symbol:     req.Quote.Symbol,
		Side:       req.Quote.Side,
		FillPrice:  resp.FillPrice,
		FillAmount: resp.FillAmount,
		TxRef:      resp.TxID,
		Duplicate:  resp.Status == "already_processed",
	}, nil
}

func (c *JupiterClient) do(ctx context.Context, method, path string, payload interface{}, idempotencyKey string, out interface{}) error {
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

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Venue: c.cfg.Name, Kind: FailureMalformed, Message: fmt.Sprintf("解析响应失败: %v", err)}
		}
	}
	return nil
}
