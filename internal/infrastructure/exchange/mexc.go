package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	MexcBaseURL = "https://api.mexc.com"
	MexcWSURL   = "wss://wbs.mexc.com/ws"

	priceCacheTTL = 5 * time.Second
)

type cachedPrice struct {
	price float64
	at    time.Time
}

// MexcAdapter implements domain.Exchange against the MEXC spot API, with a
// websocket mini-ticker stream feeding a price cache so monitor sweeps
// avoid a REST round-trip per position.
type MexcAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	mu         sync.Mutex
	wsConn     *websocket.Conn
	subscribed map[string]bool
	prices     map[string]cachedPrice
}

func NewMexcAdapter(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *MexcAdapter {
	if baseURL == "" {
		baseURL = MexcBaseURL
	}
	if wsURL == "" {
		wsURL = MexcWSURL
	}
	return &MexcAdapter{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		subscribed: make(map[string]bool),
		prices:     make(map[string]cachedPrice),
	}
}

// --- REST API ---

func (m *MexcAdapter) sign(query string) string {
	h := hmac.New(sha256.New, []byte(m.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

func (m *MexcAdapter) sendSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	query += "&signature=" + m.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path+"?"+query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MEXC-APIKEY", m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("mexc API error %d: %s", apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("mexc API error: HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// PlaceOrder submits an order. Market buys spend QuoteAmount; market sells
// and limit orders use Quantity.
func (m *MexcAdapter) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", order.Type)
	if order.QuoteAmount > 0 {
		params.Set("quoteOrderQty", strconv.FormatFloat(order.QuoteAmount, 'f', -1, 64))
	}
	if order.Quantity > 0 {
		params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
	}
	if order.Type == "LIMIT" {
		params.Set("price", strconv.FormatFloat(order.Price, 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	}

	body, err := m.sendSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var raw struct {
		OrderID     json.Number `json:"orderId"`
		Status      string      `json:"status"`
		ExecutedQty string      `json:"executedQty"`
		Price       string      `json:"price"`
		Fills       []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	result := &domain.OrderResult{
		OrderID: raw.OrderID.String(),
		Status:  raw.Status,
	}
	result.ExecutedQty, _ = strconv.ParseFloat(raw.ExecutedQty, 64)
	result.Price, _ = strconv.ParseFloat(raw.Price, 64)

	// Market fills come back per-fill; average them into one price.
	if result.Price == 0 && len(raw.Fills) > 0 {
		var qtySum, notional float64
		for _, f := range raw.Fills {
			p, _ := strconv.ParseFloat(f.Price, 64)
			q, _ := strconv.ParseFloat(f.Qty, 64)
			qtySum += q
			notional += p * q
		}
		if qtySum > 0 {
			result.Price = notional / qtySum
			if result.ExecutedQty == 0 {
				result.ExecutedQty = qtySum
			}
		}
	}
	// Fall back to the ticker so callers never see a zero fill price.
	if result.Price == 0 {
		if p, perr := m.GetTickerPrice(ctx, order.Symbol); perr == nil {
			result.Price = p
		}
	}
	return result, nil
}

// GetTickerPrice serves from the websocket price cache when fresh,
// otherwise falls back to REST.
func (m *MexcAdapter) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	cached, ok := m.prices[symbol]
	m.mu.Unlock()
	if ok && time.Since(cached.at) < priceCacheTTL {
		return cached.price, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/api/v3/ticker/price?symbol="+symbol, nil)
	if err != nil {
		return 0, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("mexc ticker error: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", result.Price, err)
	}

	m.mu.Lock()
	m.prices[symbol] = cachedPrice{price: price, at: time.Now()}
	m.mu.Unlock()
	return price, nil
}

// GetAccountBalances is the connectivity probe: a signed account query
// that fails loudly on bad credentials or network trouble.
func (m *MexcAdapter) GetAccountBalances(ctx context.Context) error {
	body, err := m.sendSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return err
	}
	var result struct {
		CanTrade bool `json:"canTrade"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode account response: %w", err)
	}
	if !result.CanTrade {
		return fmt.Errorf("account is not enabled for trading")
	}
	return nil
}

// --- WebSocket price stream ---

// Subscribe opens the stream on first use and adds mini-ticker
// subscriptions for any new symbols.
func (m *MexcAdapter) Subscribe(symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.wsConn == nil {
		c, _, err := websocket.DefaultDialer.Dial(m.wsURL, nil)
		if err != nil {
			return fmt.Errorf("dial ws: %w", err)
		}
		m.wsConn = c
		go m.readLoop(c)
	}

	var params []string
	for _, s := range symbols {
		if m.subscribed[s] {
			continue
		}
		m.subscribed[s] = true
		params = append(params, "spot@public.miniTicker.v3.api@"+s+"@UTC+0")
	}
	if len(params) == 0 {
		return nil
	}

	sub := map[string]interface{}{
		"method": "SUBSCRIPTION",
		"params": params,
	}
	if err := m.wsConn.WriteJSON(sub); err != nil {
		return fmt.Errorf("ws subscribe: %w", err)
	}
	m.logger.Info("Subscribed to price stream", zap.Strings("params", params))
	return nil
}

func (m *MexcAdapter) readLoop(c *websocket.Conn) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			m.logger.Warn("Price stream closed", zap.Error(err))
			m.mu.Lock()
			if m.wsConn == c {
				m.wsConn = nil
				for s := range m.subscribed {
					delete(m.subscribed, s)
				}
			}
			m.mu.Unlock()
			return
		}

		var msg struct {
			Channel string `json:"c"`
			Symbol  string `json:"s"`
			Data    struct {
				Price string `json:"p"`
			} `json:"d"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Symbol == "" || msg.Data.Price == "" {
			continue
		}
		price, err := strconv.ParseFloat(msg.Data.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		m.mu.Lock()
		m.prices[msg.Symbol] = cachedPrice{price: price, at: time.Now()}
		m.mu.Unlock()
	}
}

// Close tears down the websocket stream.
func (m *MexcAdapter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wsConn != nil {
		m.wsConn.Close()
		m.wsConn = nil
	}
}
