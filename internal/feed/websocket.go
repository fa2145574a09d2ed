package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/your-org/trail-guard-bot/pkg/logger"
)

const defaultStreamURL = "wss://fstream.binance.com/stream"

// TickHandler receives every parsed mark-price tick.
type TickHandler func(Tick)

// WebSocketClient subscribes to the Binance futures combined mark-price
// stream for a set of symbols and forwards ticks to its handler.
type WebSocketClient struct {
	baseURL string
	symbols []string
	handler TickHandler
}

// NewWebSocketClient creates a client. baseURL may be empty for production;
// tests point it at a local server.
func NewWebSocketClient(baseURL string, symbols []string, handler TickHandler) *WebSocketClient {
	if baseURL == "" {
		baseURL = defaultStreamURL
	}
	return &WebSocketClient{baseURL: baseURL, symbols: symbols, handler: handler}
}

// streamURL builds the combined-stream URL, e.g.
// wss://fstream.binance.com/stream?streams=btcusdt@markPrice@1s/ethusdt@markPrice@1s
func (c *WebSocketClient) streamURL() string {
	streams := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		streams = append(streams, strings.ToLower(s)+"@markPrice@1s")
	}
	return c.baseURL + "?streams=" + strings.Join(streams, "/")
}

// Run connects and keeps reading until ctx is cancelled, reconnecting with
// exponential backoff on any connection loss. A price feed outage is never
// fatal to the engine; positions keep their last applied protection.
func (c *WebSocketClient) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Errorf("Mark price stream disconnected: %v. Reconnecting in %v...", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// combinedMessage is the envelope of the combined stream.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   markPriceUpdate `json:"data"`
}

// markPriceUpdate is the markPrice event payload.
type markPriceUpdate struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

func (c *WebSocketClient) connectAndRead(ctx context.Context) error {
	url := c.streamURL()
	logger.Infof("Connecting to mark price stream: %s", url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	logger.Infof("Mark price stream connected for %d symbols", len(c.symbols))

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		tick, ok := parseMarkPrice(message)
		if !ok {
			logger.Debugf("Ignoring unparsable stream message: %s", message)
			continue
		}
		c.handler(tick)
	}
}

// parseMarkPrice extracts a Tick from a combined-stream message.
func parseMarkPrice(message []byte) (Tick, bool) {
	var msg combinedMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return Tick{}, false
	}
	if msg.Data.EventType != "markPriceUpdate" || msg.Data.Symbol == "" {
		return Tick{}, false
	}
	price, err := strconv.ParseFloat(msg.Data.MarkPrice, 64)
	if err != nil || price <= 0 {
		return Tick{}, false
	}
	return Tick{
		Symbol: msg.Data.Symbol,
		Price:  price,
		Time:   time.UnixMilli(msg.Data.EventTime),
	}, true
}
