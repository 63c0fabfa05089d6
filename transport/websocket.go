// Package transport implements marketdata.RealtimeTransport over a
// vendor WebSocket market-data feed.
package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/govalues/decimal"
	"github.com/relvacode/iso8601"
	"github.com/valyala/fastjson"

	"github.com/epic1st/marketcore/logging"
	"github.com/epic1st/marketcore/marketdata"
)

// Config configures a WebSocketTransport.
type Config struct {
	URL                string
	HandshakeTimeout   time.Duration
	PingInterval       time.Duration
	DefaultTradeVolume uint64 // small-trade presumption, default 25 per §6
}

// WebSocketTransport is the concrete marketdata.RealtimeTransport
// implementation, grounded on the teacher's ws.Hub connection-handling
// idiom (mutex-guarded state, a dedicated read-pump goroutine, JSON
// frame decode) but pointed outward at a vendor feed instead of
// fanning in from browser clients.
type WebSocketTransport struct {
	cfg Config

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[marketdata.Channel][]func(interface{})
	done     chan struct{}
}

// NewWebSocketTransport constructs a transport for cfg. DefaultTradeVolume
// falls back to 25, the reference implementation's small-trade presumption.
func NewWebSocketTransport(cfg Config) *WebSocketTransport {
	if cfg.DefaultTradeVolume == 0 {
		cfg.DefaultTradeVolume = 25
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &WebSocketTransport{cfg: cfg, handlers: make(map[marketdata.Channel][]func(interface{}))}
}

// AddCallback registers handler for channel. Implements the engine-facing
// half of marketdata.RealtimeTransport; the engine itself does the
// registering in lifecycle.StartFeed.
func (t *WebSocketTransport) AddCallback(channel marketdata.Channel, handler func(interface{})) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[channel] = append(t.handlers[channel], handler)
}

// Connect dials the vendor feed and starts the read pump.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.readPump()
	go t.pingLoop()

	logging.Info(fmt.Sprintf("transport connected to %s", t.cfg.URL))
	return nil
}

// SubscribeMarketData sends the vendor subscribe frame for contractIDs.
func (t *WebSocketTransport) SubscribeMarketData(ctx context.Context, contractIDs []string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("subscribe: not connected")
	}

	msg := buildSubscribeFrame(contractIDs)
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Disconnect closes the connection. Idempotent.
func (t *WebSocketTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// pingLoop keeps the connection alive with periodic pings.
func (t *WebSocketTransport) pingLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		t.mu.Lock()
		conn := t.conn
		done := t.done
		t.mu.Unlock()
		if conn == nil || done == nil {
			return
		}

		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logging.Warn(fmt.Sprintf("transport ping failed: %s", err))
				return
			}
		}
	}
}

// readPump reads frames until the connection closes, parses them with
// fastjson at the boundary, and dispatches to registered handlers. A
// malformed frame is logged and dropped; it never stops the pump.
func (t *WebSocketTransport) readPump() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}

	var parser fastjson.Parser
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logging.Warn(fmt.Sprintf("transport read error: %s", err))
			return
		}

		value, err := parser.ParseBytes(raw)
		if err != nil {
			logging.Warn(fmt.Sprintf("transport malformed frame: %s", err))
			continue
		}

		channel := string(value.GetStringBytes("channel"))
		switch channel {
		case "market_depth":
			t.dispatch(marketdata.ChannelMarketDepth, parseDepthFrame(value, t.cfg.DefaultTradeVolume))
		case "quote_update":
			t.dispatch(marketdata.ChannelQuoteUpdate, parseQuoteFrame(value))
		case "market_trade":
			t.dispatch(marketdata.ChannelMarketTrade, parseTradeFrame(value, t.cfg.DefaultTradeVolume))
		default:
			logging.Warn(fmt.Sprintf("transport unknown channel: %s", channel))
		}
	}
}

func (t *WebSocketTransport) dispatch(channel marketdata.Channel, payload interface{}) {
	t.mu.Lock()
	handlers := append([]func(interface{})(nil), t.handlers[channel]...)
	t.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func buildSubscribeFrame(contractIDs []string) []byte {
	var b []byte
	b = append(b, `{"action":"subscribe","contractIds":[`...)
	for i, id := range contractIDs {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '"')
		b = append(b, id...)
		b = append(b, '"')
	}
	b = append(b, `]}`...)
	return b
}

// parseDepthFrame parses { contract_id, data: [{price, volume, type, timestamp}] }
// into marketdata.DepthEntry values, per §6.
func parseDepthFrame(v *fastjson.Value, _ uint64) []marketdata.DepthEntry {
	entries := v.GetArray("data")
	out := make([]marketdata.DepthEntry, 0, len(entries))
	for _, e := range entries {
		price, err := decimalFromKeys(e, "price")
		if err != nil {
			continue
		}
		out = append(out, marketdata.DepthEntry{
			Price:     price,
			Volume:    uint64(e.GetInt("volume")),
			Type:      e.GetInt("type"),
			Timestamp: timestampFromKey(e, "timestamp"),
		})
	}
	return out
}

// parseTradeFrame parses { contract_id, data: [{price, volume?, type, timestamp}] }
// where missing volume defaults to defaultVolume (the small-trade
// presumption). The vendor's own buy/sell type flag is not read; the tape
// always infers side from top-of-book (C5).
func parseTradeFrame(v *fastjson.Value, defaultVolume uint64) []marketdata.DepthEntry {
	entries := v.GetArray("data")
	out := make([]marketdata.DepthEntry, 0, len(entries))
	for _, e := range entries {
		price, err := decimalFromKeys(e, "price")
		if err != nil {
			continue
		}
		volume := defaultVolume
		if e.Exists("volume") {
			volume = uint64(e.GetInt("volume"))
		}
		out = append(out, marketdata.DepthEntry{
			Price:     price,
			Volume:    volume,
			Type:      5,
			Timestamp: timestampFromKey(e, "timestamp"),
		})
	}
	return out
}

// parseQuoteFrame parses { contract_id, data: { bestBid|bid?, bestAsk|ask?,
// lastPrice|last|price?, volume? } } and applies the §4.7 alias map.
func parseQuoteFrame(v *fastjson.Value) marketdata.QuoteFrame {
	data := v.Get("data")
	if data == nil {
		return marketdata.QuoteFrame{}
	}

	frame := marketdata.QuoteFrame{}
	if p, err := decimalFromKeys(data, "bestBid", "bid"); err == nil {
		frame.Bid, frame.HaveBid = p, true
	}
	if p, err := decimalFromKeys(data, "bestAsk", "ask"); err == nil {
		frame.Ask, frame.HaveAsk = p, true
	}
	if p, err := decimalFromKeys(data, "lastPrice", "last", "price"); err == nil {
		frame.Last, frame.HaveLast = p, true
	}
	if data.Exists("volume") {
		frame.Volume = uint64(data.GetInt("volume"))
		frame.HaveVolume = true
	}
	return frame
}

// decimalFromKeys returns the first present key's value as a decimal,
// converting through its float64 form (vendor frames send prices as
// JSON numbers, not strings).
func decimalFromKeys(v *fastjson.Value, keys ...string) (decimal.Decimal, error) {
	for _, k := range keys {
		if v.Exists(k) {
			f := v.Get(k).GetFloat64()
			return decimal.Parse(strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	return decimal.Decimal{}, fmt.Errorf("none of %v present", keys)
}

func timestampFromKey(v *fastjson.Value, key string) time.Time {
	s := string(v.GetStringBytes(key))
	if s == "" {
		return time.Time{}
	}
	parsed, err := iso8601.ParseString(s)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
