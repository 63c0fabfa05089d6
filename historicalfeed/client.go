// Package historicalfeed implements marketdata.HistoricalDataSource
// against a REST historical-data vendor, grounded on the teacher's
// oanda.Client REST-call shape but using retryablehttp for the
// retry/backoff the teacher's plain http.Client didn't have.
package historicalfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/govalues/decimal"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/relvacode/iso8601"
	"github.com/valyala/fastjson"

	"github.com/epic1st/marketcore/marketdata"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	RetryMax   int
	RetryWait  time.Duration
}

// Client is the REST-backed marketdata.HistoricalDataSource.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
}

// NewClient constructs a Client. RetryMax/RetryWait default to 3 and
// 2s, matching the warm-up retry discipline in spec.md §4.10/§5 (the
// lifecycle controller's own retry loop is a second, outer layer on top
// of this transport-level retry).
func NewClient(cfg Config) *Client {
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = 2 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWait
	rc.RetryWaitMax = cfg.RetryWait
	rc.Logger = nil

	return &Client{cfg: cfg, http: rc}
}

func (c *Client) unitName(unit marketdata.Unit) string {
	switch unit {
	case marketdata.Second:
		return "second"
	case marketdata.Minute:
		return "minute"
	case marketdata.Hour:
		return "hour"
	case marketdata.Day:
		return "day"
	case marketdata.Week:
		return "week"
	case marketdata.Month:
		return "month"
	default:
		return "unknown"
	}
}

// GetBars implements marketdata.HistoricalDataSource.GetBars. Columns
// required: t (ISO-8601 UTC), o, h, l, c, v; rows must arrive in
// ascending t (§6) — the vendor is trusted to provide this order.
func (c *Client) GetBars(ctx context.Context, symbol string, days int, interval int, unit marketdata.Unit) ([]marketdata.HistoricalBar, error) {
	url := fmt.Sprintf("%s/bars?symbol=%s&days=%d&interval=%d&unit=%s",
		c.cfg.BaseURL, symbol, days, interval, c.unitName(unit))

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}

	var parser fastjson.Parser
	root, err := parser.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse bars: %w", err)
	}

	rows := root.GetArray("bars")
	out := make([]marketdata.HistoricalBar, 0, len(rows))
	for _, row := range rows {
		ts, err := iso8601.ParseString(string(row.GetStringBytes("t")))
		if err != nil {
			continue
		}
		open, oErr := decimalField(row, "o")
		high, hErr := decimalField(row, "h")
		low, lErr := decimalField(row, "l")
		closePrice, cErr := decimalField(row, "c")
		if oErr != nil || hErr != nil || lErr != nil || cErr != nil {
			continue
		}
		out = append(out, marketdata.HistoricalBar{
			Ts: ts, Open: open, High: high, Low: low, Close: closePrice,
			Volume: uint64(row.GetInt("v")),
		})
	}
	return out, nil
}

// GetInstrument implements marketdata.HistoricalDataSource.GetInstrument.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (marketdata.Instrument, error) {
	url := fmt.Sprintf("%s/instruments/%s", c.cfg.BaseURL, symbol)
	body, err := c.get(ctx, url)
	if err != nil {
		return marketdata.Instrument{}, fmt.Errorf("%w: %s", marketdata.ErrInstrumentNotFound, err)
	}

	var parser fastjson.Parser
	root, err := parser.ParseBytes(body)
	if err != nil {
		return marketdata.Instrument{}, fmt.Errorf("%w: %s", marketdata.ErrInstrumentNotFound, err)
	}

	tickSize, _ := decimalField(root, "tick_size")
	tickValue, _ := decimalField(root, "tick_value")

	return marketdata.Instrument{
		Symbol:     symbol,
		ContractID: string(root.GetStringBytes("contract_id")),
		TickSize:   tickSize,
		TickValue:  tickValue,
	}, nil
}

// GetSessionToken implements marketdata.HistoricalDataSource.GetSessionToken.
func (c *Client) GetSessionToken(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/session-token", c.cfg.BaseURL)
	body, err := c.get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("get session token: %w", err)
	}

	var parser fastjson.Parser
	root, err := parser.ParseBytes(body)
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	return string(root.GetStringBytes("token")), nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func decimalField(v *fastjson.Value, key string) (decimal.Decimal, error) {
	s := string(v.GetStringBytes(key))
	if s != "" {
		return decimal.Parse(s)
	}
	f := v.Get(key).GetFloat64()
	return decimal.Parse(strconv.FormatFloat(f, 'f', -1, 64))
}
