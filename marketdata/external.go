package marketdata

import (
	"context"
	"time"

	"github.com/govalues/decimal"
)

// Instrument is the descriptor returned by HistoricalDataSource. After
// warm-up the core uses ContractID to subscribe the realtime transport and
// TickSize for quote-size matching and iceberg scoring. Inbound realtime
// messages are not filtered by ContractID.
type Instrument struct {
	Symbol     string
	ContractID string
	TickSize   decimal.Decimal
	TickValue  decimal.Decimal
}

// HistoricalBar is one row of a HistoricalDataSource response.
type HistoricalBar struct {
	Ts    time.Time
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
	Volume uint64
}

// HistoricalDataSource is implemented by historicalfeed.Client. Defined
// here, rather than in the historicalfeed package, so marketdata never
// imports its collaborators — they import marketdata instead.
type HistoricalDataSource interface {
	// GetBars returns rows in ascending t, covering at least `days` of
	// history for (interval, unit). Columns required: t, o, h, l, c, v.
	GetBars(ctx context.Context, symbol string, days int, interval int, unit Unit) ([]HistoricalBar, error)
	GetInstrument(ctx context.Context, symbol string) (Instrument, error)
	GetSessionToken(ctx context.Context) (string, error)
}

// RealtimeTransport is implemented by transport.WebSocketTransport.
type RealtimeTransport interface {
	Connect(ctx context.Context) error
	SubscribeMarketData(ctx context.Context, contractIDs []string) error
	AddCallback(channel Channel, handler func(interface{}))
	Disconnect() error
}
