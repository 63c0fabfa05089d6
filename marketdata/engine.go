package marketdata

import (
	"fmt"
	"sync"
	"time"

	"github.com/govalues/decimal"
	"github.com/google/uuid"

	"github.com/epic1st/marketcore/logging"
	"github.com/epic1st/marketcore/monitoring"
)

// TickKind distinguishes a real executed trade from a tick synthesized
// from a quote update.
type TickKind int

const (
	KindTrade TickKind = iota
	KindQuote
)

// NormalizedTick is the post-C7 shape C3 consumes.
type NormalizedTick struct {
	Ts     time.Time
	Price  decimal.Decimal
	Volume uint64
	Kind   TickKind
}

// Channel identifies one callback subscription channel (§4.9).
type Channel string

const (
	ChannelDataUpdate  Channel = "data_update"
	ChannelNewBar      Channel = "new_bar"
	ChannelMarketDepth Channel = "market_depth"
	ChannelQuoteUpdate Channel = "quote_update"
	ChannelMarketTrade Channel = "market_trade"
)

// DataUpdateEvent is the data_update callback payload.
type DataUpdateEvent struct {
	Ts     time.Time
	Price  decimal.Decimal
	Volume uint64
}

// NewBarEvent is the new_bar callback payload.
type NewBarEvent struct {
	Timeframe   Timeframe
	BucketStart time.Time
	Bar         Bar
}

// EnhancedTrade is the "enhanced" form attached to market_trade dispatch,
// per SPEC_FULL's supplemented feature grounded on project-x-py's
// _create_enhanced_quote_data.
type EnhancedTrade struct {
	Ts           time.Time
	Price        decimal.Decimal
	Size         uint64
	Side         TradeSide
	IsAggressive bool
}

// MarketTradeEvent pairs the raw vendor frame with its enhanced form.
type MarketTradeEvent struct {
	Raw      interface{}
	Enhanced EnhancedTrade
}

type subscription struct {
	id      string
	handler func(interface{})
}

// book is the pair of sides, guarded by Engine.bookMu. The order-type
// counters live in Engine.stats under the same lock.
type book struct {
	bid *BookSide
	ask *BookSide
}

// quoteState is C7's retained partial-frame state.
type quoteState struct {
	bid    decimal.Decimal
	haveBid bool
	ask    decimal.Decimal
	haveAsk bool
}

// Engine is the sole owner of all bar series, book sides, trade tape,
// and quote state for one instrument. It exposes exactly two locks,
// barsMu and bookMu, matching §5's concurrency model; no substructure
// (BarSeries, BookSide, TradeTape) locks itself — every mutation and
// every multi-structure snapshot goes through the Engine, which acquires
// barsMu before bookMu whenever both are needed, following the
// unlocked-internal-method pattern the teacher uses in its account
// engine (compute under lock, return a copy, unlock).
type Engine struct {
	cfg EngineConfig

	barsMu          sync.RWMutex
	series          map[string]*BarSeries // timeframe name -> series
	orderedTFs      []Timeframe
	lastBucketStart map[string]time.Time

	bookMu          sync.RWMutex
	book            book
	tape            *TradeTape
	quote           quoteState
	stats           OrderTypeStats
	lastDepthUpdate time.Time
	level2Enabled   bool
	icebergSamples  map[icebergKey][]icebergSample
	icebergVolume   map[Side]uint64

	subsMu sync.Mutex
	subs   map[Channel][]subscription

	executor func(func())

	errTracker *logging.ErrorTracker

	contractID string
	instrument Instrument

	state      lifecycleState
	stateMu    sync.Mutex
	transport  RealtimeTransport
	historical HistoricalDataSource
}

// EngineConfig is the construction-time configuration (§6).
type EngineConfig struct {
	Symbol           string
	Zone             *time.Location
	Timeframes       []string
	MaxBarsPerSeries int
	MaxLevelsPerSide int
	MaxTrades        int
	EnforceMinBarVolume bool
}

// NewEngine constructs an Engine for the given configuration. Unknown
// timeframe names fail construction with ErrInvalidTimeframe, per §6.
func NewEngine(cfg EngineConfig, historical HistoricalDataSource, errTracker *logging.ErrorTracker) (*Engine, error) {
	if cfg.MaxBarsPerSeries <= 0 {
		cfg.MaxBarsPerSeries = 1000
	}
	if cfg.MaxLevelsPerSide <= 0 {
		cfg.MaxLevelsPerSide = 100
	}
	if cfg.MaxTrades <= 0 {
		cfg.MaxTrades = 1000
	}
	if cfg.Zone == nil {
		cfg.Zone = time.UTC
	}

	e := &Engine{
		cfg:             cfg,
		series:          make(map[string]*BarSeries),
		lastBucketStart: make(map[string]time.Time),
		book:            book{bid: newBookSide(Bid, cfg.MaxLevelsPerSide), ask: newBookSide(Ask, cfg.MaxLevelsPerSide)},
		tape:            newTradeTape(cfg.MaxTrades),
		subs:            make(map[Channel][]subscription),
		errTracker:      errTracker,
		historical:      historical,
		state:           stateCreated,
		level2Enabled:   true,
		icebergSamples:  make(map[icebergKey][]icebergSample),
		icebergVolume:   make(map[Side]uint64),
	}

	for _, name := range cfg.Timeframes {
		tf, err := ParseTimeframeName(name)
		if err != nil {
			return nil, err
		}
		e.orderedTFs = append(e.orderedTFs, tf)
		e.series[tf.Name] = newBarSeries(tf, cfg.MaxBarsPerSeries, cfg.EnforceMinBarVolume)
	}

	return e, nil
}

// SetExecutor installs the async dispatch scheduler (§5); when unset,
// callbacks are invoked synchronously from the dispatching thread.
func (e *Engine) SetExecutor(executor func(func())) {
	e.executor = executor
}

// Subscribe registers handler on channel, invoked in registration order.
// Returns an unsubscribe handle.
func (e *Engine) Subscribe(channel Channel, handler func(interface{})) string {
	id := uuid.NewString()
	e.subsMu.Lock()
	e.subs[channel] = append(e.subs[channel], subscription{id: id, handler: handler})
	e.subsMu.Unlock()
	return id
}

// Unsubscribe removes a previously registered handler by its id.
func (e *Engine) Unsubscribe(channel Channel, id string) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	list := e.subs[channel]
	for i, s := range list {
		if s.id == id {
			e.subs[channel] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// dispatch invokes every subscriber on channel with payload, strictly
// after the mutating lock that produced payload has been released, in
// registration order. Subscriber panics are caught, logged, and counted
// — they never interrupt dispatch to later subscribers.
func (e *Engine) dispatch(channel Channel, payload interface{}) {
	e.subsMu.Lock()
	handlers := append([]subscription(nil), e.subs[channel]...)
	e.subsMu.Unlock()

	for _, s := range handlers {
		h := s.handler
		run := func() {
			defer func() {
				if r := recover(); r != nil {
					if e.errTracker != nil {
						e.errTracker.Note("CallbackError", fmt.Sprintf("channel=%s recovered=%v", channel, r))
					}
					monitoring.RecordCallbackError(e.cfg.Symbol, string(channel))
				}
			}()
			h(payload)
		}
		if e.executor != nil {
			e.executor(run)
		} else {
			run()
		}
	}
}

// Ingest implements C3: fan the normalized tick out to every configured
// timeframe's bar series atomically (one barsMu acquisition per tick),
// then dispatch data_update after release.
func (e *Engine) Ingest(tick NormalizedTick) {
	start := time.Now()
	var newBars []NewBarEvent

	e.barsMu.Lock()
	for _, tf := range e.orderedTFs {
		bucket := BucketStart(tick.Ts, tf, e.cfg.Zone)
		series := e.series[tf.Name]
		bar, isNew := series.appendOrUpdate(bucket, tick.Price, tick.Volume)
		e.lastBucketStart[tf.Name] = bucket
		if isNew {
			newBars = append(newBars, NewBarEvent{Timeframe: tf, BucketStart: bucket, Bar: bar})
		}
	}
	e.barsMu.Unlock()

	for _, ev := range newBars {
		monitoring.RecordBarGenerated(e.cfg.Symbol, ev.Timeframe.Name)
		e.dispatch(ChannelNewBar, ev)
	}
	e.dispatch(ChannelDataUpdate, DataUpdateEvent{Ts: tick.Ts, Price: tick.Price, Volume: tick.Volume})
	monitoring.RecordTickLatency(e.cfg.Symbol, float64(time.Since(start).Microseconds())/1000.0)
}

// appendTradeLocked appends a trade to the tape using the current
// top-of-book for side inference and returns the resulting event for the
// caller to dispatch once bookMu has been released, preserving commit
// order across dispatched events. Caller holds bookMu.
func (e *Engine) appendTradeLocked(price decimal.Decimal, volume uint64, ts time.Time) MarketTradeEvent {
	bestBid, haveBid := e.book.bid.best()
	bestAsk, haveAsk := e.book.ask.best()
	var bb, ba decimal.Decimal
	if haveBid {
		bb = bestBid.Price
	}
	if haveAsk {
		ba = bestAsk.Price
	}
	tr := e.tape.append(price, volume, ts, bb, ba, haveBid, haveAsk)

	enhanced := EnhancedTrade{
		Ts:           tr.Ts,
		Price:        tr.Price,
		Size:         tr.Volume,
		Side:         tr.Side,
		IsAggressive: tr.Side != SideUnknown,
	}
	return MarketTradeEvent{Raw: tr, Enhanced: enhanced}
}

// Level2Capabilities reports whether depth processing is currently on.
func (e *Engine) Level2Capabilities() bool {
	e.bookMu.RLock()
	defer e.bookMu.RUnlock()
	return e.level2Enabled
}

// SetLevel2Enabled toggles depth processing at runtime. When disabled,
// C6 still counts order_type_stats but does not mutate book sides.
func (e *Engine) SetLevel2Enabled(enabled bool) {
	e.bookMu.Lock()
	defer e.bookMu.Unlock()
	e.level2Enabled = enabled
}

// Compact trims every bar series to at most maxBars, independent of the
// automatic per-append eviction in C2.
func (e *Engine) Compact(maxBars int) {
	e.barsMu.Lock()
	defer e.barsMu.Unlock()
	for _, s := range e.series {
		if maxBars > 0 && len(s.bars) > maxBars {
			s.bars = s.bars[len(s.bars)-maxBars:]
		}
	}
}
