package marketdata

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/epic1st/marketcore/auth"
)

// lifecycleState is the controller's state, per §4.10.
type lifecycleState int

const (
	stateCreated lifecycleState = iota
	stateInitialized
	stateStreaming
	stateStopped
)

func (s lifecycleState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateInitialized:
		return "initialized"
	case stateStreaming:
		return "streaming"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	warmupMaxAttempts = 3
	warmupBackoff     = 2 * time.Second
)

// requiredWarmupDays scales the historical fetch window by timeframe
// granularity, per project-x-py's _calculate_required_days. Exposed as a
// seam a caller can use to pick initial_days sensibly for a mixed set of
// timeframes; initialize itself just uses max(1, initial_days).
func requiredWarmupDays(tf Timeframe, barsWanted int) int {
	var secondsPerBar int
	switch tf.Unit {
	case Second:
		secondsPerBar = tf.Interval
	case Minute:
		secondsPerBar = tf.Interval * 60
	case Hour:
		secondsPerBar = tf.Interval * 3600
	case Day:
		secondsPerBar = tf.Interval * 86400
	case Week:
		secondsPerBar = tf.Interval * 86400 * 7
	case Month:
		secondsPerBar = tf.Interval * 86400 * 30
	default:
		secondsPerBar = 60
	}
	days := (barsWanted * secondsPerBar) / 86400
	if days < 1 {
		days = 1
	}
	return days
}

// Initialize implements C10.initialize: for each timeframe, fetch
// historical bars with up to 3 retries (2s backoff), seed the series,
// and resolve the contract_id via get_instrument. Fetches across
// timeframes run concurrently (errgroup) but each series is only
// written to under barsMu, so readers never observe a partial warm-up
// across timeframes.
func (e *Engine) Initialize(ctx context.Context, initialDays int) error {
	e.stateMu.Lock()
	if e.state != stateCreated && e.state != stateStopped {
		e.stateMu.Unlock()
		return fmt.Errorf("initialize: invalid state %s", e.state)
	}
	e.stateMu.Unlock()

	if initialDays < 1 {
		initialDays = 1
	}

	instrument, err := e.historical.GetInstrument(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInstrumentNotFound, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]HistoricalBar, len(e.orderedTFs))

	for i, tf := range e.orderedTFs {
		i, tf := i, tf
		g.Go(func() error {
			bars, err := fetchWithRetry(gctx, e.historical, e.cfg.Symbol, initialDays, tf)
			if err != nil {
				return err
			}
			results[i] = bars
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %s", ErrHistoricalFetchFailed, err)
	}

	e.barsMu.Lock()
	for i, tf := range e.orderedTFs {
		series := e.series[tf.Name]
		for _, hb := range results[i] {
			ts := hb.Ts.In(e.cfg.Zone)
			bucket := BucketStart(ts, tf, e.cfg.Zone)
			if _, isNew := series.appendOrUpdate(bucket, hb.Close, hb.Volume); isNew {
				seeded := &series.bars[series.len()-1]
				seeded.Open, seeded.High, seeded.Low = hb.Open, hb.High, hb.Low
			}
			e.lastBucketStart[tf.Name] = bucket
		}
	}
	e.barsMu.Unlock()

	e.instrument = instrument
	e.contractID = instrument.ContractID

	e.stateMu.Lock()
	e.state = stateInitialized
	e.stateMu.Unlock()

	return nil
}

// fetchWithRetry calls GetBars up to warmupMaxAttempts times with
// warmupBackoff between attempts.
func fetchWithRetry(ctx context.Context, src HistoricalDataSource, symbol string, days int, tf Timeframe) ([]HistoricalBar, error) {
	var lastErr error
	for attempt := 0; attempt < warmupMaxAttempts; attempt++ {
		bars, err := src.GetBars(ctx, symbol, days, tf.Interval, tf.Unit)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		if attempt < warmupMaxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(warmupBackoff):
			}
		}
	}
	return nil, lastErr
}

// StartFeed implements C10.start_feed: validates token shape, installs
// depth/quote/trade callbacks on the transport, connects, and subscribes
// to contract_id. Fails fast on any error with no partial state change.
func (e *Engine) StartFeed(ctx context.Context, jwt string, transport RealtimeTransport) error {
	if err := auth.ValidateShape(jwt); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	transport.AddCallback(ChannelMarketDepth, func(raw interface{}) {
		if entries, ok := raw.([]DepthEntry); ok {
			e.applyDepthBatch(entries, time.Now().In(e.cfg.Zone))
		}
	})
	transport.AddCallback(ChannelQuoteUpdate, func(raw interface{}) {
		if frame, ok := raw.(QuoteFrame); ok {
			e.ProcessQuote(frame, time.Now().In(e.cfg.Zone), e.instrument.TickSize)
		}
	})
	transport.AddCallback(ChannelMarketTrade, func(raw interface{}) {
		if entries, ok := raw.([]DepthEntry); ok {
			e.applyDepthBatch(entries, time.Now().In(e.cfg.Zone))
		}
	})

	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrTransportError, err)
	}
	if err := transport.SubscribeMarketData(ctx, []string{e.contractID}); err != nil {
		return fmt.Errorf("%w: %s", ErrTransportError, err)
	}

	e.stateMu.Lock()
	e.transport = transport
	e.state = stateStreaming
	e.stateMu.Unlock()

	return nil
}

// StopFeed implements C10.stop_feed: idempotent, safe from any thread.
func (e *Engine) StopFeed() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.transport != nil {
		if err := e.transport.Disconnect(); err != nil {
			return fmt.Errorf("%w: %s", ErrTransportError, err)
		}
		e.transport = nil
	}
	e.state = stateStopped
	return nil
}

// staleBudget returns the per-timeframe staleness budget from §4.10:
// SECOND units get interval*4s, everything else interval*60s*1.2 + 180s.
func staleBudget(tf Timeframe) time.Duration {
	if tf.Unit == Second {
		return time.Duration(tf.Interval) * 4 * time.Second
	}
	base := float64(tf.Interval) * 60 * 1.2
	return time.Duration(base)*time.Second + 180*time.Second
}

// Health implements C10.health: true iff Streaming, every timeframe has
// at least one bar, and the last bar of every timeframe is within its
// staleness budget.
func (e *Engine) Health(now time.Time) bool {
	e.stateMu.Lock()
	streaming := e.state == stateStreaming
	e.stateMu.Unlock()
	if !streaming {
		return false
	}

	e.barsMu.RLock()
	defer e.barsMu.RUnlock()
	for _, tf := range e.orderedTFs {
		series := e.series[tf.Name]
		if series.len() == 0 {
			return false
		}
		last := series.bars[series.len()-1]
		budget := staleBudget(tf)
		if now.Sub(last.BucketStart) > budget {
			return false
		}
	}
	return true
}

// ForceRefresh implements C10.force_refresh: stop, clear state,
// re-initialize, and restart the feed with a freshly fetched token.
func (e *Engine) ForceRefresh(ctx context.Context, initialDays int, transport RealtimeTransport) error {
	if err := e.StopFeed(); err != nil {
		return err
	}

	e.barsMu.Lock()
	for _, s := range e.series {
		s.bars = nil
	}
	e.barsMu.Unlock()

	e.bookMu.Lock()
	e.book = book{bid: newBookSide(Bid, e.cfg.MaxLevelsPerSide), ask: newBookSide(Ask, e.cfg.MaxLevelsPerSide)}
	e.tape = newTradeTape(e.cfg.MaxTrades)
	e.quote = quoteState{}
	e.bookMu.Unlock()

	if err := e.Initialize(ctx, initialDays); err != nil {
		return err
	}

	token, err := e.historical.GetSessionToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTransportError, err)
	}

	return e.StartFeed(ctx, token, transport)
}
