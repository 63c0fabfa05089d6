package marketdata

import "errors"

// Sentinel errors per the error taxonomy. Lifecycle and configuration
// calls return these (wrapped with context via fmt.Errorf("...: %w", ...));
// hot-path ingestion never returns an error to its caller — see Ingest in
// engine.go and depth.go, where malformed input is logged and counted instead.
var (
	ErrInvalidTimeframe     = errors.New("invalid timeframe")
	ErrUnknownTimeframe     = errors.New("unknown timeframe")
	ErrHistoricalFetchFailed = errors.New("historical fetch failed")
	ErrInstrumentNotFound   = errors.New("instrument not found")
	ErrInvalidToken         = errors.New("invalid session token")
	ErrTransportError       = errors.New("realtime transport error")
)
