// Package distribute fans committed engine callback events out to other
// processes over Redis pub/sub, grounded on the teacher's
// datapipeline.QuoteDistributor. This is distribution, not persistence:
// nothing here is ever read back as authoritative state — the Engine
// remains the sole source of truth, honoring the persistence Non-goal.
package distribute

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/epic1st/marketcore/logging"
	"github.com/epic1st/marketcore/marketdata"
	"github.com/epic1st/marketcore/monitoring"
)

// Config configures a Fanout.
type Config struct {
	Symbol        string // label attached to fan-out published/dropped metrics
	Addr          string
	ChannelPrefix string // e.g. "marketcore" -> "marketcore.new_bar"
	BufferSize    int
}

// Fanout subscribes to an Engine's callback channels and republishes
// each event to a Redis channel named ChannelPrefix + "." + channel.
type Fanout struct {
	cfg    Config
	client *redis.Client

	queue     chan fanoutMessage
	published atomic.Int64
	dropped   atomic.Int64
}

type fanoutMessage struct {
	redisChannel string
	id           string
	payload      interface{}
}

// NewFanout constructs a Fanout dialing addr. BufferSize defaults to 1024.
func NewFanout(cfg Config) *Fanout {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1024
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "marketcore"
	}
	return &Fanout{
		cfg:    cfg,
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		queue:  make(chan fanoutMessage, cfg.BufferSize),
	}
}

// Ping verifies Redis connectivity at startup.
func (f *Fanout) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Attach subscribes this Fanout to every channel of engine; call it once.
// Events the engine dispatched before Attach are not forwarded.
func (f *Fanout) Attach(engine *marketdata.Engine) {
	for _, ch := range []marketdata.Channel{
		marketdata.ChannelDataUpdate,
		marketdata.ChannelNewBar,
		marketdata.ChannelMarketDepth,
		marketdata.ChannelQuoteUpdate,
		marketdata.ChannelMarketTrade,
	} {
		ch := ch
		engine.Subscribe(ch, func(payload interface{}) {
			f.enqueue(ch, payload)
		})
	}
}

// enqueue queues payload for publication, dropping it (and counting the
// drop) if the buffer is full rather than blocking the dispatching
// goroutine.
func (f *Fanout) enqueue(channel marketdata.Channel, payload interface{}) {
	msg := fanoutMessage{
		redisChannel: fmt.Sprintf("%s.%s", f.cfg.ChannelPrefix, channel),
		id:           uuid.NewString(),
		payload:      payload,
	}
	select {
	case f.queue <- msg:
	default:
		f.dropped.Add(1)
		monitoring.RecordFanoutDropped(f.cfg.Symbol)
		logging.Warn(fmt.Sprintf("fanout buffer full, dropping %s event", channel))
	}
}

// Run drains the publish queue until ctx is canceled. Call it in its own
// goroutine.
func (f *Fanout) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.queue:
			f.publish(ctx, msg)
		}
	}
}

func (f *Fanout) publish(ctx context.Context, msg fanoutMessage) {
	body, err := json.Marshal(struct {
		ID      string      `json:"id"`
		Payload interface{} `json:"payload"`
	}{ID: msg.id, Payload: msg.payload})
	if err != nil {
		logging.Warn(fmt.Sprintf("fanout marshal error: %s", err))
		return
	}

	if err := f.client.Publish(ctx, msg.redisChannel, body).Err(); err != nil {
		logging.Warn(fmt.Sprintf("fanout publish error: %s", err))
		return
	}
	f.published.Add(1)
	monitoring.RecordFanoutPublished(f.cfg.Symbol)
}

// Stats reports the published/dropped counters for health reporting.
func (f *Fanout) Stats() (published, dropped int64) {
	return f.published.Load(), f.dropped.Load()
}

// Close closes the underlying Redis client.
func (f *Fanout) Close() error {
	return f.client.Close()
}
