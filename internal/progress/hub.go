package progress

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub.
//   - SubscriberBuffer: channel size of each live subscriber (default 64).
//   - BufferSize: channel size of each sink's subscription (default 4096).
//   - MaxBatchEvents: most events handed to one Consume call (default 1000).
//   - MaxBatchWait: how often a partial batch is handed to a sink (default 500ms).
//   - SinkTimeout: deadline of one Consume call (default 10s).
//   - BaseContext: parent context for sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	SubscriberBuffer int
	BufferSize       int
	MaxBatchEvents   int
	MaxBatchWait     time.Duration
	SinkTimeout      time.Duration
	BaseContext      context.Context
	Logger           *zap.Logger
}

const (
	defaultSubscriberBuffer = 64
	defaultBufferSize       = 4096
	defaultMaxBatchEvents   = 1000
	defaultMaxBatchWait     = 500 * time.Millisecond
	defaultSinkTimeout      = 10 * time.Second
	dropLogInterval         = 5 * time.Second
)

// Hub is the one fan-out point for capture events. Every consumer is a
// Subscription. Live subscribers are pruned as soon as their buffer fills.
// Sinks hold durable subscriptions: a full buffer drops the event for that
// sink only, and a pump goroutine per sink drains its buffer in batches.
// Emit never blocks.
type Hub struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	sinks   []*Subscription
	nextSub uint64
	closed  atomic.Bool

	dropWarn rate.Sometimes
	pumps    sync.WaitGroup

	closeOnce sync.Once
	closeCtx  context.Context
	done      chan struct{}
}

// NewHub builds a Hub and starts one pump per sink. The returned Hub is
// immediately ready to accept events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:      cfg,
		logger:   logger,
		subs:     make(map[uint64]*Subscription),
		dropWarn: rate.Sometimes{Interval: dropLogInterval},
	}
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		sub := h.newSubscription(cfg.BufferSize)
		sub.sink = sink
		h.sinks = append(h.sinks, sub)
		h.pumps.Add(1)
		go h.pump(sub)
	}
	return h
}

// Emit hands evt to every subscriber and sink in emit order.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return
	}
	for id, sub := range h.subs {
		if !sub.offer(evt) {
			delete(h.subs, id)
			sub.shut()
			h.logger.Warn("pruned slow progress subscriber", zap.Uint64("subscriber", id))
		}
	}
	for _, sub := range h.sinks {
		if !sub.offer(evt) {
			sub.dropped.Add(1)
			h.dropWarn.Do(func() {
				h.logger.Warn("progress events dropped due to backpressure",
					zap.Uint64("sink", sub.id),
					zap.Int64("dropped", sub.dropped.Swap(0)),
				)
			})
		}
	}
}

// Close ends every subscription, lets the sink pumps deliver what they have
// buffered, and waits for them to exit. Repeated calls wait on the same
// shutdown.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closeCtx = ctx
		h.done = make(chan struct{})
		h.shutAll()
		go func() {
			h.pumps.Wait()
			close(h.done)
		}()
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) shutAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed.Store(true)
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.shut()
	}
	for _, sub := range h.sinks {
		sub.shut()
	}
	h.sinks = nil
}

// pump feeds one sink. A batch goes out when it reaches MaxBatchEvents or on
// the next tick; whatever is left is delivered before the sink is closed.
func (h *Hub) pump(sub *Subscription) {
	defer h.pumps.Done()
	tick := time.NewTicker(h.cfg.MaxBatchWait)
	defer tick.Stop()

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	for {
		select {
		case evt, ok := <-sub.ch:
			if !ok {
				h.consume(sub.sink, batch)
				h.closeSink(sub.sink)
				return
			}
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.consume(sub.sink, batch)
				batch = batch[:0]
			}
		case <-tick.C:
			h.consume(sub.sink, batch)
			batch = batch[:0]
		}
	}
}

func (h *Hub) consume(sink Sink, batch []Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
	defer cancel()
	if err := sink.Consume(ctx, slices.Clone(batch)); err != nil {
		h.logger.Warn("progress sink consume failed", zap.Error(err))
	}
}

func (h *Hub) closeSink(sink Sink) {
	if err := sink.Close(h.closeCtx); err != nil {
		h.logger.Warn("progress sink close failed", zap.Error(err))
	}
}
