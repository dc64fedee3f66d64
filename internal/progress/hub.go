package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub. Zero values pick the
// defaults noted per field.
type Config struct {
	// BufferSize is the capacity of the event channel (4096).
	BufferSize int
	// MaxBatchEvents flushes once this many events are pending (1000).
	MaxBatchEvents int
	// MaxBatchWait bounds how long the first event of a batch waits (500ms).
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call (10s).
	SinkTimeout time.Duration
	// BaseContext is the parent of every sink call (context.Background()).
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub batches crawl events and fans them out to sinks on a background
// goroutine. Emit never blocks. When the buffer is full, FETCH_DONE and
// TARGET_FAILED events are dropped while run lifecycle and CONTENT_CHANGED
// events spill into an overflow lane. Until that lane is drained every
// retained event goes through it and droppable ones are dropped, so retained
// events from one emitter are delivered in emission order.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	dropLog rate.Sometimes

	mu       sync.Mutex
	overflow []Event

	accepted   atomic.Int64
	dropped    atomic.Int64
	overflowed atomic.Int64
	sinkErrors atomic.Int64
	closed     atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine for sinks and returns a ready Hub.
func NewHub(cfg Config, sinks ...Sink) *Hub {
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
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit enqueues evt for delivery. Invalid events and events emitted after
// Close are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	h.mu.Lock()
	if len(h.overflow) == 0 {
		select {
		case h.events <- evt:
			h.mu.Unlock()
			h.accepted.Add(1)
			return
		default:
		}
	}
	// While the overflow lane holds events, retained events queue behind
	// them so a single emitter's order survives.
	if evt.Stage.retained() {
		h.overflow = append(h.overflow, evt)
		h.mu.Unlock()
		h.accepted.Add(1)
		h.overflowed.Add(1)
		select {
		case h.wake <- struct{}{}:
		default:
		}
		return
	}
	h.mu.Unlock()
	total := h.dropped.Add(1)
	h.dropLog.Do(func() {
		h.logger.Warn("events dropped due to backpressure",
			zap.Int64("dropped_total", total),
			zap.String("stage", string(evt.Stage)),
		)
	})
}

// Stats reports delivery counters since the hub started.
type Stats struct {
	Accepted   int64
	Dropped    int64
	Overflowed int64
	SinkErrors int64
}

// Stats returns a snapshot of the hub's delivery counters.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{
		Accepted:   h.accepted.Load(),
		Dropped:    h.dropped.Load(),
		Overflowed: h.overflowed.Load(),
		SinkErrors: h.sinkErrors.Load(),
	}
}

// Close delivers every pending event, closes the sinks, and waits for the
// background goroutine. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	var (
		deadline  *time.Timer
		deadlineC <-chan time.Time
	)
	flush := func() {
		if deadline != nil {
			deadline.Stop()
			deadline, deadlineC = nil, nil
		}
		h.deliver(batch)
		batch = batch[:0]
	}
	add := func(evts ...Event) {
		for _, evt := range evts {
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				flush()
			}
		}
		if len(batch) > 0 && deadline == nil {
			deadline = time.NewTimer(h.cfg.MaxBatchWait)
			deadlineC = deadline.C
		}
	}

	for {
		select {
		case evt := <-h.events:
			add(evt)
		case <-h.wake:
			add(h.drain()...)
		case <-deadlineC:
			flush()
		case <-h.stopCh:
			add(h.drain()...)
			if len(batch) > 0 {
				flush()
			}
			h.closeSinks()
			return
		}
	}
}

// drain empties the channel and then the overflow lane. Holding mu keeps
// Emit from refilling the channel in between, so every channel event
// precedes every overflowed one.
func (h *Hub) drain() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for {
		select {
		case evt := <-h.events:
			out = append(out, evt)
		default:
			out = append(out, h.overflow...)
			h.overflow = nil
			return out
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	snapshot := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		err := sink.Consume(ctx, snapshot)
		cancel()
		if err != nil {
			h.sinkErrors.Add(1)
			h.logger.Warn("event sink consume failed", zap.Int("batch", len(snapshot)), zap.Error(err))
		}
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("event sink close failed", zap.Error(err))
		}
	}
}
