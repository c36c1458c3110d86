package events

import (
	"context"
	"log/slog"
	"sync"

	"secops-orchestrator/core/models"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the per-subscriber channel buffer
	DefaultBufferSize = 64
	// DefaultHistorySize is how many recent alerts are kept for the dashboard
	DefaultHistorySize = 100
)

// DropObserver is notified whenever an event is discarded for a slow subscriber
type DropObserver func(subID string)

// Subscription is one observer's live feed of alerts.
// When the buffer is full the oldest buffered alert is dropped to make room,
// so a slow reader loses history but never blocks publication.
type Subscription struct {
	ID string

	mu      sync.Mutex
	ch      chan models.AlertEvent
	done    chan struct{} // closed together with ch
	closed  bool
	dropped uint64
}

// Events returns the receive side of the feed. It is closed on unsubscribe.
func (s *Subscription) Events() <-chan models.AlertEvent {
	return s.ch
}

// Dropped returns how many alerts were discarded for this subscriber
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// offer enqueues ev, evicting the oldest buffered alert on overflow.
// Returns false if an alert had to be dropped.
func (s *Subscription) offer(ev models.AlertEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	delivered := true
	for {
		select {
		case s.ch <- ev:
			return delivered
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
			delivered = false
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
		close(s.done)
	}
}

// Publisher fans alerts out to every current subscriber
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	bufferSize  int
	closed      bool

	historyMu   sync.Mutex
	history     []models.AlertEvent // ring buffer
	historyNext int
	historyLen  int

	onDrop DropObserver
	logger *slog.Logger
}

// Option configures a Publisher
type Option func(*Publisher)

// WithBufferSize sets the per-subscriber buffer
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.bufferSize = n
		}
	}
}

// WithHistorySize sets how many recent alerts Recent can return
func WithHistorySize(n int) Option {
	return func(p *Publisher) {
		if n >= 0 {
			p.history = make([]models.AlertEvent, n)
		}
	}
}

// WithDropObserver registers a callback for dropped alerts
func WithDropObserver(fn DropObserver) Option {
	return func(p *Publisher) { p.onDrop = fn }
}

// NewPublisher creates a publisher. Pass nil logger for default.
func NewPublisher(logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		subscribers: make(map[string]*Subscription),
		bufferSize:  DefaultBufferSize,
		history:     make([]models.AlertEvent, DefaultHistorySize),
		logger:      logger.With("component", "publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a new observer. The subscription is removed when ctx
// is cancelled or Unsubscribe is called.
func (p *Publisher) Subscribe(ctx context.Context) *Subscription {
	sub := &Subscription{
		ID:   uuid.New().String(),
		ch:   make(chan models.AlertEvent, p.bufferSize),
		done: make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		sub.close()
		return sub
	}
	p.subscribers[sub.ID] = sub
	p.mu.Unlock()

	p.logger.Debug("subscriber added", "sub_id", sub.ID)

	go func() {
		select {
		case <-ctx.Done():
			p.Unsubscribe(sub.ID)
		case <-sub.done:
		}
	}()

	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (p *Publisher) Unsubscribe(subID string) {
	p.mu.Lock()
	sub, ok := p.subscribers[subID]
	if ok {
		delete(p.subscribers, subID)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	sub.close()
	p.logger.Debug("subscriber removed", "sub_id", subID, "dropped", sub.Dropped())
}

// Publish delivers ev to every subscriber without blocking on any of them
func (p *Publisher) Publish(ev models.AlertEvent) {
	p.remember(ev)

	p.mu.RLock()
	targets := make([]*Subscription, 0, len(p.subscribers))
	for _, sub := range p.subscribers {
		targets = append(targets, sub)
	}
	p.mu.RUnlock()

	for _, sub := range targets {
		if !sub.offer(ev) {
			p.logger.Debug("dropped oldest alert for slow subscriber", "sub_id", sub.ID, "job_id", ev.JobID)
			if p.onDrop != nil {
				p.onDrop(sub.ID)
			}
		}
	}
}

func (p *Publisher) remember(ev models.AlertEvent) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	if len(p.history) == 0 {
		return
	}
	p.history[p.historyNext] = ev
	p.historyNext = (p.historyNext + 1) % len(p.history)
	if p.historyLen < len(p.history) {
		p.historyLen++
	}
}

// Recent returns up to n of the latest alerts, newest first (n <= 0 means all kept)
func (p *Publisher) Recent(n int) []models.AlertEvent {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	if n <= 0 || n > p.historyLen {
		n = p.historyLen
	}
	out := make([]models.AlertEvent, 0, n)
	for i := 1; i <= n; i++ {
		idx := (p.historyNext - i + len(p.history)) % len(p.history)
		out = append(out, p.history[idx])
	}
	return out
}

// SubscriberCount returns the number of live subscriptions
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

// Close closes every subscription; later subscriptions are closed immediately
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	subs := p.subscribers
	p.subscribers = make(map[string]*Subscription)
	p.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	p.logger.Debug("publisher closed")
}
