package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/muselink/muselink/internal/logger"
)

const recentEventLimit = 100

// EventBus defines the interface for the event bus system
type EventBus interface {
	// Publish publishes an event, blocking until it is accepted
	Publish(ctx context.Context, event Event) error

	// PublishAsync publishes an event without blocking; events are dropped
	// when the buffer is full
	PublishAsync(event Event) error

	// Subscribe registers a handler for events matching the filter
	Subscribe(filter EventFilter, handler EventHandler) *Subscription

	// Unsubscribe removes a subscription
	Unsubscribe(subscriptionID string) error

	// Recent returns the most recently published events, newest last
	Recent() []Event

	// Start starts the event bus
	Start(ctx context.Context) error

	// Stop stops the event bus gracefully
	Stop(ctx context.Context) error
}

type eventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	recentEvents  []Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewEventBus creates a new event bus with the given channel buffer size
func NewEventBus(bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &eventBus{
		subscriptions: make(map[string]*Subscription),
		eventChannel:  make(chan Event, bufferSize),
		recentEvents:  make([]Event, 0, recentEventLimit),
		stopCh:        make(chan struct{}),
	}
}

// Start starts the event bus
func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}

	eb.running = true
	eb.stopCh = make(chan struct{})

	eb.wg.Add(1)
	go eb.processEvents()

	return nil
}

// Stop stops the event bus gracefully
func (eb *eventBus) Stop(ctx context.Context) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	eb.mu.Unlock()

	close(eb.stopCh)

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish publishes an event, blocking until the bus accepts it
func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	if !eb.isRunning() {
		return fmt.Errorf("event bus is not running")
	}

	select {
	case eb.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-eb.stopCh:
		return fmt.Errorf("event bus is shutting down")
	}
}

// PublishAsync publishes an event without blocking
func (eb *eventBus) PublishAsync(event Event) error {
	if !eb.isRunning() {
		return fmt.Errorf("event bus is not running")
	}

	select {
	case eb.eventChannel <- event:
		return nil
	default:
		logger.Warn("event bus buffer full, dropping event", "type", event.Type)
		return fmt.Errorf("event bus buffer full")
	}
}

// Subscribe registers a handler for events matching the filter
func (eb *eventBus) Subscribe(filter EventFilter, handler EventHandler) *Subscription {
	sub := &Subscription{
		ID:      uuid.NewString(),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}

	eb.mu.Lock()
	eb.subscriptions[sub.ID] = sub
	eb.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscription
func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, ok := eb.subscriptions[subscriptionID]; !ok {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)
	return nil
}

// Recent returns the most recently published events, newest last
func (eb *eventBus) Recent() []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return append([]Event{}, eb.recentEvents...)
}

func (eb *eventBus) isRunning() bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.running
}

func (eb *eventBus) processEvents() {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.stopCh:
			// Drain anything already buffered before exiting.
			for {
				select {
				case event := <-eb.eventChannel:
					eb.dispatch(event)
				default:
					return
				}
			}
		case event := <-eb.eventChannel:
			eb.dispatch(event)
		}
	}
}

func (eb *eventBus) dispatch(event Event) {
	eb.mu.Lock()
	eb.recentEvents = append(eb.recentEvents, event)
	if len(eb.recentEvents) > recentEventLimit {
		eb.recentEvents = eb.recentEvents[len(eb.recentEvents)-recentEventLimit:]
	}
	subs := make([]*Subscription, 0, len(eb.subscriptions))
	for _, sub := range eb.subscriptions {
		subs = append(subs, sub)
	}
	eb.mu.Unlock()

	for _, sub := range subs {
		if !sub.Filter.Matches(event) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event handler panicked", "subscription", sub.ID, "panic", r)
				}
			}()
			sub.Handler(event)
		}()
	}
}
