// Package events carries in-process notifications between the decision
// pipeline and its observers (API stream, persistence, telemetry).
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system.
type EventType string

const (
	EventDecisionPublished EventType = "DECISION_PUBLISHED"
	EventDecisionDegraded  EventType = "DECISION_DEGRADED"
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
	EventWeightsUpdated    EventType = "WEIGHTS_UPDATED"
	EventMetricsUpdated    EventType = "METRICS_UPDATED"
	EventBarsIngested      EventType = "BARS_INGESTED"
	EventRunStarted        EventType = "RUN_STARTED"
	EventRunFailed         EventType = "RUN_FAILED"
	EventError             EventType = "ERROR"
)

// Event represents a system event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events.
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs in its
// own goroutine so a slow consumer cannot stall the pipeline.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishDecision publishes a completed decision cycle.
func (eb *EventBus) PublishDecision(decisionID, symbol, direction string, strength float64, degraded bool) {
	eventType := EventDecisionPublished
	if degraded {
		eventType = EventDecisionDegraded
	}
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"decision_id": decisionID,
			"symbol":      symbol,
			"direction":   direction,
			"strength":    strength,
		},
	})
}

// PublishSignal publishes a per-strategy signal.
func (eb *EventBus) PublishSignal(strategyID, symbol, direction string, strength float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"strategy":  strategyID,
			"symbol":    symbol,
			"direction": direction,
			"strength":  strength,
		},
	})
}

// PublishWeights publishes the strategy weight map chosen for a cycle.
func (eb *EventBus) PublishWeights(symbol string, weights map[string]float64) {
	data := map[string]interface{}{"symbol": symbol}
	for id, w := range weights {
		data["weight_"+id] = w
	}
	eb.Publish(Event{
		Type: EventWeightsUpdated,
		Data: data,
	})
}

// PublishMetricsUpdated publishes a refresh of one strategy's rolling metrics.
func (eb *EventBus) PublishMetricsUpdated(strategyID string, sharpe, winRate float64) {
	eb.Publish(Event{
		Type: EventMetricsUpdated,
		Data: map[string]interface{}{
			"strategy": strategyID,
			"sharpe":   sharpe,
			"win_rate": winRate,
		},
	})
}

// PublishBarsIngested publishes a market data ingest notification.
func (eb *EventBus) PublishBarsIngested(symbol string, count int) {
	eb.Publish(Event{
		Type: EventBarsIngested,
		Data: map[string]interface{}{
			"symbol": symbol,
			"count":  count,
		},
	})
}

// PublishRunStarted publishes the start of a scheduled decision run.
func (eb *EventBus) PublishRunStarted(symbols []string) {
	eb.Publish(Event{
		Type: EventRunStarted,
		Data: map[string]interface{}{
			"symbols": symbols,
		},
	})
}

// PublishRunFailed publishes a failed decision run for one symbol.
func (eb *EventBus) PublishRunFailed(symbol string, err error) {
	data := map[string]interface{}{"symbol": symbol}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventRunFailed,
		Data: data,
	})
}

// PublishError publishes a component error.
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
