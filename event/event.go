// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	EventQueueSize = 20
	AsyncQueueSize = 100
)

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// asyncEvent wraps an event with its type for the async queue
type asyncEvent struct {
	eventType EventType
	event     Event
}

// EventBus is a simple in-memory publish/subscribe bus. Synchronous
// publishes block until every subscriber has taken delivery; asynchronous
// publishes are fire-and-forget with at-most-once delivery.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]chan Event
	metrics     *eventBusMetrics
	logger      *slog.Logger
	lastSubId   EventSubscriberId
	mu          sync.RWMutex

	asyncQueue chan asyncEvent
	asyncDone  sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once
}

type eventBusMetrics struct {
	eventsTotal   *prometheus.CounterVec
	subscribers   *prometheus.GaugeVec
	droppedEvents *prometheus.CounterVec
}

// NewEventBus creates a new EventBus with a single async delivery worker
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]chan Event),
		logger:      logger,
		asyncQueue:  make(chan asyncEvent, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		promautoFactory := promauto.With(promRegistry)
		e.metrics = &eventBusMetrics{
			eventsTotal: promautoFactory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "steward_eventbus_events_total",
					Help: "total events published per event type",
				},
				[]string{"type"},
			),
			subscribers: promautoFactory.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "steward_eventbus_subscribers",
					Help: "current subscriber count per event type",
				},
				[]string{"type"},
			),
			droppedEvents: promautoFactory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "steward_eventbus_dropped_events_total",
					Help: "async events dropped due to a full queue",
				},
				[]string{"type"},
			),
		}
	}
	e.asyncDone.Add(1)
	go e.asyncWorker()
	return e
}

func (e *EventBus) asyncWorker() {
	defer e.asyncDone.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case ae, ok := <-e.asyncQueue:
			if !ok {
				return
			}
			e.Publish(ae.eventType, ae.event)
		}
	}
}

// Subscribe allows a consumer to receive events of a particular type via a channel
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]chan Event)
	}
	evtCh := make(chan Event, EventQueueSize)
	e.subscribers[eventType][subId] = evtCh
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, evtCh
}

// SubscribeFunc allows a consumer to receive events of a particular type via a callback function
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	go func() {
		for {
			evt, ok := <-evtCh
			if !ok {
				return
			}
			handlerFunc(evt)
		}
	}()
	return subId
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	evtTypeSubs, ok := e.subscribers[eventType]
	if !ok {
		return
	}
	evtCh, ok := evtTypeSubs[subId]
	if !ok {
		return
	}
	delete(evtTypeSubs, subId)
	if len(evtTypeSubs) == 0 {
		delete(e.subscribers, eventType)
	}
	close(evtCh)
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
	}
}

// Publish allows a producer to send an event of a particular type to all subscribers
func (e *EventBus) Publish(eventType EventType, evt Event) {
	// Gather channels inside the read lock to avoid racing map mutation
	e.mu.RLock()
	evtChans := make([]chan Event, 0, len(e.subscribers[eventType]))
	for _, evtCh := range e.subscribers[eventType] {
		evtChans = append(evtChans, evtCh)
	}
	e.mu.RUnlock()
	for _, evtCh := range evtChans {
		e.deliver(evtCh, evt)
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// deliver sends an event on a single subscriber channel. A send may race an
// Unsubscribe/Stop closing the channel, in which case the event is dropped.
func (e *EventBus) deliver(evtCh chan Event, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Debug(
					"event delivery to closed subscriber",
					"type", evt.Type,
				)
			}
		}
	}()
	evtCh <- evt
}

// PublishAsync enqueues an event for asynchronous delivery to all
// subscribers and returns immediately. Delivery is at-most-once: the event
// is dropped if the bus is stopped or the async queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	select {
	case <-e.stopCh:
		return false
	default:
	}
	select {
	case e.asyncQueue <- asyncEvent{eventType: eventType, event: evt}:
		return true
	default:
		if e.logger != nil {
			e.logger.Warn(
				"async event queue full, dropping event",
				"type", eventType,
			)
		}
		if e.metrics != nil {
			e.metrics.droppedEvents.WithLabelValues(string(eventType)).Inc()
		}
		return false
	}
}

// Stop shuts down the async worker and closes all subscriber channels.
// Stop is idempotent.
func (e *EventBus) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.asyncDone.Wait()
		e.mu.Lock()
		defer e.mu.Unlock()
		for eventType, evtTypeSubs := range e.subscribers {
			for _, evtCh := range evtTypeSubs {
				close(evtCh)
			}
			delete(e.subscribers, eventType)
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType)).
					Set(0)
			}
		}
	})
}
