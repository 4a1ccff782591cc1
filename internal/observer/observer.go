// Package observer implements the pipeline's one-way event fan-out: any
// number of subscribers may receive every Event, but subscribers never
// hold a reference back into the pipeline that emitted it.
package observer

import "sync"

// EventKind names one of the pipeline's observable moments.
type EventKind string

const (
	EventPathFound        EventKind = "path_found"
	EventProfitComputed   EventKind = "profit_computed"
	EventOracleRejected   EventKind = "oracle_rejected"
	EventRiskRejected     EventKind = "risk_rejected"
	EventFlashLoanSelected EventKind = "flash_loan_selected"
	EventBundleSimulated  EventKind = "bundle_simulated"
	EventDispatched       EventKind = "dispatched"
	EventDropped          EventKind = "dropped"
	EventCircuitBreaker   EventKind = "circuit_breaker"
	EventEmergencyStop    EventKind = "emergency_stop"
)

// Event is the single payload shape fanned out to every subscriber.
// Data is intentionally untyped: subscribers type-switch on Kind to
// recover the concrete payload, keeping this package free of a
// dependency on every other package's types.
type Event struct {
	Kind EventKind
	Data interface{}
}

// Observer is implemented by anything that wants a read-only view of
// pipeline events (metrics exporters, loggers, DB writers).
type Observer interface {
	OnEvent(Event)
}

// Bus fans one Event out to every registered Observer, synchronously and
// in registration order. A slow or panicking observer is the caller's
// problem to isolate (e.g. by wrapping it), not this package's.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers o to receive all future events.
func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish fans ev out to every current subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.observers {
		o.OnEvent(ev)
	}
}
