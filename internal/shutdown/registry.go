// Package shutdown ties an operating-system interrupt to every live
// connection and to the worker pool.
//
// A [Registry] collects one termination channel per accepted connection. A
// [Coordinator], constructed once at start-up and passed to whoever accepts
// connections, broadcasts [Terminate] to the registry, drains the pool, and
// exits the process. There is no package-level state: tests and commands
// build their own coordinator.
package shutdown

import "sync"

// ///////////////////////////////////////////////
// Signal
// ///////////////////////////////////////////////

// Signal is a control message delivered to a connection handler.
type Signal uint8

// Terminate asks a connection handler to shut its stream down and return.
const Terminate Signal = 1

// NewTermination returns a single-slot termination channel. Exactly one
// handler receives from it; the registry is its only sender and it is never
// closed.
func NewTermination() chan Signal {
	return make(chan Signal, 1)
}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Registry is the set of termination senders for connections accepted so
// far. Entries are appended on accept and never removed; once a connection
// has closed its entry is stale and a later broadcast to it is a harmless
// no-op.
type Registry struct {
	mu      sync.Mutex
	senders []chan<- Signal
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a connection's termination sender.
func (r *Registry) Register(tx chan<- Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders = append(r.senders, tx)
}

// Broadcast sends [Terminate] to every registered connection without
// blocking. A slot that already holds a pending signal is skipped. It returns
// the number of signals actually delivered.
func (r *Registry) Broadcast() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	sent := 0
	for _, tx := range r.senders {
		select {
		case tx <- Terminate:
			sent++
		default:
		}
	}
	return sent
}

// Len returns the number of registered connections, stale ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.senders)
}
