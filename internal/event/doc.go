// Package event provides a pub-sub event bus for decoupled inter-component
// communication in quorum.
//
// All coordination traffic flows through the [Bus]: the store publishes task
// lifecycle and message events, the consensus engine publishes session
// events, and the orchestrator reacts to both. Components never call each
// other directly.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - task.created, task.status_changed, task.children_complete
//   - bus.message, plus one per message type (bus.dispatch, bus.handoff, ...)
//   - consensus.session_created, consensus.round_started, consensus.reached, ...
//   - intern.spawned, intern.completed, intern.failed
//
// Subscribers can match whole categories with [Bus.SubscribePattern], e.g.
// "consensus.*".
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called synchronously
// and protected against panics - a panicking handler will not prevent other
// handlers from being called.
package event
