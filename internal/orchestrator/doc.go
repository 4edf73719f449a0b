// Package orchestrator reacts to bus events to route work between agents.
//
// The orchestrator is a pure reactor: it holds no state beyond a pending
// task index and subscribes to bus events at construction time. Dispatch
// and handoff traffic triggers asynchronous generation calls whose replies
// are interpreted through inline markers ([[COMPLETE: ...]] and
// [[QUERY: target | question]]); anything a generation raises is converted
// into a BLOCKER publication instead of propagating, so one failing agent
// cannot crash the coordination loop. Blocked tasks escalate through the
// notify capability, and parent tasks aggregate their children's
// deliverables the moment the store reports the last child complete.
package orchestrator
