// Package store owns the canonical record of every unit of coordinated work.
//
// The [Store] keeps a memory-fast index of live task contexts in front of a
// durable persistence layer (see the persist package). All mutation flows
// through bus operations (Dispatch, Assert, Query, Complete, ...): each
// appends a typed message to the task's log, writes through to the durable
// layer, and publishes both a generic bus.message event and a type-specific
// event on the event bus.
//
// Durable-layer failures never abort an in-memory write: the store logs the
// error and degrades to memory-only operation.
//
// Terminal contexts older than a configurable age can be archived out of the
// hot index; reads rehydrate them from the durable layer through an LRU
// cache, with singleflight collapsing concurrent rehydrations of the same
// task.
package store
