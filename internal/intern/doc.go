// Package intern implements the bounded pool of ephemeral helper workers.
//
// An intern is a single generation call wrapped in an execution record: it
// acquires a slot from a fixed-size FIFO limiter, runs its typed role
// profile against the generation capability with bounded retry, and
// produces a costed deliverable. Records linger for a grace period after
// completion or failure so callers can inspect outcomes, then they are
// evicted.
//
// The slot limiter is the one place in the system with true bounded
// parallelism: at most MaxConcurrent interns are working at any instant,
// and the rest queue in arrival order. SpawnTeam fans out a batch of
// spawns, each still gated by the shared limiter, and settles every
// outcome independently.
package intern
