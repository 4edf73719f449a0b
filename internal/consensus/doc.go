// Package consensus implements multi-round voting sessions through which a
// fixed roster of agents jointly approves or iteratively revises a work
// product.
//
// # Session Lifecycle
//
// A session progresses through the states
//
//	initialized -> drafting -> voting -> {approved | deadlocked |
//	                                      discussing -> revising |
//	                                      revising}
//
// looping drafting -> voting on each new round. Approved and deadlocked are
// terminal. Each round has exactly one author: StartRound designates them,
// SubmitWork records their draft (counting as an automatic approving vote)
// and requests a review from every other roster member, and CastVote records
// the reviews. The instant every member has a recorded vote the round is
// tallied.
//
// Under the default unanimity policy a round with zero rejections is
// approved. In majority mode a strict majority of approvals is required; a
// tie does not approve. A rejected round either deadlocks the session (when
// the configured round limit is exhausted) or requests a revision, carrying
// the concatenated feedback of every rejecter. An optional discussion phase
// lets dissenters attach concrete change proposals before the revision
// request fires.
//
// # Usage
//
//	eng := consensus.NewEngine(bus, logger)
//	sess, _ := eng.CreateSession(taskID, []string{"a", "b"}, "Design the API", consensus.DefaultConfig())
//	eng.StartRound(sess.ID, "a")
//	eng.SubmitWork(sess.ID, "a", "draft1")
//	eng.CastVote(sess.ID, "b", false, "needs pagination", 70)
//	// consensus.revision_needed fires; the reacting capability drafts again.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Events are published after the
// engine's lock is released, so a bus handler may call back into the engine
// synchronously.
package consensus
