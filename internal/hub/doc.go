// Package hub wires all coordination components together for a single
// coordination domain.
//
// The Hub creates and manages the complete message pipeline:
//
//	Bus → Persist → Store
//
// Plus event-driven actors:
//
//   - Orchestrator (routes dispatches, completions, and blockers)
//   - Consensus Engine (multi-round deliberation sessions)
//
// And execution infrastructure:
//
//   - Intern Pool (bounded concurrent generation with retry)
//   - Notifier (operator escalation for blockers)
//
// Usage:
//
//	h, err := hub.New(hub.Config{
//	    DataDir: dataDir,
//	    LLM:     llmConfig,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := h.Start(ctx); err != nil {
//	    return err
//	}
//	defer h.Stop()
//
//	// Use h.Store() for task operations and h.Consensus() for sessions.
package hub
