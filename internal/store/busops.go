package store

import (
	"time"

	"quorum/internal/errors"
	"quorum/internal/event"
	"quorum/internal/task"
)

// Dispatch assigns instructions to a named agent on the task.
func (s *Store) Dispatch(agentID, taskID, targetAgent, instructions string) (task.Message, error) {
	return s.append(agentID, taskID, task.DispatchBody{AgentID: targetAgent, Instructions: instructions})
}

// Assert shares a statement on the task.
func (s *Store) Assert(agentID, taskID, statement string) (task.Message, error) {
	return s.append(agentID, taskID, task.AssertBody{Statement: statement})
}

// Query asks a target agent a question. The returned message carries the
// timestamp a later Ack must reference.
func (s *Store) Query(agentID, taskID, target, question string) (task.Message, error) {
	return s.append(agentID, taskID, task.QueryBody{Target: target, Question: question})
}

// Validate asks a target agent to confirm a claim.
func (s *Store) Validate(agentID, taskID, target, claim string) (task.Message, error) {
	return s.append(agentID, taskID, task.ValidateBody{Target: target, Claim: claim})
}

// Correct points a target agent at an error. Requires acknowledgment.
func (s *Store) Correct(agentID, taskID, target, correction string) (task.Message, error) {
	return s.append(agentID, taskID, task.CorrectBody{Target: target, Correction: correction})
}

// Handoff transfers responsibility for the task to another agent.
func (s *Store) Handoff(agentID, taskID, toAgent, instructions string) (task.Message, error) {
	return s.append(agentID, taskID, task.HandoffBody{ToAgent: toAgent, Instructions: instructions})
}

// Blocker signals the agent cannot proceed. The orchestrator reacts by
// escalating through the notify capability.
func (s *Store) Blocker(agentID, taskID, reason string) (task.Message, error) {
	return s.append(agentID, taskID, task.BlockerBody{Reason: reason})
}

// SpawnHelper requests an ephemeral helper worker for the task.
func (s *Store) SpawnHelper(agentID, taskID, helperType, taskDesc string) (task.Message, error) {
	return s.append(agentID, taskID, task.SpawnHelperBody{HelperType: helperType, Task: taskDesc})
}

// Propose records a consensus work-product submission on the task log so
// the deliberation trail survives alongside the rest of the history.
func (s *Store) Propose(agentID, taskID, sessionID string, round int, workProduct string) (task.Message, error) {
	return s.append(agentID, taskID, task.ProposeBody{SessionID: sessionID, Round: round, WorkProduct: workProduct})
}

// Vote records a consensus vote on the task log.
func (s *Store) Vote(agentID, taskID, sessionID string, round int, approved bool, confidence int, feedback string) (task.Message, error) {
	return s.append(agentID, taskID, task.VoteBody{SessionID: sessionID, Round: round, Approved: approved, Confidence: confidence, Feedback: feedback})
}

// Revise records a revision request with the rejecters' aggregated feedback.
func (s *Store) Revise(agentID, taskID, sessionID string, round int, feedback string) (task.Message, error) {
	return s.append(agentID, taskID, task.ReviseBody{SessionID: sessionID, Round: round, Feedback: feedback})
}

// Knowledge records a non-critical annotation. Unlike every other bus
// operation it fails silently when the task is unknown.
func (s *Store) Knowledge(agentID, taskID, fact string) {
	if _, err := s.append(agentID, taskID, task.KnowledgeBody{Fact: fact}); err != nil {
		s.logger.Debug("knowledge annotation dropped", "task_id", taskID, "error", err)
	}
}

// Ack acknowledges the message with the given timestamp, flipping its Acked
// flag (the single permitted in-place message mutation) and appending an ACK
// message to the log.
func (s *Store) Ack(agentID, taskID string, ackedTimestamp time.Time, note string) (task.Message, error) {
	s.mu.Lock()
	ctx := s.lookupForUpdate(taskID)
	if ctx == nil {
		s.mu.Unlock()
		return task.Message{}, errors.NewNotFoundError("task", taskID)
	}

	found := false
	for i := range ctx.Messages {
		if ctx.Messages[i].RequiresAck && ctx.Messages[i].Timestamp.Equal(ackedTimestamp) {
			ctx.Messages[i].Acked = true
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return task.Message{}, errors.NewNotFoundError("message", ackedTimestamp.Format(time.RFC3339Nano))
	}

	if err := s.durable.RewriteMessages(taskID, ctx.Messages); err != nil {
		s.logger.Warn("durable ack rewrite failed; continuing memory-only",
			"task_id", taskID, "error", err)
	}

	msg := task.NewMessage(agentID, taskID, ctx.ContextHash, task.AckBody{
		Target:          agentID,
		AckedTimestamp:  ackedTimestamp,
		Acknowledgement: note,
	})
	ctx.Messages = append(ctx.Messages, msg)
	ctx.UpdatedAt = msg.Timestamp
	s.persistMessage(taskID, msg)
	s.mu.Unlock()

	s.publishMessage(msg)
	return msg, nil
}

// Complete marks the task finished with its deliverable. If the task has a
// parent, the parent's completion counter is incremented and the deliverable
// collected; on the transition where the last child completes, a single
// task.children_complete event fires with the full deliverable set.
func (s *Store) Complete(agentID, taskID, deliverable string) (task.Message, error) {
	s.mu.Lock()
	ctx := s.lookupForUpdate(taskID)
	if ctx == nil {
		s.mu.Unlock()
		return task.Message{}, errors.NewNotFoundError("task", taskID)
	}

	msg := task.NewMessage(agentID, taskID, ctx.ContextHash, task.CompleteBody{Deliverable: deliverable})
	ctx.Messages = append(ctx.Messages, msg)
	ctx.UpdatedAt = msg.Timestamp
	s.persistMessage(taskID, msg)

	events := []event.Event{
		event.NewBusMessageEvent(msg),
		event.NewTypedMessageEvent(msg),
	}

	// Parent accounting happens only on the first completion, so a repeated
	// COMPLETE cannot double-count a child.
	firstCompletion := !ctx.Status.Terminal()
	if firstCompletion {
		old := ctx.Status
		ctx.Status = task.StatusCompleted
		s.persistContext(ctx)
		s.persistCompleted(taskID)
		events = append(events, event.NewTaskStatusChangedEvent(taskID, old, task.StatusCompleted))
	}

	if firstCompletion && ctx.ParentID != "" {
		if parent := s.lookupForUpdate(ctx.ParentID); parent != nil {
			if parent.ChildrenComplete < len(parent.ChildIDs) {
				parent.ChildrenComplete++
			}
			parent.Deliverables = append(parent.Deliverables, task.Deliverable{
				TaskID:  taskID,
				AgentID: agentID,
				Content: deliverable,
			})
			parent.UpdatedAt = time.Now()

			// The aggregate fires on the single transition where the last
			// registered child completes. The persisted flag keeps children
			// registered after that transition from re-firing it.
			if parent.AllChildrenComplete() && !parent.Aggregated {
				parent.Aggregated = true
				deliverables := append([]task.Deliverable(nil), parent.Deliverables...)
				events = append(events, event.NewChildrenCompleteEvent(parent.ID, deliverables))
			}
			s.persistContext(parent)
		} else {
			s.logger.Warn("parent task missing during completion",
				"task_id", taskID, "parent_id", ctx.ParentID)
		}
	}
	s.mu.Unlock()

	s.logger.Info("task completed", "task_id", taskID, "agent_id", agentID)
	for _, e := range events {
		s.bus.Publish(e)
	}
	return msg, nil
}

// append is the common path for bus operations: it appends a typed message
// to the task's log (memory and durable) and publishes the generic and
// type-specific events.
func (s *Store) append(agentID, taskID string, body task.Body) (task.Message, error) {
	s.mu.Lock()
	ctx := s.lookupForUpdate(taskID)
	if ctx == nil {
		s.mu.Unlock()
		return task.Message{}, errors.NewNotFoundError("task", taskID)
	}

	msg := task.NewMessage(agentID, taskID, ctx.ContextHash, body)
	ctx.Messages = append(ctx.Messages, msg)
	ctx.UpdatedAt = msg.Timestamp
	s.persistMessage(taskID, msg)
	s.mu.Unlock()

	s.publishMessage(msg)
	return msg, nil
}

func (s *Store) publishMessage(msg task.Message) {
	s.bus.Publish(event.NewBusMessageEvent(msg))
	s.bus.Publish(event.NewTypedMessageEvent(msg))
}
