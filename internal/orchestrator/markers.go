package orchestrator

import (
	"regexp"
	"strings"
)

// replyKind classifies a generated reply.
type replyKind int

const (
	replyAssert replyKind = iota
	replyComplete
	replyQuery
)

// reply is a parsed generation result.
type reply struct {
	kind replyKind

	// deliverable holds the completed work for replyComplete, or the full
	// reply text for replyAssert.
	deliverable string

	// target and question are set for replyQuery.
	target   string
	question string
}

var (
	completeMarker = regexp.MustCompile(`(?s)\[\[COMPLETE:\s*(.*?)\]\]`)
	queryMarker    = regexp.MustCompile(`(?s)\[\[QUERY:\s*([^|\]]+?)\s*\|\s*(.*?)\]\]`)
)

// parseReply interprets a generated reply. A COMPLETE marker wins over a
// QUERY marker when both appear; an unmarked reply is an assertion.
func parseReply(content string) reply {
	if m := completeMarker.FindStringSubmatch(content); m != nil {
		return reply{kind: replyComplete, deliverable: strings.TrimSpace(m[1])}
	}
	if m := queryMarker.FindStringSubmatch(content); m != nil {
		return reply{kind: replyQuery, target: strings.TrimSpace(m[1]), question: strings.TrimSpace(m[2])}
	}
	return reply{kind: replyAssert, deliverable: strings.TrimSpace(content)}
}
