package decaf

import "github.com/harun/decaf/pkg/acp"

// Class says what to do with a session update.
type Class int

const (
	// ClassBoundary updates flush the session's buffer and are forwarded.
	ClassBoundary Class = iota
	// ClassAccumulate updates are buffered.
	ClassAccumulate
)

func (c Class) String() string {
	if c == ClassAccumulate {
		return "accumulate"
	}
	return "boundary"
}

// Classify returns ClassAccumulate for agent message chunks with text
// content and ClassBoundary for everything else.
func Classify(n acp.SessionNotification) Class {
	if n.IsTextChunk() {
		return ClassAccumulate
	}
	return ClassBoundary
}
