// Package acp holds the slice of the Agent Client Protocol schema decaf
// inspects. Everything decaf does not inspect is kept as raw JSON so it can
// be forwarded byte-for-byte.
package acp

// SessionID identifies a conversation between a client and an agent.
type SessionID string

func (id SessionID) String() string {
	return string(id)
}

// JSON-RPC method names.
const (
	MethodInitialize        = "initialize"
	MethodSessionNew        = "session/new"
	MethodSessionLoad       = "session/load"
	MethodSessionPrompt     = "session/prompt"
	MethodSessionCancel     = "session/cancel"
	MethodSessionUpdate     = "session/update"
	MethodRequestPermission = "session/request_permission"
	MethodReadTextFile      = "fs/read_text_file"
	MethodWriteTextFile     = "fs/write_text_file"
)

// Values of the update's "sessionUpdate" discriminator.
const (
	UpdateUserMessageChunk  = "user_message_chunk"
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
	UpdateAvailableCommands = "available_commands_update"
	UpdateCurrentMode       = "current_mode_update"
)

// Values of a content block's "type" discriminator.
const (
	ContentText         = "text"
	ContentImage        = "image"
	ContentAudio        = "audio"
	ContentResourceLink = "resource_link"
	ContentResource     = "resource"
)

// Stop reasons carried by a session/prompt response.
const (
	StopEndTurn   = "end_turn"
	StopMaxTokens = "max_tokens"
	StopCancelled = "cancelled"
	StopRefusal   = "refusal"
)

// SessionUpdate is the tagged update variant inside a session/update
// notification. Only the discriminators and the text payload are decoded.
type SessionUpdate struct {
	Kind    string        `json:"sessionUpdate"`
	Content *ContentBlock `json:"content,omitempty"`
}

// ContentBlock is a content variant. Text is nil for non-text blocks.
type ContentBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text,omitempty"`
}

// PromptResponse is the result of a session/prompt request.
type PromptResponse struct {
	StopReason string `json:"stopReason"`
}
