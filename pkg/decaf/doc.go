// Package decaf coalesces streamed agent text.
//
// Agents often stream a reply one token or word at a time, each as its own
// session/update notification. decaf sits on a link between a client and an
// agent, buffers consecutive agent_message_chunk text per session and sends
// one merged chunk per flush. Buffers are flushed on a fixed interval, before
// any other update for the same session is forwarded, and before the agent's
// response to session/prompt reaches the client. All other traffic passes
// through unchanged.
package decaf
