// Package link runs a named JSON-RPC proxy link between a client and an agent.
//
// A link forwards every message it reads from one side to the other. Callers
// customise it through a Builder:
//
//   - OnNotification takes over agent notifications for one method; the
//     handler decides what, if anything, reaches the client.
//   - OnResponseTo runs a hook before the agent's response to a client request
//     of the given method is forwarded.
//   - BeforeForward runs for every other agent message just before it is
//     forwarded.
//   - Spawn starts a background task that lives exactly as long as the link.
//
// Messages from one side are dispatched sequentially in arrival order. The
// first error from any dispatch, send or task ends the link; EOF from either
// peer ends it cleanly.
//
// Usage:
//
//	err := link.NewBuilder("decaf").
//		OnNotification("session/update", handleUpdate).
//		Spawn(ticker).
//		Run(ctx, transport.Stdio(), agentProcess)
package link
