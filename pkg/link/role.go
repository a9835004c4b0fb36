package link

// Role names one side of a link.
type Role int

const (
	// RoleClient is the editor side; decaf's downstream consumer.
	RoleClient Role = iota
	// RoleAgent is the agent side; decaf's upstream producer.
	RoleAgent
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// Peer returns the opposite side.
func (r Role) Peer() Role {
	if r == RoleClient {
		return RoleAgent
	}
	return RoleClient
}
