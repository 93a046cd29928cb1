package types

// State is a session lifecycle state
type State string

const (
	StateUnauth     State = "unauth"
	StateActive     State = "active"
	StateFinalizing State = "finalizing"
	StateClosed     State = "closed"
)

// AnonymousOwner is bound when media arrives before auth.
const AnonymousOwner = "anonymous"

// IsTerminal reports whether no further messages are processed.
func (s State) IsTerminal() bool {
	return s == StateClosed
}
