// Package session tracks who is signed in to the shop and keeps the bearer
// token in a TokenStore between runs.
package session

// Status is the authentication state. The zero value is StatusChecking.
type Status int

const (
	// StatusChecking: a stored token may exist but has not been verified.
	StatusChecking Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusChecking:
		return "checking"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "not-authenticated"
	}
	return "unknown"
}

// Outcome is what an auth exchange produced.
type Outcome int

const (
	OutcomeSignedIn Outcome = iota + 1
	OutcomeRejected
	OutcomeSignedOut
)

// Transition is the only way a Manager changes status.
func Transition(_ Status, o Outcome) Status {
	if o == OutcomeSignedIn {
		return StatusAuthenticated
	}
	return StatusUnauthenticated
}
