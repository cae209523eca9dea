// Package domain holds the typed vocabulary of the matchmaking core: user
// lifecycle states, pair statuses, votes, outcomes, and the pure rules that
// connect them. Nothing here touches storage.
package domain

// PresenceState is where a user sits in the queue → pair → vote lifecycle.
type PresenceState string

const (
	StateIdle    PresenceState = "idle"
	StateWaiting PresenceState = "waiting"
	StateMatched PresenceState = "matched"
	StateVoting  PresenceState = "voting"
)

func (s PresenceState) Valid() bool {
	switch s {
	case StateIdle, StateWaiting, StateMatched, StateVoting:
		return true
	}
	return false
}

// Paired reports whether the state requires partner and pair references.
func (s PresenceState) Paired() bool {
	return s == StateMatched || s == StateVoting
}

// PairStatus is the lifecycle of a Pair row.
type PairStatus string

const (
	PairPending   PairStatus = "pending"
	PairActive    PairStatus = "active"
	PairCompleted PairStatus = "completed"
	PairCancelled PairStatus = "cancelled"
)

func (s PairStatus) Valid() bool {
	switch s {
	case PairPending, PairActive, PairCompleted, PairCancelled:
		return true
	}
	return false
}

// Open reports whether the pair still holds its two users.
func (s PairStatus) Open() bool {
	return s == PairPending || s == PairActive
}

// Vote is one side's ballot. VoteNone means not cast (or timed out).
type Vote string

const (
	VoteNone    Vote = ""
	VoteAccept  Vote = "accept"
	VoteDecline Vote = "decline"
)

// ParseVote accepts only the two castable ballots.
func ParseVote(s string) (Vote, error) {
	switch Vote(s) {
	case VoteAccept, VoteDecline:
		return Vote(s), nil
	}
	return VoteNone, ErrInvalidVote
}

// CancelReason explains why a pair never reached an outcome.
type CancelReason string

const (
	CancelDisconnect CancelReason = "disconnect"
	CancelAckTimeout CancelReason = "ack_timeout"
	CancelLeft       CancelReason = "left"
)
