package matchmaking

import (
	"time"

	"github.com/oggyb/speeddate/internal/db"
	"github.com/oggyb/speeddate/internal/domain"
)

// PairingStatus is the caller-facing result of a pairing request.
type PairingStatus string

const (
	// PairingPaired means a new pair was created.
	PairingPaired PairingStatus = "paired"
	// PairingQueued means no pair was found; the user stays queued and
	// will be retried by later joins or the sweep.
	PairingQueued PairingStatus = "queued"
	// PairingConflict means the user is already in a pair.
	PairingConflict PairingStatus = "conflict"
)

type PairingResult struct {
	Status PairingStatus
	Pair   *db.Pair // set when Paired, and for Conflict when known
}

// AckStatus is the result of an acknowledgment.
type AckStatus string

const (
	AckRecorded     AckStatus = "recorded"      // waiting for the partner
	AckWindowOpened AckStatus = "window_opened" // both acknowledged, voting is open
	AckConflict     AckStatus = "conflict"      // not a participant, or pair already closed
)

type AckResult struct {
	Status        AckStatus
	VoteExpiresAt time.Time
	Reason        string
}

// VoteStatus is the result of a vote.
type VoteStatus string

const (
	VoteAwaitingPartner VoteStatus = "awaiting_partner"
	VoteResolved        VoteStatus = "resolved"
	VoteWindowExpired   VoteStatus = "window_expired"
	VoteConflict        VoteStatus = "conflict"
)

type VoteResult struct {
	Status  VoteStatus
	Outcome domain.Outcome
	Reason  string
}

// LeaveStatus is the result of leaving the queue or a pair.
type LeaveStatus string

const (
	LeaveNotQueued     LeaveStatus = "not_queued"
	LeaveDequeued      LeaveStatus = "dequeued"
	LeavePairCancelled LeaveStatus = "pair_cancelled"
	LeavePairResolved  LeaveStatus = "pair_resolved"
)

type LeaveResult struct {
	Status  LeaveStatus
	PairID  string
	Outcome domain.Outcome
}

// UserState is a read-only view of everything the core knows about a user.
type UserState struct {
	UserID    string
	State     domain.PresenceState
	Reachable bool
	Queue     *db.QueueEntry
	Pair      *db.Pair
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	StaleDequeued    int
	ExpiredResolved  int
	PendingCancelled int
	Aged             int64
	Relaxed          int64
	Paired           int
	Skipped          int // lock busy or state moved; retried next sweep
	Failures         int
}
