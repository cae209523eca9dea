package db

import (
	"time"

	"gorm.io/datatypes"

	"github.com/oggyb/speeddate/internal/domain"
)

// Profile holds a user's matching criteria.
// It is written by profile edits outside the matchmaking core and only read
// by the pairing engine.
type Profile struct {
	UserID        string                      `gorm:"primaryKey;size:64"`
	Gender        domain.Gender               `gorm:"size:16;not null"`
	DesiredGender domain.Gender               `gorm:"size:16;not null;default:any"`
	Age           int                         `gorm:"not null"`
	AgeMin        int                         `gorm:"not null;default:0"`
	AgeMax        int                         `gorm:"not null;default:0"`
	Regions       datatypes.JSONSlice[string] `gorm:"type:json"`
	CreatedAt     time.Time                   `gorm:"autoCreateTime"`
	UpdatedAt     time.Time                   `gorm:"autoUpdateTime"`
}

// Criteria converts the row into the engine's matching view.
func (p Profile) Criteria() domain.Criteria {
	return domain.Criteria{
		UserID:        p.UserID,
		Gender:        p.Gender,
		DesiredGender: p.DesiredGender,
		Age:           p.Age,
		AgeMin:        p.AgeMin,
		AgeMax:        p.AgeMax,
		Regions:       []string(p.Regions),
	}
}

// UserPresence is the one-row-per-user lifecycle record.
//
// Indexes:
//   - idx_presence_state_reachable(state, reachable_until)
//     Serves "reachable, waiting" scans for the queue snapshot and the sweep.
//
// Invariant: State matched/voting <=> PartnerID and PairID are non-nil.
// CarriedFairness is the credit a user brings into their next QueueEntry
// within the same session; it is reset when the user goes idle.
type UserPresence struct {
	UserID          string               `gorm:"primaryKey;size:64"`
	State           domain.PresenceState `gorm:"size:16;not null;default:idle;index:idx_presence_state_reachable,priority:1"`
	ReachableUntil  time.Time            `gorm:"not null;index:idx_presence_state_reachable,priority:2"`
	PartnerID       *string              `gorm:"size:64"`
	PairID          *string              `gorm:"size:36"`
	CarriedFairness int64                `gorm:"not null;default:0"`
	CreatedAt       time.Time            `gorm:"autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime"`
}

// QueueEntry is one waiting user. The primary key enforces at most one
// entry per user.
//
// Indexes:
//   - idx_queue_priority(fairness_score DESC, enqueued_at)
//     Matches the snapshot order: higher fairness first, then longest wait.
type QueueEntry struct {
	UserID        string    `gorm:"primaryKey;size:64"`
	FairnessScore int64     `gorm:"not null;default:0;index:idx_queue_priority,priority:1,sort:desc"`
	EnqueuedAt    time.Time `gorm:"not null;index:idx_queue_priority,priority:2"`
	RelaxStage    int       `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// Pair is a single pairing attempt between two users, kept forever.
//
// Invariants:
//   - User1ID < User2ID (canonical order, never equal)
//   - Outcome set iff Status = completed
//   - VoteExpiresAt set iff Status = active
//   - CancelReason set iff Status = cancelled
//
// Version is bumped on every write so concurrent votes and sweeps can
// detect that the row moved underneath them.
type Pair struct {
	ID            string               `gorm:"primaryKey;size:36"`
	User1ID       string               `gorm:"size:64;not null;index:idx_pairs_user1_created,priority:1"`
	User2ID       string               `gorm:"size:64;not null;index:idx_pairs_user2_created,priority:1"`
	Status        domain.PairStatus    `gorm:"size:16;not null;index:idx_pairs_status"`
	User1AckAt    *time.Time
	User2AckAt    *time.Time
	VoteExpiresAt *time.Time
	User1Vote     domain.Vote          `gorm:"size:16;not null"`
	User2Vote     domain.Vote          `gorm:"size:16;not null"`
	Outcome       *domain.Outcome      `gorm:"size:32"`
	CancelReason  *domain.CancelReason `gorm:"size:32"`
	Version       int64                `gorm:"not null;default:0"`
	ResolvedAt    *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_pairs_user1_created,priority:2;index:idx_pairs_user2_created,priority:2"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// Key returns the canonical identity of the pair.
func (p *Pair) Key() domain.PairKey {
	return domain.PairKey{User1: p.User1ID, User2: p.User2ID}
}

// AckAt returns the acknowledgment timestamp of a seat.
func (p *Pair) AckAt(s domain.Side) *time.Time {
	if s == domain.Side1 {
		return p.User1AckAt
	}
	return p.User2AckAt
}

// SetAck records the acknowledgment timestamp of a seat.
func (p *Pair) SetAck(s domain.Side, at time.Time) {
	if s == domain.Side1 {
		p.User1AckAt = &at
	} else {
		p.User2AckAt = &at
	}
}

// VoteOf returns the ballot of a seat.
func (p *Pair) VoteOf(s domain.Side) domain.Vote {
	if s == domain.Side1 {
		return p.User1Vote
	}
	return p.User2Vote
}

// SetVote records the ballot of a seat.
func (p *Pair) SetVote(s domain.Side, v domain.Vote) {
	if s == domain.Side1 {
		p.User1Vote = v
	} else {
		p.User2Vote = v
	}
}

// PairHistory is the append-only record of every two users ever paired,
// stored in canonical order so lookups are symmetric.
type PairHistory struct {
	UserA     string    `gorm:"primaryKey;size:64"`
	UserB     string    `gorm:"primaryKey;size:64;index:idx_history_user_b"`
	PairID    string    `gorm:"size:36;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Profile{}, &UserPresence{}, &QueueEntry{}, &Pair{}, &PairHistory{}}
}
