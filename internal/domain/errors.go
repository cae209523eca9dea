package domain

import "errors"

var (
	// ErrInvalidUser is returned for an empty user id.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrSelfPair is returned when both sides of a pair are the same user.
	ErrSelfPair = errors.New("a user cannot be paired with themselves")
	// ErrPairNotFound is returned when a pair id does not exist.
	ErrPairNotFound = errors.New("pair not found")
	// ErrInvalidVote is returned for a ballot other than accept/decline.
	ErrInvalidVote = errors.New("vote must be accept or decline")
	// ErrInvariant marks a write that would break a data-model invariant.
	// It is never expected at runtime; seeing it means a bug.
	ErrInvariant = errors.New("invariant violation")
)
