package domain

import "fmt"

// Side identifies one of the two seats of a pair.
type Side int

const (
	Side1 Side = 1
	Side2 Side = 2
)

// Other returns the opposite seat.
func (s Side) Other() Side {
	if s == Side1 {
		return Side2
	}
	return Side1
}

// PairKey is the canonical (User1 < User2) identity of two users.
// The zero value is not a valid key; build one with NewPairKey.
type PairKey struct {
	User1 string
	User2 string
}

// NewPairKey orders a and b lexicographically and rejects empty or
// identical ids. The same ordering fixes lock acquisition order.
func NewPairKey(a, b string) (PairKey, error) {
	if a == "" || b == "" {
		return PairKey{}, ErrInvalidUser
	}
	if a == b {
		return PairKey{}, fmt.Errorf("%w: %s", ErrSelfPair, a)
	}
	if b < a {
		a, b = b, a
	}
	return PairKey{User1: a, User2: b}, nil
}

// Side reports which seat user occupies.
func (k PairKey) Side(user string) (Side, bool) {
	switch user {
	case k.User1:
		return Side1, true
	case k.User2:
		return Side2, true
	}
	return 0, false
}

// Partner returns the other user of the pair.
func (k PairKey) Partner(user string) (string, bool) {
	switch user {
	case k.User1:
		return k.User2, true
	case k.User2:
		return k.User1, true
	}
	return "", false
}

// User returns the user in the given seat.
func (k PairKey) User(s Side) string {
	if s == Side1 {
		return k.User1
	}
	return k.User2
}

func (k PairKey) String() string { return k.User1 + "|" + k.User2 }
