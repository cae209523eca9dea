package domain

// Outcome is the resolved result of a completed pair.
type Outcome string

const (
	OutcomeMutualMatch    Outcome = "mutual_match"
	OutcomeAcceptDeclined Outcome = "accept_declined"
	OutcomeMutualDecline  Outcome = "mutual_decline"
	OutcomeAcceptTimeout  Outcome = "accept_timeout"
	OutcomeDeclineTimeout Outcome = "decline_timeout"
	OutcomeDoubleTimeout  Outcome = "double_timeout"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeMutualMatch, OutcomeAcceptDeclined, OutcomeMutualDecline,
		OutcomeAcceptTimeout, OutcomeDeclineTimeout, OutcomeDoubleTimeout:
		return true
	}
	return false
}

// Resolve maps two ballots to an outcome. Order does not matter and a
// VoteNone ballot counts as a timeout.
func Resolve(a, b Vote) Outcome {
	accepts, declines := 0, 0
	for _, v := range [2]Vote{a, b} {
		switch v {
		case VoteAccept:
			accepts++
		case VoteDecline:
			declines++
		}
	}

	switch {
	case accepts == 2:
		return OutcomeMutualMatch
	case accepts == 1 && declines == 1:
		return OutcomeAcceptDeclined
	case declines == 2:
		return OutcomeMutualDecline
	case accepts == 1:
		return OutcomeAcceptTimeout
	case declines == 1:
		return OutcomeDeclineTimeout
	default:
		return OutcomeDoubleTimeout
	}
}

// Effect is what happens to one user once the outcome is known.
type Effect struct {
	Requeue bool // back to waiting; otherwise idle
	Boost   bool // fairness credit for time lost to a partner who did not accept
}

// EffectFor returns the effect of o on a user who cast own.
//
//	mutual_match     both idle
//	accept_declined  both requeued, accepter boosted
//	mutual_decline   both requeued
//	accept_timeout   accepter requeued and boosted, non-voter idle
//	decline_timeout  both requeued
//	double_timeout   both idle
func (o Outcome) EffectFor(own Vote) Effect {
	switch o {
	case OutcomeAcceptDeclined:
		return Effect{Requeue: true, Boost: own == VoteAccept}
	case OutcomeMutualDecline, OutcomeDeclineTimeout:
		return Effect{Requeue: true}
	case OutcomeAcceptTimeout:
		if own == VoteAccept {
			return Effect{Requeue: true, Boost: true}
		}
	}
	return Effect{}
}
