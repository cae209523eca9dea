package domain

// Gender is a declared gender or, for preferences, GenderAny.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
	GenderAny    Gender = "any"
)

// Criteria is one user's matching profile.
// AgeMin/AgeMax of zero leave that bound open. Empty Regions means any.
type Criteria struct {
	UserID        string
	Gender        Gender
	DesiredGender Gender
	Age           int
	AgeMin        int
	AgeMax        int
	Regions       []string
}

// StrictStage is the relaxation stage at which every criterion applies.
const StrictStage = 0

// Compatible reports whether a and b accept each other at the given
// relaxation stage. Stage 0 also requires region overlap; stage >= 1 drops
// it. Pair history is checked by the caller.
func Compatible(a, b Criteria, stage int) bool {
	if !a.wantsGender(b.Gender) || !b.wantsGender(a.Gender) {
		return false
	}
	if !a.acceptsAge(b.Age) || !b.acceptsAge(a.Age) {
		return false
	}
	if stage <= StrictStage && !regionsOverlap(a.Regions, b.Regions) {
		return false
	}
	return true
}

// EffectiveStage is the stage two users are compared at: a criterion is
// only loosened once both sides have waited long enough to loosen it.
func EffectiveStage(a, b int) int {
	return min(a, b)
}

func (c Criteria) wantsGender(g Gender) bool {
	return c.DesiredGender == GenderAny || c.DesiredGender == "" || c.DesiredGender == g
}

func (c Criteria) acceptsAge(age int) bool {
	if c.AgeMin > 0 && age < c.AgeMin {
		return false
	}
	if c.AgeMax > 0 && age > c.AgeMax {
		return false
	}
	return true
}

func regionsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	seen := make(map[string]struct{}, len(a))
	for _, r := range a {
		seen[r] = struct{}{}
	}
	for _, r := range b {
		if _, ok := seen[r]; ok {
			return true
		}
	}
	return false
}
