// Package tier holds the subscription tier order, feature gates and
// capacity limits. All functions are pure.
package tier

import "strings"

// Tier is a subscription level. Unknown values behave as Free.
type Tier string

const (
	Free  Tier = "free"
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
	Tier3 Tier = "tier3"
)

// Unlimited is the cap reported for tiers without a practical limit.
const Unlimited = 999

// All lists tiers in ascending order.
var All = []Tier{Free, Tier1, Tier2, Tier3}

var levels = map[Tier]int{
	Free:  0,
	Tier1: 1,
	Tier2: 2,
	Tier3: 3,
}

var names = map[Tier]string{
	Free:  "Free",
	Tier1: "Professional",
	Tier2: "Business",
	Tier3: "Enterprise",
}

// Parse normalises s and reports whether it names a known tier.
func Parse(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	_, ok := levels[t]
	return t, ok
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := levels[t]
	return ok
}

// Level returns the rank of t; unknown tiers rank as Free.
func Level(t Tier) int {
	return levels[t]
}

// Normalize maps unknown tiers to Free.
func Normalize(t Tier) Tier {
	if t.Valid() {
		return t
	}
	return Free
}

// Name is the display name shown to vendors.
func Name(t Tier) string {
	return names[Normalize(t)]
}

// IsTierOrHigher reports whether t ranks at or above required.
func IsTierOrHigher(t, required Tier) bool {
	return Level(t) >= Level(required)
}

// HasTierAccess is the capability check used by handlers. Admins always pass.
func HasTierAccess(current, required Tier, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	return IsTierOrHigher(current, required)
}

// Next returns the tier directly above t, or false at the top.
func Next(t Tier) (Tier, bool) {
	l := Level(t)
	if l+1 >= len(All) {
		return "", false
	}
	return All[l+1], true
}
