package tier

// Limits are the per-tier capacity caps.
type Limits struct {
	Locations int `json:"maxLocations"`
	Products  int `json:"maxProducts"`
	Media     int `json:"maxMedia"`
}

var limits = map[Tier]Limits{
	Free:  {Locations: 1, Products: 3, Media: 5},
	Tier1: {Locations: 3, Products: 10, Media: 20},
	Tier2: {Locations: 10, Products: 25, Media: 50},
	Tier3: {Locations: Unlimited, Products: Unlimited, Media: Unlimited},
}

// LimitsFor returns the caps of t, falling back to Free.
func LimitsFor(t Tier) Limits {
	return limits[Normalize(t)]
}

func GetMaxLocations(t Tier) int { return LimitsFor(t).Locations }

func GetMaxProducts(t Tier) int { return LimitsFor(t).Products }

func GetMaxMedia(t Tier) int { return LimitsFor(t).Media }

// CanAddLocation reports whether a vendor holding currentCount locations may add one more.
func CanAddLocation(t Tier, currentCount int) bool {
	return currentCount < GetMaxLocations(t)
}

func CanAddProduct(t Tier, currentCount int) bool {
	return currentCount < GetMaxProducts(t)
}

func CanAddMedia(t Tier, currentCount int) bool {
	return currentCount < GetMaxMedia(t)
}

// Summary describes what a tier unlocks.
type Summary struct {
	Tier     Tier             `json:"tier"`
	Name     string           `json:"name"`
	Level    int              `json:"level"`
	Limits   Limits           `json:"limits"`
	Features map[Feature]bool `json:"features"`
	Next     Tier             `json:"nextTier,omitempty"`
}

// Describe builds the capability summary of t. Admins see every feature unlocked.
func Describe(t Tier, isAdmin bool) Summary {
	t = Normalize(t)
	s := Summary{
		Tier:     t,
		Name:     Name(t),
		Level:    Level(t),
		Limits:   LimitsFor(t),
		Features: make(map[Feature]bool, len(featureTiers)),
	}
	for _, f := range Features() {
		s.Features[f] = HasTierAccess(t, UpgradePath(f), isAdmin)
	}
	if next, ok := Next(t); ok {
		s.Next = next
	}
	return s
}
