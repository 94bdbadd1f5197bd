package tier

// Feature names a gated capability.
type Feature string

const (
	MultipleLocations Feature = "multipleLocations"
	MediaGallery      Feature = "mediaGallery"
	Analytics         Feature = "analytics"
	AdvancedAnalytics Feature = "advancedAnalytics"
	APIAccess         Feature = "apiAccess"
	CustomDomain      Feature = "customDomain"
	ExcelImport       Feature = "excelImport"
	ProductManagement Feature = "productManagement"
	PromotionPack     Feature = "promotionPack"
	EditorialContent  Feature = "editorialContent"
)

// defaultFeatureTier applies to features missing from the map.
const defaultFeatureTier = Tier2

var featureTiers = map[Feature]Tier{
	MultipleLocations: Tier1,
	MediaGallery:      Tier1,
	Analytics:         Tier2,
	AdvancedAnalytics: Tier2,
	APIAccess:         Tier2,
	CustomDomain:      Tier2,
	ExcelImport:       Tier2,
	ProductManagement: Tier2,
	PromotionPack:     Tier3,
	EditorialContent:  Tier3,
}

// Features lists every known feature.
func Features() []Feature {
	return []Feature{
		MultipleLocations, MediaGallery, Analytics, AdvancedAnalytics, APIAccess,
		CustomDomain, ExcelImport, ProductManagement, PromotionPack, EditorialContent,
	}
}

// KnownFeature reports whether f is in the feature map.
func KnownFeature(f Feature) bool {
	_, ok := featureTiers[f]
	return ok
}

// UpgradePath returns the minimum tier that unlocks f.
func UpgradePath(f Feature) Tier {
	if t, ok := featureTiers[f]; ok {
		return t
	}
	return defaultFeatureTier
}

// CanAccessFeature reports whether t unlocks f.
func CanAccessFeature(t Tier, f Feature) bool {
	return IsTierOrHigher(t, UpgradePath(f))
}

// fieldsByTier lists the profile fields each tier adds on top of the tier below.
var fieldsByTier = map[Tier][]string{
	Free: {
		"companyName", "slug", "description", "logo", "contactEmail",
		"contactPhone", "website", "location",
	},
	Tier1: {
		"foundedYear", "longDescription", "videoUrl", "certifications", "awards",
		"socialProof", "caseStudies", "teamMembers", "serviceAreas", "locations",
	},
	Tier2: {
		"products", "advancedAnalytics", "customDomain",
	},
	Tier3: {
		"promotionPack", "editorialContent",
	},
}

// Fields returns every field t may edit, cumulative over lower tiers.
func Fields(t Tier) []string {
	var out []string
	for _, candidate := range All {
		if Level(candidate) > Level(t) {
			break
		}
		out = append(out, fieldsByTier[candidate]...)
	}
	return out
}

// CanAccessField reports whether t may edit field.
func CanAccessField(t Tier, field string) bool {
	for _, f := range Fields(t) {
		if f == field {
			return true
		}
	}
	return false
}
