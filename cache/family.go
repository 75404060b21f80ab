package cache

// The stable family names spec.md's entity-key rule names. hero, bundle,
// and home are singleton families: every caller addresses them with
// entity_id equal to the family name itself.
const (
	FamilyProduct Family = "product"
	FamilyPrice   Family = "price"
	FamilyStock   Family = "stock"
	FamilyHero    Family = "hero"
	FamilyBundle  Family = "bundle"
	FamilyHome    Family = "home"
	FamilyMessage Family = "message"
)

// SingletonID is the entity id a singleton family (hero, bundle, home) is
// always addressed by.
func SingletonID(family Family) string {
	return string(family)
}
