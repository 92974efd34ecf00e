package models

// Gearbox is the site-agnostic transmission filter. Each adapter translates
// it into its own query vocabulary.
type Gearbox int

const (
	GearboxAny Gearbox = iota
	GearboxManual
	GearboxAutomatic
)

func (g Gearbox) String() string {
	switch g {
	case GearboxManual:
		return "manual"
	case GearboxAutomatic:
		return "automatic"
	default:
		return "any"
	}
}

// Damage is the site-agnostic damage-status filter.
type Damage int

const (
	DamageAny Damage = iota
	DamageUndamaged
	DamageDamaged
)

func (d Damage) String() string {
	switch d {
	case DamageUndamaged:
		return "undamaged"
	case DamageDamaged:
		return "damaged"
	default:
		return "any"
	}
}

// FilterSet is the canonical, validated search query. Adapters receive it
// by value and derive their own encoded values from it.
type FilterSet struct {
	Make       string  `json:"make"`
	City       string  `json:"city"`
	MinMileage int     `json:"min_mileage"`
	MaxMileage int     `json:"max_mileage"`
	MinYear    int     `json:"min_year"`
	MaxYear    int     `json:"max_year"`
	Gearbox    Gearbox `json:"gearbox"`
	MinPrice   int     `json:"min_price"`
	MaxPrice   int     `json:"max_price"`
	Damage     Damage  `json:"damage"`
}
