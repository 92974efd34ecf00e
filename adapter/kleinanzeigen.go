package adapter

import (
	"fmt"
	"net/url"

	"github.com/use-agent/carscout/models"
)

const kleinanzeigenName = "ebay-kleinanzeigen.de"

var kleinanzeigenSelectors = SelectorTable{
	Card:  "article.aditem",
	Title: "h2.text-module-begin",
	Link:  "a.ellipsis",
}

// Kleinanzeigen encodes attribute filters as "+key:value" suffixes on the
// category segment.
var kleinanzeigenGearbox = map[models.Gearbox]string{
	models.GearboxManual:    "manuell",
	models.GearboxAutomatic: "automatik",
}

var kleinanzeigenDamage = map[models.Damage]string{
	models.DamageUndamaged: "nein",
	models.DamageDamaged:   "ja",
}

// Kleinanzeigen returns the ebay-kleinanzeigen.de adapter.
func Kleinanzeigen() *Adapter {
	return MustNew(kleinanzeigenName, "https://www.ebay-kleinanzeigen.de", kleinanzeigenSelectors, kleinanzeigenURL)
}

func kleinanzeigenURL(fs models.FilterSet) string {
	u := fmt.Sprintf("https://www.ebay-kleinanzeigen.de/s-autos/%s"+
		"/preis:%d:%d/km:%d:%d/ez:%d:%d/%s/k0c216",
		url.PathEscape(fs.Make),
		fs.MinPrice, fs.MaxPrice,
		fs.MinMileage, fs.MaxMileage,
		fs.MinYear, fs.MaxYear,
		url.PathEscape(fs.City),
	)
	if gb, ok := kleinanzeigenGearbox[fs.Gearbox]; ok {
		u += "+autos.getriebe_s:" + gb
	}
	if dmg, ok := kleinanzeigenDamage[fs.Damage]; ok {
		u += "+autos.schaden_s:" + dmg
	}
	return u
}
