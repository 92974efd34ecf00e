package adapter

import (
	"fmt"
	"net/url"

	"github.com/use-agent/carscout/models"
)

const mobileDEName = "mobile.de"

var mobileDESelectors = SelectorTable{
	Card:  "div.cldt-summary-full-item",
	Title: "h2.cldt-summary-title",
	Link:  "a.cldt-summary-titles",
}

var mobileDEGearbox = map[models.Gearbox]string{
	models.GearboxManual:    "MANUAL_GEAR",
	models.GearboxAutomatic: "AUTOMATIC_GEAR",
}

var mobileDEDamage = map[models.Damage]string{
	models.DamageUndamaged: "NO",
	models.DamageDamaged:   "YES",
}

// MobileDE returns the mobile.de adapter.
func MobileDE() *Adapter {
	return MustNew(mobileDEName, "https://www.mobile.de", mobileDESelectors, mobileDEURL)
}

func mobileDEURL(fs models.FilterSet) string {
	return fmt.Sprintf("https://www.mobile.de/?lang=de"+
		"&search[makeModelVariant]=%s"+
		"&search[damageUnrepaired]=%s"+
		"&search[minPrice]=%d&search[maxPrice]=%d"+
		"&search[minMileage]=%d&search[maxMileage]=%d"+
		"&search[minFirstRegistration]=%d&search[maxFirstRegistration]=%d"+
		"&search[gearbox]=%s"+
		"&search[city]=%s",
		url.QueryEscape(fs.Make),
		mobileDEDamage[fs.Damage],
		fs.MinPrice, fs.MaxPrice,
		fs.MinMileage, fs.MaxMileage,
		fs.MinYear, fs.MaxYear,
		mobileDEGearbox[fs.Gearbox],
		url.QueryEscape(fs.City),
	)
}
