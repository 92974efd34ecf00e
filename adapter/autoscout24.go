package adapter

import (
	"fmt"
	"net/url"

	"github.com/use-agent/carscout/models"
)

const autoScout24Name = "autoscout24.de"

var autoScout24Selectors = SelectorTable{
	Card:  "article.cldt-summary-full-item",
	Title: "h2",
	Link:  "a.ListItem_title__ndA4s",
}

var autoScout24Gearbox = map[models.Gearbox]string{
	models.GearboxManual:    "M",
	models.GearboxAutomatic: "A",
}

var autoScout24Damage = map[models.Damage]string{
	models.DamageUndamaged: "exclude",
	models.DamageDamaged:   "only",
}

// AutoScout24 returns the autoscout24.de adapter.
func AutoScout24() *Adapter {
	return MustNew(autoScout24Name, "https://www.autoscout24.de", autoScout24Selectors, autoScout24URL)
}

func autoScout24URL(fs models.FilterSet) string {
	u := fmt.Sprintf("https://www.autoscout24.de/lst/%s"+
		"?sort=price&desc=0&ustate=N%%2CU&size=20&cy=D"+
		"&kmfrom=%d&kmto=%d"+
		"&fregfrom=%d&fregto=%d"+
		"&pricefrom=%d&priceto=%d"+
		"&gear=%s&zip=%s",
		url.PathEscape(fs.Make),
		fs.MinMileage, fs.MaxMileage,
		fs.MinYear, fs.MaxYear,
		fs.MinPrice, fs.MaxPrice,
		autoScout24Gearbox[fs.Gearbox],
		url.QueryEscape(fs.City),
	)
	if dmg, ok := autoScout24Damage[fs.Damage]; ok {
		u += "&damaged_listing=" + dmg
	}
	return u
}
