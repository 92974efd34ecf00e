// Package filters turns raw form input into a canonical models.FilterSet.
package filters

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/use-agent/carscout/models"
)

// Raw form field names.
const (
	FieldMake       = "make"
	FieldCity       = "city"
	FieldMinMileage = "min_mileage"
	FieldMaxMileage = "max_mileage"
	FieldMinYear    = "min_year"
	FieldMaxYear    = "max_year"
	FieldGearbox    = "gearbox"
	FieldMinPrice   = "min_price"
	FieldMaxPrice   = "max_price"
	FieldDamage     = "damage"
)

// UI labels recognised for the enum fields. Matching is exact.
const (
	LabelManual     = "Schaltgetriebe"
	LabelAutomatic  = "Automatik"
	LabelUndamaged  = "Neu"
	LabelDamaged    = "Beschädigt"
	defaultMinYear  = 1900
	defaultMaxLimit = 999999
)

// Now returns the current time. Tests override it to pin the max_year default.
var Now = time.Now

// RawFilters is string-keyed form input. Only a missing key means "not
// supplied"; a key that is present with an empty value is invalid input for
// a numeric field.
type RawFilters map[string]string

var lower = cases.Lower(language.Und)

// Normalize validates raw and builds the canonical filter set.
//
// Absent numeric fields take their sentinel defaults before parsing.
// Present values are trimmed and parsed as base-10 integers; mileage and
// price must not be negative. If any numeric field fails, a validation
// error is returned together with the zero FilterSet.
func Normalize(raw RawFilters) (models.FilterSet, error) {
	var fs models.FilterSet
	numeric := []struct {
		field       string
		fallback    int
		nonNegative bool
		dst         *int
	}{
		{FieldMinMileage, 0, true, &fs.MinMileage},
		{FieldMaxMileage, defaultMaxLimit, true, &fs.MaxMileage},
		{FieldMinYear, defaultMinYear, false, &fs.MinYear},
		{FieldMaxYear, Now().Year(), false, &fs.MaxYear},
		{FieldMinPrice, 0, true, &fs.MinPrice},
		{FieldMaxPrice, defaultMaxLimit, true, &fs.MaxPrice},
	}

	for _, n := range numeric {
		v, err := parseInt(raw, n.field, n.fallback)
		if err == nil && n.nonNegative && v < 0 {
			err = fmt.Errorf("%s: negative value %d", n.field, v)
		}
		if err != nil {
			return models.FilterSet{}, models.NewSearchError(
				models.ErrCodeValidation,
				models.MsgInvalidNumbers,
				err,
			)
		}
		*n.dst = v
	}

	fs.Make = lower.String(raw[FieldMake])
	fs.City = raw[FieldCity]
	fs.Gearbox = ParseGearbox(raw[FieldGearbox])
	fs.Damage = ParseDamage(raw[FieldDamage])
	return fs, nil
}

// ParseGearbox maps a UI label to the canonical gearbox code.
func ParseGearbox(label string) models.Gearbox {
	switch label {
	case LabelManual:
		return models.GearboxManual
	case LabelAutomatic:
		return models.GearboxAutomatic
	default:
		return models.GearboxAny
	}
}

// ParseDamage maps a UI label to the canonical damage code.
func ParseDamage(label string) models.Damage {
	switch label {
	case LabelUndamaged:
		return models.DamageUndamaged
	case LabelDamaged:
		return models.DamageDamaged
	default:
		return models.DamageAny
	}
}

func parseInt(raw RawFilters, field string, fallback int) (int, error) {
	v, ok := raw[field]
	if !ok {
		return fallback, nil
	}
	return strconv.Atoi(strings.TrimSpace(v))
}
