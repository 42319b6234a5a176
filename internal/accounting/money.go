package accounting

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// AllocatedAmount is floor(amount × rate) in minor units.
func AllocatedAmount(amount int64, rate float64) int64 {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	if rate > 1 {
		rate = 1
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(rate)).Floor().IntPart()
}

// minorUnitExponent is the number of decimal places of the currency.
func minorUnitExponent(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "VND", "CLP", "ISK":
		return 0
	}
	return 2
}

// majorUnits renders a minor-unit amount as a JSON number in major units.
func majorUnits(minor int64, currency string) json.Number {
	exp := minorUnitExponent(currency)
	return json.Number(decimal.New(minor, -exp).StringFixed(exp))
}
