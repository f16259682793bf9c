// Package mathutil holds decimal-exact rounding helpers shared by the ledger and the signals.
package mathutil

import "github.com/shopspring/decimal"

// Places is the precision of units, assets, profits and ratios
const Places = 4

// Round rounds x half away from zero to the given decimal places, in decimal arithmetic
func Round(x float64, places int32) float64 {
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}

// Round4 rounds to Places decimal places
func Round4(x float64) float64 {
	return Round(x, Places)
}

// Sum adds values in decimal arithmetic and returns the float result
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}
