// README: Cent arithmetic shared by pricing and quotes; amounts are integer cents.
package types

import "github.com/shopspring/decimal"

const DefaultCurrency = "EUR"

// RoundCents rounds half away from zero to a whole cent.
func RoundCents(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// MulCents returns round(cents × factor).
func MulCents(cents int64, factor float64) int64 {
	return RoundCents(decimal.NewFromInt(cents).Mul(decimal.NewFromFloat(factor)))
}
