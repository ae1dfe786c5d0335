package domain

import "github.com/shopspring/decimal"

// Доли репасса: водитель получает 80%, остаток — платформе
var (
	DriverShare = decimal.RequireFromString("0.80")
	centPlaces  = int32(2)
)

// ValidateAmount — сумма положительна и не точнее копейки (центаво)
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(centPlaces)) {
		return ErrInvalidAmount
	}
	return nil
}

// Split делит total на долю водителя и платформы.
// Доля водителя округляется до 2 знаков (половина от нуля), остаток округления
// уходит платформе, поэтому driver + platform == total всегда.
func Split(total decimal.Decimal) (driver, platform decimal.Decimal) {
	driver = total.Mul(DriverShare).Round(centPlaces)
	platform = total.Sub(driver)
	return driver, platform
}

// ParseAmount разбирает денежную сумму из строки ("50", "50.00", "12.5")
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
