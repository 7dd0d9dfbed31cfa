// Package money переводит денежные суммы между десятичными строками API и минимальными единицами.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale — количество знаков после запятой у минимальной единицы (копейки, центы).
const Scale = 2

var (
	// Строка не является десятичным числом.
	ErrInvalidAmount = errors.New("invalid money amount")
	// Сумма точнее минимальной денежной единицы.
	ErrTooPrecise = errors.New("money amount has more than two decimal places")
	// Сумма не помещается в int64 минимальных единиц.
	ErrOutOfRange = errors.New("money amount out of range")
)

var (
	maxMinor = decimal.NewFromInt(1<<63 - 1)
	minMinor = decimal.NewFromInt(-1 << 63)
)

// ParseMinor разбирает "150.00" в 15000 минимальных единиц.
// Пустая строка трактуется как ноль.
func ParseMinor(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal переводит десятичное значение в минимальные единицы без округления.
func FromDecimal(d decimal.Decimal) (int64, error) {
	shifted := d.Shift(Scale)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrTooPrecise, d.String())
	}
	if shifted.GreaterThan(maxMinor) || shifted.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return shifted.IntPart(), nil
}

// ToDecimal переводит минимальные единицы в десятичное значение.
func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// FormatMinor форматирует минимальные единицы как "150.00".
func FormatMinor(minor int64) string {
	return ToDecimal(minor).StringFixed(Scale)
}
