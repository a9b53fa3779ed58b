// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer paise. Parsing and rendering go through
// shopspring/decimal so that "12.5", "12,50" and 12.5 all land on 1250.
package core

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Paise int64
}

var hundred = decimal.NewFromInt(100)

// Rupees builds a Money from a whole rupee amount.
func Rupees(r int64) Money {
	return Money{Paise: r * 100}
}

// ParseMoney converts a decimal string to paise with half-up rounding on the
// third decimal place. Both dot and comma separators are accepted. Zero and
// negative amounts are rejected.
//
// Examples:
//
//	ParseMoney("4000")   -> 400000
//	ParseMoney("12,345") -> 1235
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" || strings.HasPrefix(s, "+") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return fromDecimal(d)
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	paise := d.Mul(hundred).Round(0)
	if !paise.IsPositive() || paise.GreaterThan(decimal.NewFromInt(1<<62)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Paise: paise.IntPart()}, nil
}

func (m Money) Validate() error {
	if m.Paise <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Paise: m.Paise + o.Paise} }
func (m Money) Sub(o Money) Money { return Money{Paise: m.Paise - o.Paise} }

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Paise, -2)
}

// String renders the plain decimal amount ("6000", "12.5", "-3.25").
func (m Money) String() string {
	return m.Decimal().String()
}

// Rs renders the amount the way messages and reports show it ("Rs. 6000").
func (m Money) Rs() string {
	return "Rs. " + m.String()
}

// Float returns the amount for spreadsheet cells. Use Paise for arithmetic.
func (m Money) Float() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts JSON numbers and numeric strings of any sign, so
// balances and zero funds read back what MarshalJSON wrote. Positivity is
// checked by Validate where an amount is user input.
func (m *Money) UnmarshalJSON(b []byte) error {
	text := string(b)
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		text = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return ErrInvalidAmount
	}
	*m = Money{Paise: d.Mul(hundred).Round(0).IntPart()}
	return nil
}
