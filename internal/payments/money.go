package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned for dollar values that are not decimal numbers.
var ErrInvalidAmount = errors.New("invalid dollar amount")

var hundred = big.NewRat(100, 1)

// DollarsToCents converts a dollar value (number or decimal string) to
// cents, rounding half away from zero. Conversion goes through exact
// rational arithmetic so "19.995" becomes 2000.
func DollarsToCents(v any) (int64, error) {
	var text string
	switch val := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrInvalidAmount)
	case string:
		text = val
	case json.Number:
		text = val.String()
	case float64:
		text = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		text = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		text = strconv.Itoa(val)
	case int64:
		text = strconv.FormatInt(val, 10)
	default:
		text = fmt.Sprint(val)
	}
	text = strings.TrimSpace(text)
	r, ok := new(big.Rat).SetString(text)
	if !ok || text == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	r.Mul(r, hundred)

	neg := r.Sign() < 0
	if neg {
		r.Neg(r)
	}
	// floor(r + 1/2)
	r.Add(r, big.NewRat(1, 2))
	q := new(big.Int).Quo(r.Num(), r.Denom())
	if !q.IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, text)
	}
	cents := q.Int64()
	if neg {
		cents = -cents
	}
	return cents, nil
}

// CentsToDollars is the wire representation of an amount.
func CentsToDollars(cents int64) float64 {
	return float64(cents) / 100
}

// FormatDollars renders cents as "12.34".
func FormatDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
