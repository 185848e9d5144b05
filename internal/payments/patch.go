package payments

import (
	"fmt"
	"strconv"
	"strings"
)

// PolicyView is the dollar-denominated wire form of a Policy.
type PolicyView struct {
	Currency                string   `json:"currency"`
	MaxPerTx                float64  `json:"max_per_tx"`
	MaxDaily                float64  `json:"max_daily"`
	MaxMonthly              float64  `json:"max_monthly"`
	RequireConfirmationOver float64  `json:"require_confirmation_over"`
	AllowedMerchants        []string `json:"allowed_merchants"`
	AllowedCategories       []string `json:"allowed_categories"`
	Timezone                string   `json:"timezone"`
	QuietHoursStart         *int     `json:"quiet_hours_start"`
	QuietHoursEnd           *int     `json:"quiet_hours_end"`
}

// View converts p to dollars.
func (p Policy) View() PolicyView {
	return PolicyView{
		Currency:                p.Currency,
		MaxPerTx:                CentsToDollars(p.MaxPerTxCents),
		MaxDaily:                CentsToDollars(p.MaxDailyCents),
		MaxMonthly:              CentsToDollars(p.MaxMonthlyCents),
		RequireConfirmationOver: CentsToDollars(p.RequireConfirmationOverCents),
		AllowedMerchants:        nonNil(p.AllowedMerchants),
		AllowedCategories:       nonNil(p.AllowedCategories),
		Timezone:                p.Timezone,
		QuietHoursStart:         p.QuietHoursStart,
		QuietHoursEnd:           p.QuietHoursEnd,
	}
}

// ApplyFields overlays a partial, dollar-denominated update onto p. Keys
// that are absent or null keep their current value. Allow lists accept an
// array or a comma-separated string.
func (p Policy) ApplyFields(fields map[string]any) (Policy, error) {
	present := func(key string) (any, bool) {
		v, ok := fields[key]
		return v, ok && v != nil
	}

	if v, ok := present("currency"); ok {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			p.Currency = s
		}
	}
	money := []struct {
		key string
		dst *int64
	}{
		{"max_per_tx", &p.MaxPerTxCents},
		{"max_daily", &p.MaxDailyCents},
		{"max_monthly", &p.MaxMonthlyCents},
		{"require_confirmation_over", &p.RequireConfirmationOverCents},
	}
	for _, m := range money {
		v, ok := present(m.key)
		if !ok {
			continue
		}
		cents, err := DollarsToCents(v)
		if err != nil {
			return p, fmt.Errorf("%s: %w", m.key, err)
		}
		*m.dst = cents
	}
	if v, ok := present("allowed_merchants"); ok {
		p.AllowedMerchants = stringList(v)
	}
	if v, ok := present("allowed_categories"); ok {
		p.AllowedCategories = stringList(v)
	}
	if v, ok := present("timezone"); ok {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			p.Timezone = s
		}
	}
	for _, h := range []struct {
		key string
		dst **int
	}{
		{"quiet_hours_start", &p.QuietHoursStart},
		{"quiet_hours_end", &p.QuietHoursEnd},
	} {
		v, ok := present(h.key)
		if !ok {
			continue
		}
		if hour, ok := intValue(v); ok {
			*h.dst = &hour
		}
	}
	return p.Normalized(), nil
}

func stringList(v any) []string {
	var out []string
	switch val := v.(type) {
	case []string:
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range val {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	default:
		for _, part := range strings.Split(fmt.Sprint(val), ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func intValue(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(val)))
		return n, err == nil
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
