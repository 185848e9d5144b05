// Package payments is the delegated-spending ledger. A Policy bounds what
// the assistant may spend and the Ledger moves each Transaction through
// request, confirmation, capture and cancellation under that policy.
package payments

import (
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is a transaction state.
type Status string

const (
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION"
	StatusAuthorized          Status = "AUTHORIZED"
	StatusCaptured            Status = "CAPTURED"
	StatusCancelled           Status = "CANCELLED"
	StatusDenied              Status = "DENIED"
)

// Policy is the spend envelope. Amounts are in cents. Quiet hours are
// [start, end) in the policy timezone, wrapping midnight when start > end;
// equal or unset hours disable them.
type Policy struct {
	Currency                     string   `json:"currency"`
	MaxPerTxCents                int64    `json:"maxPerTxCents"`
	MaxDailyCents                int64    `json:"maxDailyCents"`
	MaxMonthlyCents              int64    `json:"maxMonthlyCents"`
	RequireConfirmationOverCents int64    `json:"requireConfirmationOverCents"`
	AllowedMerchants             []string `json:"allowedMerchants"`
	AllowedCategories            []string `json:"allowedCategories"`
	Timezone                     string   `json:"timezone"`
	QuietHoursStart              *int     `json:"quietHoursStart"`
	QuietHoursEnd                *int     `json:"quietHoursEnd"`
}

// DefaultPolicy allows $100 per transaction, $200 a day and $1000 a month,
// asking for confirmation above $20.
func DefaultPolicy() Policy {
	return Policy{
		Currency:                     "USD",
		MaxPerTxCents:                10_000,
		MaxDailyCents:                20_000,
		MaxMonthlyCents:              100_000,
		RequireConfirmationOverCents: 2_000,
		AllowedMerchants:             []string{},
		AllowedCategories:            []string{},
		Timezone:                     "UTC",
	}
}

// Normalized clamps amounts to zero, upper-cases the currency, folds and
// dedupes the allow lists and drops out-of-range quiet hours.
func (p Policy) Normalized() Policy {
	p.Currency = strings.TrimSpace(p.Currency)
	if p.Currency == "" {
		p.Currency = "USD"
	}
	p.Currency = cases.Upper(language.Und).String(p.Currency)
	p.MaxPerTxCents = max(0, p.MaxPerTxCents)
	p.MaxDailyCents = max(0, p.MaxDailyCents)
	p.MaxMonthlyCents = max(0, p.MaxMonthlyCents)
	p.RequireConfirmationOverCents = max(0, p.RequireConfirmationOverCents)
	p.AllowedMerchants = normalizeKeys(p.AllowedMerchants)
	p.AllowedCategories = normalizeKeys(p.AllowedCategories)
	p.Timezone = strings.TrimSpace(p.Timezone)
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	p.QuietHoursStart = sanitizeHour(p.QuietHoursStart)
	p.QuietHoursEnd = sanitizeHour(p.QuietHoursEnd)
	return p
}

func (p Policy) AllowsMerchant(merchant string) bool {
	return allowed(p.AllowedMerchants, merchant)
}

func (p Policy) AllowsCategory(category string) bool {
	return allowed(p.AllowedCategories, category)
}

// QuietHoursEnabled reports whether quiet hours are set and non-empty.
func (p Policy) QuietHoursEnabled() bool {
	return p.QuietHoursStart != nil && p.QuietHoursEnd != nil && *p.QuietHoursStart != *p.QuietHoursEnd
}

// InQuietHours reports whether at falls inside the quiet window.
func (p Policy) InQuietHours(at time.Time) bool {
	if !p.QuietHoursEnabled() {
		return false
	}
	start, end := *p.QuietHoursStart, *p.QuietHoursEnd
	hour := at.In(p.Location()).Hour()
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Location resolves the policy timezone, falling back to UTC.
func (p Policy) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || p.Timezone == "" {
		return time.UTC
	}
	return loc
}

func allowed(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	key := normalizeKey(value)
	for _, item := range list {
		if item == key {
			return true
		}
	}
	return false
}

func normalizeKey(v string) string {
	return cases.Fold().String(strings.TrimSpace(v))
}

func normalizeKeys(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := normalizeKey(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func sanitizeHour(h *int) *int {
	if h == nil || *h < 0 || *h > 23 {
		return nil
	}
	v := *h
	return &v
}
