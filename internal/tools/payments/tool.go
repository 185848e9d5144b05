// Package payments exposes the guarded spending ledger to the model.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/cognis/internal/agent"
	paymentscore "github.com/haasonsaas/cognis/internal/payments"
	"github.com/haasonsaas/cognis/internal/tools"
)

const defaultListLimit = 10

// Tool manages the spending policy and purchase reservations.
type Tool struct {
	ledger *paymentscore.Ledger
}

func NewTool(ledger *paymentscore.Ledger) *Tool {
	return &Tool{ledger: ledger}
}

func (t *Tool) Name() string { return "payments" }

func (t *Tool) Description() string {
	return "Manage delegated spending policy and guarded purchase reservations"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"action":                    tools.Enum("", "set_policy", "get_policy", "request", "confirm", "capture", "cancel", "status", "list"),
		"merchant":                  tools.Prop("string", ""),
		"category":                  tools.Prop("string", ""),
		"amount":                    tools.Prop("number", "Amount in dollars."),
		"description":               tools.Prop("string", ""),
		"external_ref":              tools.Prop("string", ""),
		"transaction_id":            tools.Prop("string", ""),
		"max_per_tx":                tools.Prop("number", "Dollars."),
		"max_daily":                 tools.Prop("number", "Dollars."),
		"max_monthly":               tools.Prop("number", "Dollars."),
		"require_confirmation_over": tools.Prop("number", "Dollars."),
		"allowed_merchants":         map[string]any{"type": []string{"array", "string"}},
		"allowed_categories":        map[string]any{"type": []string{"array", "string"}},
		"timezone":                  tools.Prop("string", "IANA zone for daily budgets and quiet hours."),
		"quiet_hours_start":         tools.Prop("integer", "Hour 0-23."),
		"quiet_hours_end":           tools.Prop("integer", "Hour 0-23."),
		"currency":                  tools.Prop("string", ""),
		"limit":                     tools.Prop("integer", ""),
	}, "action")
}

func (t *Tool) Execute(_ context.Context, args map[string]any, _ *agent.ToolContext) (string, error) {
	action := agent.StringArg(args, "action")
	if action == "" {
		return tools.Errorf("action is required"), nil
	}
	if t.ledger == nil {
		return tools.NotConfigured("payments ledger"), nil
	}

	switch action {
	case "set_policy":
		current, err := t.ledger.Policy()
		if err != nil {
			return "", err
		}
		next, err := current.ApplyFields(args)
		if err != nil {
			return tools.Errorf("%s", err), nil
		}
		updated, err := t.ledger.UpdatePolicy(next)
		if err != nil {
			return "", err
		}
		return FormatPolicy(updated), nil
	case "get_policy":
		p, err := t.ledger.Policy()
		if err != nil {
			return "", err
		}
		return FormatPolicy(p), nil
	case "request":
		raw, ok := args["amount"]
		if !ok || raw == nil {
			return tools.Errorf("amount is required"), nil
		}
		cents, err := paymentscore.DollarsToCents(raw)
		if err != nil {
			return tools.Errorf("%s", err), nil
		}
		d, err := t.ledger.Request(
			agent.StringArg(args, "merchant"),
			agent.StringArg(args, "category"),
			cents,
			agent.StringArg(args, "description"),
			agent.StringArg(args, "external_ref"),
		)
		if err != nil {
			return "", err
		}
		return FormatDecision(d), nil
	case "confirm", "capture", "cancel":
		id := agent.StringArg(args, "transaction_id")
		if id == "" {
			return tools.Errorf("transaction_id is required"), nil
		}
		transition := map[string]func(string) (paymentscore.Decision, error){
			"confirm": t.ledger.Confirm,
			"capture": t.ledger.Capture,
			"cancel":  t.ledger.Cancel,
		}[action]
		d, err := transition(id)
		if err != nil {
			return "", err
		}
		return FormatDecision(d), nil
	case "status":
		return t.status()
	case "list":
		txs, err := t.ledger.List(max(1, agent.IntArg(args, "limit", defaultListLimit)))
		if err != nil {
			return "", err
		}
		if len(txs) == 0 {
			return "No payment transactions found.", nil
		}
		rows := make([]string, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, fmt.Sprintf("- %s | %s | %s | %s | %s",
				tx.ID, tx.Status, orPlaceholder(tx.Merchant, "(merchant)"),
				orPlaceholder(tx.Category, "(category)"), paymentscore.FormatDollars(tx.AmountCents)))
		}
		return "Payment Transactions:\n" + strings.Join(rows, "\n"), nil
	default:
		return tools.Errorf("unsupported payments action: %s", action), nil
	}
}

func (t *Tool) status() (string, error) {
	p, err := t.ledger.Policy()
	if err != nil {
		return "", err
	}
	s, err := t.ledger.Summary()
	if err != nil {
		return "", err
	}
	usd := paymentscore.FormatDollars
	lines := []string{
		"Wallet Status:",
		"- currency: " + p.Currency,
		"- reserved: " + usd(s.ReservedCents),
		"- captured: " + usd(s.CapturedCents),
		fmt.Sprintf("- daily used: %s (available: %s)", usd(s.DailyUsedCents), usd(s.AvailableDailyCents)),
		fmt.Sprintf("- monthly used: %s (available: %s)", usd(s.MonthlyUsedCents), usd(s.AvailableMonthlyCents)),
		fmt.Sprintf("- transactions: %d", s.TotalTransactions),
	}
	return strings.Join(lines, "\n"), nil
}

// FormatPolicy renders the policy block shown to the model.
func FormatPolicy(p paymentscore.Policy) string {
	usd := paymentscore.FormatDollars
	lines := []string{
		"Spending Policy:",
		"- currency: " + p.Currency,
		"- max_per_tx: " + usd(p.MaxPerTxCents),
		"- max_daily: " + usd(p.MaxDailyCents),
		"- max_monthly: " + usd(p.MaxMonthlyCents),
		"- require_confirmation_over: " + usd(p.RequireConfirmationOverCents),
		"- allowed_merchants: " + joinOrAny(p.AllowedMerchants),
		"- allowed_categories: " + joinOrAny(p.AllowedCategories),
		"- timezone: " + p.Timezone,
		"- quiet_hours: " + quietHours(p),
	}
	return strings.Join(lines, "\n")
}

// FormatDecision renders a ledger decision. Denials omit the budgets.
func FormatDecision(d paymentscore.Decision) string {
	if d.Status == paymentscore.StatusDenied {
		return fmt.Sprintf("Payment %s (%s): %s", d.Status, d.TransactionID, d.Message)
	}
	return fmt.Sprintf("Payment %s (%s): %s [remaining_daily=%s, remaining_monthly=%s]",
		d.Status, d.TransactionID, d.Message,
		paymentscore.FormatDollars(d.RemainingDailyCents),
		paymentscore.FormatDollars(d.RemainingMonthlyCents))
}

func quietHours(p paymentscore.Policy) string {
	if !p.QuietHoursEnabled() {
		return "(off)"
	}
	return fmt.Sprintf("%02d:00-%02d:00", *p.QuietHoursStart, *p.QuietHoursEnd)
}

func joinOrAny(values []string) string {
	if len(values) == 0 {
		return "(any)"
	}
	return strings.Join(values, ", ")
}

func orPlaceholder(v, placeholder string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return v
}
