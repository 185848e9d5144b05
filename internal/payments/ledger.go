package payments

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/cognis/internal/observability"
)

// Decision messages.
const (
	MsgPending          = "Pending confirmation before execution."
	MsgAuthorized       = "Authorized. Funds reserved for execution."
	MsgCaptured         = "Captured successfully."
	MsgCancelled        = "Cancelled successfully."
	MsgNotFound         = "Transaction not found."
	MsgNotPending       = "Only pending transactions can be confirmed."
	MsgInvalidState     = "Invalid transaction status for this operation."
	MsgNotCancellable   = "Only authorized or pending transactions can be cancelled."
	reasonCancelled     = "Cancelled by user or policy."
	reasonAmount        = "Amount must be greater than zero."
	reasonMerchant      = "Merchant is blocked by policy."
	reasonCategory      = "Category is blocked by policy."
	reasonQuietHours    = "Execution blocked during quiet hours."
	reasonPerTx         = "Amount exceeds per-transaction limit."
	reasonDailyBudget   = "Amount exceeds remaining daily budget."
	reasonMonthlyBudget = "Amount exceeds remaining monthly budget."
)

// Decision is the outcome of a ledger operation. Denials are decisions,
// not errors.
type Decision struct {
	Status                Status `json:"status"`
	TransactionID         string `json:"transactionId"`
	Message               string `json:"message"`
	RemainingDailyCents   int64  `json:"remainingDailyCents"`
	RemainingMonthlyCents int64  `json:"remainingMonthlyCents"`
}

// Summary aggregates the ledger against the current policy.
type Summary struct {
	ReservedCents         int64 `json:"reservedCents"`
	CapturedCents         int64 `json:"capturedCents"`
	DailyUsedCents        int64 `json:"dailyUsedCents"`
	MonthlyUsedCents      int64 `json:"monthlyUsedCents"`
	AvailableDailyCents   int64 `json:"availableDailyCents"`
	AvailableMonthlyCents int64 `json:"availableMonthlyCents"`
	TotalTransactions     int   `json:"totalTransactions"`
}

// Recorder receives ledger audit events.
type Recorder interface {
	Record(eventType string, attrs map[string]any) error
}

// Ledger serializes every state transition: each call takes the lock, loads
// the state, mutates it and saves it once.
type Ledger struct {
	mu      sync.Mutex
	store   Store
	now     func() time.Time
	audit   Recorder
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithAudit(r Recorder) Option {
	return func(l *Ledger) { l.audit = r }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "payments"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the current policy.
func (l *Ledger) Policy() (Policy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.store.Load()
	if err != nil {
		return Policy{}, err
	}
	return state.Policy, nil
}

// UpdatePolicy replaces the policy, keeping all transactions.
func (l *Ledger) UpdatePolicy(p Policy) (Policy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.store.Load()
	if err != nil {
		return Policy{}, err
	}
	state.Policy = p.Normalized()
	if err := l.store.Save(state); err != nil {
		return Policy{}, fmt.Errorf("save payment policy: %w", err)
	}
	return state.Policy, nil
}

// Request validates a new spend against the policy and records it as
// DENIED, PENDING_CONFIRMATION or AUTHORIZED.
func (l *Ledger) Request(merchant, category string, amountCents int64, description, externalRef string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.emit("payment_request", Transaction{
		Merchant: merchant, Category: category, AmountCents: amountCents, ExternalRef: externalRef,
	}, "")

	state, err := l.store.Load()
	if err != nil {
		return Decision{}, err
	}
	now := l.now()
	v := validate(state, merchant, category, amountCents, now, "")
	tx := Transaction{
		ID:          uuid.NewString(),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
		Merchant:    strings.TrimSpace(merchant),
		Category:    strings.TrimSpace(category),
		AmountCents: max(0, amountCents),
		Description: strings.TrimSpace(description),
		ExternalRef: strings.TrimSpace(externalRef),
	}

	if !v.allowed {
		tx.Status = StatusDenied
		tx.Reason = v.reason
		if err := l.append(state, tx); err != nil {
			return Decision{}, err
		}
		l.emit("payment_denied", tx, v.reason)
		return l.decided(Decision{StatusDenied, tx.ID, v.reason, v.remainingDaily, v.remainingMonthly}), nil
	}

	needsConfirmation := amountCents > state.Policy.RequireConfirmationOverCents
	decision := Decision{
		TransactionID:         tx.ID,
		RemainingDailyCents:   v.remainingDaily,
		RemainingMonthlyCents: v.remainingMonthly,
	}
	if needsConfirmation {
		tx.Status = StatusPendingConfirmation
		decision.Status = StatusPendingConfirmation
		decision.Message = MsgPending
	} else {
		tx.Status = StatusAuthorized
		decision.Status = StatusAuthorized
		decision.Message = MsgAuthorized
		decision.RemainingDailyCents = max(0, v.remainingDaily-amountCents)
		decision.RemainingMonthlyCents = max(0, v.remainingMonthly-amountCents)
	}
	if err := l.append(state, tx); err != nil {
		return Decision{}, err
	}
	if needsConfirmation {
		l.emit("approval_requested", tx, "pending_confirmation")
	} else {
		l.emit("payment_authorized", tx, "authorized")
	}
	return l.decided(decision), nil
}

// Confirm re-validates a pending transaction, excluding itself from the
// spend totals, and authorizes or denies it.
func (l *Ledger) Confirm(id string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, idx, err := l.find(id)
	if err != nil || idx < 0 {
		return notFound(), err
	}
	tx := state.Transactions[idx]
	if tx.Status != StatusPendingConfirmation {
		return Decision{Status: StatusDenied, TransactionID: tx.ID, Message: MsgNotPending}, nil
	}

	now := l.now()
	v := validate(state, tx.Merchant, tx.Category, tx.AmountCents, now, tx.ID)
	tx.UpdatedAt = now.UTC()
	if !v.allowed {
		tx.Status = StatusDenied
		tx.Reason = v.reason
		if err := l.replace(state, idx, tx); err != nil {
			return Decision{}, err
		}
		l.emit("payment_denied", tx, v.reason)
		return l.decided(Decision{StatusDenied, tx.ID, v.reason, v.remainingDaily, v.remainingMonthly}), nil
	}

	tx.Status = StatusAuthorized
	tx.Reason = ""
	if err := l.replace(state, idx, tx); err != nil {
		return Decision{}, err
	}
	l.emit("payment_authorized", tx, "authorized_after_confirmation")
	return l.decided(Decision{
		Status:                StatusAuthorized,
		TransactionID:         tx.ID,
		Message:               MsgAuthorized,
		RemainingDailyCents:   max(0, v.remainingDaily-tx.AmountCents),
		RemainingMonthlyCents: max(0, v.remainingMonthly-tx.AmountCents),
	}), nil
}

// Capture moves an AUTHORIZED transaction to CAPTURED.
func (l *Ledger) Capture(id string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, idx, err := l.find(id)
	if err != nil || idx < 0 {
		return notFound(), err
	}
	tx := state.Transactions[idx]
	if tx.Status != StatusAuthorized {
		return Decision{Status: StatusDenied, TransactionID: tx.ID, Message: MsgInvalidState}, nil
	}
	tx.Status = StatusCaptured
	tx.Reason = ""
	tx.UpdatedAt = l.now().UTC()
	if err := l.replace(state, idx, tx); err != nil {
		return Decision{}, err
	}
	l.emit("payment_captured", tx, "captured")
	sum := l.summarize(state)
	return l.decided(Decision{StatusCaptured, tx.ID, MsgCaptured, sum.AvailableDailyCents, sum.AvailableMonthlyCents}), nil
}

// Cancel moves an AUTHORIZED or PENDING_CONFIRMATION transaction to
// CANCELLED, releasing its reservation.
func (l *Ledger) Cancel(id string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, idx, err := l.find(id)
	if err != nil || idx < 0 {
		return notFound(), err
	}
	tx := state.Transactions[idx]
	if tx.Status != StatusAuthorized && tx.Status != StatusPendingConfirmation {
		return Decision{Status: StatusDenied, TransactionID: tx.ID, Message: MsgNotCancellable}, nil
	}
	tx.Status = StatusCancelled
	tx.Reason = reasonCancelled
	tx.UpdatedAt = l.now().UTC()
	if err := l.replace(state, idx, tx); err != nil {
		return Decision{}, err
	}
	l.emit("payment_cancelled", tx, tx.Reason)
	sum := l.summarize(state)
	return l.decided(Decision{StatusCancelled, tx.ID, MsgCancelled, sum.AvailableDailyCents, sum.AvailableMonthlyCents}), nil
}

// List returns up to limit transactions, newest first.
func (l *Ledger) List(limit int) ([]Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.store.Load()
	if err != nil {
		return nil, err
	}
	txs := append([]Transaction(nil), state.Transactions...)
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	limit = max(1, limit)
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// Summary aggregates spend against the current policy.
func (l *Ledger) Summary() (Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.store.Load()
	if err != nil {
		return Summary{}, err
	}
	return l.summarize(state), nil
}

func (l *Ledger) summarize(state State) Summary {
	daily, monthly := usage(state, l.now(), "")
	sum := Summary{
		DailyUsedCents:        daily,
		MonthlyUsedCents:      monthly,
		AvailableDailyCents:   max(0, state.Policy.MaxDailyCents-daily),
		AvailableMonthlyCents: max(0, state.Policy.MaxMonthlyCents-monthly),
		TotalTransactions:     len(state.Transactions),
	}
	for _, tx := range state.Transactions {
		switch tx.Status {
		case StatusAuthorized:
			sum.ReservedCents += tx.AmountCents
		case StatusCaptured:
			sum.CapturedCents += tx.AmountCents
		}
	}
	return sum
}

func (l *Ledger) find(id string) (State, int, error) {
	state, err := l.store.Load()
	if err != nil {
		return State{}, -1, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return state, -1, nil
	}
	for i, tx := range state.Transactions {
		if tx.ID == id {
			return state, i, nil
		}
	}
	return state, -1, nil
}

func (l *Ledger) append(state State, tx Transaction) error {
	state.Transactions = append(append([]Transaction(nil), state.Transactions...), tx)
	if err := l.store.Save(state); err != nil {
		return fmt.Errorf("save payment ledger: %w", err)
	}
	return nil
}

func (l *Ledger) replace(state State, idx int, tx Transaction) error {
	state.Transactions[idx] = tx
	if err := l.store.Save(state); err != nil {
		return fmt.Errorf("save payment ledger: %w", err)
	}
	return nil
}

func (l *Ledger) decided(d Decision) Decision {
	if l.metrics != nil {
		l.metrics.RecordPaymentDecision(string(d.Status))
	}
	return d
}

// emit records an audit event. Failures are logged and otherwise ignored.
func (l *Ledger) emit(eventType string, tx Transaction, detail string) {
	if l.audit == nil {
		return
	}
	err := l.audit.Record(eventType, map[string]any{
		"transaction_id": tx.ID,
		"merchant":       tx.Merchant,
		"category":       tx.Category,
		"amount_cents":   tx.AmountCents,
		"amount_usd":     CentsToDollars(tx.AmountCents),
		"external_ref":   tx.ExternalRef,
		"detail":         detail,
	})
	if err != nil {
		l.logger.Warn("payment audit failed", "event", eventType, "error", err)
	}
}

func notFound() Decision {
	return Decision{Status: StatusDenied, Message: MsgNotFound}
}

type validation struct {
	allowed          bool
	reason           string
	remainingDaily   int64
	remainingMonthly int64
}

func denied(reason string, daily, monthly int64) validation {
	return validation{reason: reason, remainingDaily: daily, remainingMonthly: monthly}
}

// validate applies the policy checks in order; the first failure wins.
func validate(state State, merchant, category string, amountCents int64, now time.Time, excludeID string) validation {
	p := state.Policy
	switch {
	case amountCents <= 0:
		return denied(reasonAmount, 0, 0)
	case !p.AllowsMerchant(merchant):
		return denied(reasonMerchant, 0, 0)
	case !p.AllowsCategory(category):
		return denied(reasonCategory, 0, 0)
	case p.InQuietHours(now):
		return denied(reasonQuietHours, 0, 0)
	case amountCents > p.MaxPerTxCents:
		return denied(reasonPerTx, 0, 0)
	}

	daily, monthly := usage(state, now, excludeID)
	remainingDaily := max(0, p.MaxDailyCents-daily)
	remainingMonthly := max(0, p.MaxMonthlyCents-monthly)
	if amountCents > remainingDaily {
		return denied(reasonDailyBudget, remainingDaily, remainingMonthly)
	}
	if amountCents > remainingMonthly {
		return denied(reasonMonthlyBudget, remainingDaily, remainingMonthly)
	}
	return validation{allowed: true, remainingDaily: remainingDaily, remainingMonthly: remainingMonthly}
}

// usage sums AUTHORIZED and CAPTURED amounts updated today and this month
// in the policy timezone.
func usage(state State, now time.Time, excludeID string) (daily, monthly int64) {
	loc := state.Policy.Location()
	ty, tm, td := now.In(loc).Date()
	for _, tx := range state.Transactions {
		if excludeID != "" && tx.ID == excludeID {
			continue
		}
		if tx.Status != StatusAuthorized && tx.Status != StatusCaptured {
			continue
		}
		y, m, d := tx.UpdatedAt.In(loc).Date()
		if y == ty && m == tm {
			monthly += tx.AmountCents
			if d == td {
				daily += tx.AmountCents
			}
		}
	}
	return daily, monthly
}
