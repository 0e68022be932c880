package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type AlertType string

const (
	AlertSpendWarning        AlertType = "spend_warning"
	AlertSpendExceeded       AlertType = "spend_exceeded"
	AlertUnusualExpense      AlertType = "unusual_expense"
	AlertBurstExpense        AlertType = "burst_expense"
	AlertNetIncomeCeiling    AlertType = "net_income_ceiling"
	AlertInsufficientBalance AlertType = "insufficient_balance"

	// Informational kinds raised by external producers.
	AlertSubscriptionCreated  AlertType = "subscription_created"
	AlertSubscriptionUpdated  AlertType = "subscription_updated"
	AlertSubscriptionDeleted  AlertType = "subscription_deleted"
	AlertSubscriptionReminder AlertType = "subscription_reminder"
	AlertPaymentFailed        AlertType = "payment_failed"
	AlertMonthlyReport        AlertType = "monthly_report"
	AlertWeeklyReport         AlertType = "weekly_report"
)

// Scope names the window a net-position alert was computed over.
type Scope string

const (
	ScopeWeek  Scope = "week"
	ScopeMonth Scope = "month"
	ScopeTotal Scope = "total"
)

var ErrDuplicateAlert = errors.New("duplicate alert")

// AlertPayload is the closed set of typed alert bodies. Each implementation
// reports its own AlertType; Lifecycle covers the informational kinds.
type AlertPayload interface {
	AlertType() AlertType
}

type SpendWarning struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Spent        Money   `json:"spent"`
	Limit        Money   `json:"limit"`
	Percentage   float64 `json:"percentage"`
}

type SpendExceeded struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Spent        Money   `json:"spent"`
	Limit        Money   `json:"limit"`
	Percentage   float64 `json:"percentage"`
}

type UnusualExpense struct {
	TransactionID string `json:"transaction_id"`
	CategoryID    string `json:"category_id"`
	CategoryName  string `json:"category_name"`
	Amount        Money  `json:"amount"`
	Average       Money  `json:"average"`
	Samples       int    `json:"samples"`
}

type BurstExpense struct {
	Count       int `json:"count"`
	WindowHours int `json:"window_hours"`
}

type NetIncomeCeiling struct {
	Scope    Scope `json:"scope"`
	Income   Money `json:"income"`
	Expenses Money `json:"expenses"`
	Net      Money `json:"net"`
	Ceiling  Money `json:"ceiling"`
}

type InsufficientBalance struct {
	Scope    Scope `json:"scope"`
	Income   Money `json:"income"`
	Expenses Money `json:"expenses"`
	Net      Money `json:"net"`
	Ceiling  Money `json:"ceiling"`
}

type Lifecycle struct {
	Kind    AlertType `json:"kind"`
	Subject string    `json:"subject"`
	Detail  string    `json:"detail,omitempty"`
}

func (SpendWarning) AlertType() AlertType        { return AlertSpendWarning }
func (SpendExceeded) AlertType() AlertType       { return AlertSpendExceeded }
func (UnusualExpense) AlertType() AlertType      { return AlertUnusualExpense }
func (BurstExpense) AlertType() AlertType        { return AlertBurstExpense }
func (NetIncomeCeiling) AlertType() AlertType    { return AlertNetIncomeCeiling }
func (InsufficientBalance) AlertType() AlertType { return AlertInsufficientBalance }
func (l Lifecycle) AlertType() AlertType         { return l.Kind }

type Alert struct {
	ID          string
	Owner       string
	Type        AlertType
	CategoryID  string
	Message     string
	Payload     AlertPayload
	DedupKey    string
	PeriodStart time.Time
	Read        bool
	Resolved    bool
	CreatedAt   time.Time
}

// AlertDraft is what an evaluator hands to the dispatcher. PeriodStart scopes
// the dedup key: two drafts with the same owner, type, key and period are the
// same alert.
type AlertDraft struct {
	Owner       string
	CategoryID  string
	Message     string
	Payload     AlertPayload
	DedupKey    string
	PeriodStart time.Time
}

type AlertFilter struct {
	UnreadOnly     bool
	UnresolvedOnly bool
	Limit          int
}

// Notification is the rendered, addressable form of an alert.
type Notification struct {
	AlertID   string    `json:"alert_id"`
	Owner     string    `json:"owner"`
	Type      AlertType `json:"type"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (d AlertDraft) Validate() error {
	if d.Owner == "" {
		return ErrEmptyOwner
	}
	if d.Payload == nil {
		return errors.New("alert draft without payload")
	}
	if d.DedupKey == "" {
		return errors.New("alert draft without dedup key")
	}
	if d.PeriodStart.IsZero() {
		return errors.New("alert draft without period start")
	}
	return nil
}

// Allows reports whether the settings permit outbound delivery of t.
func (n NotificationSettings) Allows(t AlertType) bool {
	if !n.Email {
		return false
	}
	switch t {
	case AlertSpendWarning, AlertSpendExceeded, AlertNetIncomeCeiling, AlertInsufficientBalance:
		return n.BudgetAlerts
	case AlertUnusualExpense, AlertBurstExpense:
		return n.UnusualExpenses
	case AlertSubscriptionCreated, AlertSubscriptionUpdated, AlertSubscriptionDeleted,
		AlertSubscriptionReminder, AlertPaymentFailed:
		return n.SubscriptionPayments
	case AlertMonthlyReport, AlertWeeklyReport:
		return n.MonthlyReports
	default:
		return true
	}
}

func (t AlertType) Valid() bool {
	switch t {
	case AlertSpendWarning, AlertSpendExceeded, AlertUnusualExpense, AlertBurstExpense,
		AlertNetIncomeCeiling, AlertInsufficientBalance,
		AlertSubscriptionCreated, AlertSubscriptionUpdated, AlertSubscriptionDeleted,
		AlertSubscriptionReminder, AlertPaymentFailed, AlertMonthlyReport, AlertWeeklyReport:
		return true
	}
	return false
}

// Informational reports whether t is raised by an external producer rather
// than by an evaluator.
func (t AlertType) Informational() bool {
	switch t {
	case AlertSubscriptionCreated, AlertSubscriptionUpdated, AlertSubscriptionDeleted,
		AlertSubscriptionReminder, AlertPaymentFailed, AlertMonthlyReport, AlertWeeklyReport:
		return true
	}
	return false
}

// EncodePayload serialises a payload for storage.
func EncodePayload(p AlertPayload) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil payload")
	}
	return json.Marshal(p)
}

// DecodePayload restores the concrete payload stored under type t.
func DecodePayload(t AlertType, data []byte) (AlertPayload, error) {
	var p AlertPayload
	switch t {
	case AlertSpendWarning:
		var v SpendWarning
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		p = v
	case AlertSpendExceeded:
		var v SpendExceeded
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		p = v
	case AlertUnusualExpense:
		var v UnusualExpense
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		p = v
	case AlertBurstExpense:
		var v BurstExpense
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		p = v
	case AlertNetIncomeCeiling:
		var v NetIncomeCeiling
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		p = v
	case AlertInsufficientBalance:
		var v InsufficientBalance
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		p = v
	default:
		if !t.Valid() {
			return nil, fmt.Errorf("unknown alert type %q", t)
		}
		var v Lifecycle
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		v.Kind = t
		p = v
	}
	return p, nil
}
