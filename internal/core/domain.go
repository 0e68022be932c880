package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

type (
	// Kind discriminates expense and income transactions. Amounts are always
	// stored as absolute values; the kind carries the sign.
	Kind string

	// ChangeType names the mutation that produced a TransactionWritten event.
	ChangeType string

	Money struct {
		Cents int64 `json:"cents"`
	}

	Category struct {
		ID        string
		Owner     string
		Name      string
		Limit     Money // monthly spending limit, zero means unlimited
		CreatedAt time.Time
	}

	Transaction struct {
		ID          string
		Owner       string
		CategoryID  string
		Kind        Kind
		Amount      Money
		Date        time.Time // occurrence date, decides the ledger bucket
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// TransactionWritten is raised after a successful transaction write.
	// Previous is set for updates only.
	TransactionWritten struct {
		Change   ChangeType
		Current  Transaction
		Previous *Transaction
	}

	// TransactionFilter narrows a transaction listing. Zero fields do not filter;
	// From is inclusive and To exclusive.
	TransactionFilter struct {
		CategoryID string
		Kind       Kind
		From       time.Time
		To         time.Time
		Limit      int
	}

	LedgerEntry struct {
		Owner      string
		CategoryID string
		Year       int
		Month      int // 1-12
		Amount     Money
		UpdatedAt  time.Time
	}

	NotificationSettings struct {
		Email                bool `json:"email"`
		BudgetAlerts         bool `json:"budget_alerts"`
		UnusualExpenses      bool `json:"unusual_expenses"`
		SubscriptionPayments bool `json:"subscription_payments"`
		MonthlyReports       bool `json:"monthly_reports"`
	}

	Preferences struct {
		Owner             string
		Email             string
		AlertEmail        string
		NetIncomeCeiling  *Money
		WeeklyReportEmail bool
		Notifications     NotificationSettings
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidLimit       = errors.New("invalid category limit")
	ErrEmptyOwner         = errors.New("empty owner")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrInvalidCeiling     = errors.New("invalid net income ceiling")
	ErrNotFound           = errors.New("not found")
)

// IsValidation reports whether err is one of the input validation errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidKind, ErrInvalidDate, ErrInvalidLimit,
		ErrEmptyOwner, ErrEmptyCategory, ErrEmptyName, ErrEmptyDescription,
		ErrDescriptionTooLong, ErrInvalidCeiling,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// DefaultNotificationSettings mirrors the defaults a new account starts with.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Email:                true,
		BudgetAlerts:         true,
		UnusualExpenses:      true,
		SubscriptionPayments: true,
		MonthlyReports:       false,
	}
}

// DefaultPreferences returns the preferences assumed for an owner that never saved any.
func DefaultPreferences(owner string) Preferences {
	return Preferences{
		Owner:         owner,
		Notifications: DefaultNotificationSettings(),
	}
}

// Recipient returns the address alerts are delivered to.
func (p Preferences) Recipient() string {
	if strings.TrimSpace(p.AlertEmail) != "" {
		return strings.TrimSpace(p.AlertEmail)
	}
	return strings.TrimSpace(p.Email)
}

func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Limit.Cents < 0 {
		return ErrInvalidLimit
	}
	return nil
}

func (p Preferences) Validate() error {
	if strings.TrimSpace(p.Owner) == "" {
		return ErrEmptyOwner
	}
	if p.NetIncomeCeiling != nil && p.NetIncomeCeiling.Cents < 0 {
		return ErrInvalidCeiling
	}
	return nil
}

// HasLimit reports whether the category is subject to threshold checks.
func (c Category) HasLimit() bool {
	return c.Limit.Cents > 0
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Owner) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

// IsExpense reports whether the transaction feeds the spending ledger.
func (t Transaction) IsExpense() bool {
	return t.Kind == KindExpense
}
