package alerts

import (
	"fmt"
	"strings"

	"budgetflow/internal/core"
)

// Renderer produces the subject and body of an alert notification.
type Renderer func(a core.Alert) (subject, body string)

var renderers = map[core.AlertType]Renderer{
	core.AlertSpendWarning:        renderSpend,
	core.AlertSpendExceeded:       renderSpend,
	core.AlertUnusualExpense:      renderUnusual,
	core.AlertBurstExpense:        renderBurst,
	core.AlertNetIncomeCeiling:    renderNet,
	core.AlertInsufficientBalance: renderNet,
}

// RegisterRenderer overrides the renderer for t.
func RegisterRenderer(t core.AlertType, r Renderer) {
	renderers[t] = r
}

// Render formats a notification for a, falling back to the alert message.
func Render(a core.Alert) (string, string) {
	if r, ok := renderers[a.Type]; ok {
		return r(a)
	}
	return "BudgetFlow: " + titleOf(a.Type), a.Message
}

func titleOf(t core.AlertType) string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func euros(m core.Money) string {
	return "€" + m.String()
}

func renderSpend(a core.Alert) (string, string) {
	var name string
	var spent, limit core.Money
	var pct float64
	switch p := a.Payload.(type) {
	case core.SpendWarning:
		name, spent, limit, pct = p.CategoryName, p.Spent, p.Limit, p.Percentage
	case core.SpendExceeded:
		name, spent, limit, pct = p.CategoryName, p.Spent, p.Limit, p.Percentage
	default:
		return "BudgetFlow: " + titleOf(a.Type), a.Message
	}
	subject := fmt.Sprintf("BudgetFlow: %s at %.0f%% of its limit", name, pct)
	if a.Type == core.AlertSpendExceeded {
		subject = fmt.Sprintf("BudgetFlow: %s limit exceeded", name)
	}
	body := fmt.Sprintf("%s\n\nSpent this month: %s\nMonthly limit: %s\nUsed: %.0f%%",
		a.Message, euros(spent), euros(limit), pct)
	return subject, body
}

func renderUnusual(a core.Alert) (string, string) {
	p, ok := a.Payload.(core.UnusualExpense)
	if !ok {
		return "BudgetFlow: Unusual Expense", a.Message
	}
	body := fmt.Sprintf("%s\n\nAmount: %s\nAverage of the previous %d expenses: %s",
		a.Message, euros(p.Amount), p.Samples, euros(p.Average))
	return "BudgetFlow: unusual expense in " + p.CategoryName, body
}

func renderBurst(a core.Alert) (string, string) {
	p, ok := a.Payload.(core.BurstExpense)
	if !ok {
		return "BudgetFlow: Burst Expense", a.Message
	}
	body := fmt.Sprintf("%s\n\nExpenses recorded in the last %dh: %d", a.Message, p.WindowHours, p.Count)
	return "BudgetFlow: many expenses in a short time", body
}

func renderNet(a core.Alert) (string, string) {
	var scope core.Scope
	var income, expenses, net, ceiling core.Money
	switch p := a.Payload.(type) {
	case core.NetIncomeCeiling:
		scope, income, expenses, net, ceiling = p.Scope, p.Income, p.Expenses, p.Net, p.Ceiling
	case core.InsufficientBalance:
		scope, income, expenses, net, ceiling = p.Scope, p.Income, p.Expenses, p.Net, p.Ceiling
	default:
		return "BudgetFlow: " + titleOf(a.Type), a.Message
	}
	subject := fmt.Sprintf("BudgetFlow: net income ceiling exceeded (%s)", scope)
	if a.Type == core.AlertInsufficientBalance {
		subject = fmt.Sprintf("BudgetFlow: insufficient balance (%s)", scope)
	}
	body := fmt.Sprintf("%s\n\nIncome: %s\nExpenses: %s\nNet: %s\nCeiling: %s",
		a.Message, euros(income), euros(expenses), euros(net), euros(ceiling))
	return subject, body
}
