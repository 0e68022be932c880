package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/middleware/trace"
	"budgetflow/internal/services"
)

const dateLayout = "2006-01-02"

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to statuses. Unknown errors are logged and
// reported as 500 without their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case core.IsValidation(err):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &maxErr):
		status, msg = http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, errBadRequest):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
	}
	writeJSON(w, status, errorBody{Error: msg, RequestID: trace.GetRequestID(r.Context())})
}

type transactionDTO struct {
	ID          string    `json:"id"`
	CategoryID  string    `json:"category_id"`
	Kind        core.Kind `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newTransactionDTO(t core.Transaction, loc *time.Location) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		CategoryID:  t.CategoryID,
		Kind:        t.Kind,
		AmountCents: t.Amount.Cents,
		Date:        t.Date.In(loc).Format(dateLayout),
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type categoryDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LimitCents int64     `json:"limit_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

func newCategoryDTO(c core.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name, LimitCents: c.Limit.Cents, CreatedAt: c.CreatedAt}
}

type ledgerEntryDTO struct {
	CategoryID  string    `json:"category_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	AmountCents int64     `json:"amount_cents"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type preferencesDTO struct {
	Email                 string                    `json:"email"`
	AlertEmail            string                    `json:"alert_email"`
	NetIncomeCeilingCents *int64                    `json:"net_income_ceiling_cents"`
	WeeklyReportEmail     bool                      `json:"weekly_report_email"`
	Notifications         core.NotificationSettings `json:"notifications"`
}

func newPreferencesDTO(p core.Preferences) preferencesDTO {
	dto := preferencesDTO{
		Email:             p.Email,
		AlertEmail:        p.AlertEmail,
		WeeklyReportEmail: p.WeeklyReportEmail,
		Notifications:     p.Notifications,
	}
	if p.NetIncomeCeiling != nil {
		c := p.NetIncomeCeiling.Cents
		dto.NetIncomeCeilingCents = &c
	}
	return dto
}

type alertDTO struct {
	ID          string          `json:"id"`
	Type        core.AlertType  `json:"type"`
	CategoryID  string          `json:"category_id,omitempty"`
	Message     string          `json:"message"`
	Payload     json.RawMessage `json:"payload"`
	PeriodStart time.Time       `json:"period_start"`
	Read        bool            `json:"read"`
	Resolved    bool            `json:"resolved"`
	CreatedAt   time.Time       `json:"created_at"`
}

func newAlertDTO(a core.Alert) (alertDTO, error) {
	payload, err := core.EncodePayload(a.Payload)
	if err != nil {
		return alertDTO{}, err
	}
	return alertDTO{
		ID:          a.ID,
		Type:        a.Type,
		CategoryID:  a.CategoryID,
		Message:     a.Message,
		Payload:     payload,
		PeriodStart: a.PeriodStart,
		Read:        a.Read,
		Resolved:    a.Resolved,
		CreatedAt:   a.CreatedAt,
	}, nil
}

func newAlertDTOs(list []core.Alert) ([]alertDTO, error) {
	out := make([]alertDTO, 0, len(list))
	for _, a := range list {
		dto, err := newAlertDTO(a)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

type checkReportDTO struct {
	RanAt  time.Time  `json:"ran_at"`
	Alerts []alertDTO `json:"alerts"`
	Errors []string   `json:"errors,omitempty"`
}

func newCheckReportDTO(rep services.CheckReport, runErr error) (checkReportDTO, error) {
	alerts, err := newAlertDTOs(rep.Alerts)
	if err != nil {
		return checkReportDTO{}, err
	}
	dto := checkReportDTO{RanAt: rep.RanAt, Alerts: alerts}
	if runErr != nil {
		dto.Errors = []string{runErr.Error()}
	}
	return dto, nil
}
