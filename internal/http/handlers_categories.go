package http

import (
	"net/http"
	"strings"

	"budgetflow/internal/core"
)

type categoryRequest struct {
	Name       string `json:"name"`
	LimitCents int64  `json:"limit_cents"`
}

type limitRequest struct {
	LimitCents int64 `json:"limit_cents"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, owner string) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Categories.Create(r.Context(), owner, sanitizeInput(req.Name), core.Cents(req.LimitCents))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCategoryDTO(c))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, owner string) {
	list, err := s.deps.Categories.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryDTO, 0, len(list))
	for _, c := range list {
		out = append(out, newCategoryDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetCategoryLimit(w http.ResponseWriter, r *http.Request, owner string) {
	var req limitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.deps.Categories.SetLimit(r.Context(), owner, r.PathValue("id"), core.Cents(req.LimitCents))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryDTO(c))
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request, owner string) {
	year, month, err := parseYearMonth(r.URL.Query(), s.deps.Clock(), s.deps.Calendar.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.deps.Categories.Spending(r.Context(), owner, year, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ledgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryDTO{
			CategoryID:  e.CategoryID,
			Year:        e.Year,
			Month:       e.Month,
			AmountCents: e.Amount.Cents,
			UpdatedAt:   e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request, owner string) {
	p, err := s.deps.Preferences.Get(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPreferencesDTO(p))
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request, owner string) {
	current, err := s.deps.Preferences.Get(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Start from the stored values so omitted fields keep them.
	req := newPreferencesDTO(current)
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := core.Preferences{
		Owner:             owner,
		Email:             strings.TrimSpace(req.Email),
		AlertEmail:        strings.TrimSpace(req.AlertEmail),
		WeeklyReportEmail: req.WeeklyReportEmail,
		Notifications:     req.Notifications,
	}
	if req.NetIncomeCeilingCents != nil {
		ceiling := core.Cents(*req.NetIncomeCeilingCents)
		p.NetIncomeCeiling = &ceiling
	}
	saved, err := s.deps.Preferences.Save(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPreferencesDTO(saved))
}
