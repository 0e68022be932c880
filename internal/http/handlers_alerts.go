package http

import (
	"net/http"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request, owner string) {
	f, err := parseAlertFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.deps.Inbox.List(r.Context(), owner, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := newAlertDTOs(list)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request, owner string) {
	a, err := s.deps.Inbox.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	dto, err := newAlertDTO(a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.deps.Inbox.MarkRead(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request, owner string) {
	n, err := s.deps.Inbox.MarkAllRead(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handleMarkResolved(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.deps.Inbox.MarkResolved(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.deps.Inbox.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunChecks runs the periodic evaluators now. Partial failures still
// return the alerts that were created, with the failures listed.
func (s *Server) handleRunChecks(w http.ResponseWriter, r *http.Request, owner string) {
	report, runErr := s.deps.Checks.RunChecks(r.Context(), owner, s.deps.Clock())
	dto, err := newCheckReportDTO(report, runErr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if runErr != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, dto)
}
