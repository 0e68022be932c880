package http

import (
	"net/http"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input(s.deps.Calendar.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.deps.Transactions.Create(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTransactionDTO(tx, s.deps.Calendar.Location))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, owner string) {
	f, err := parseTransactionFilter(r.URL.Query(), s.deps.Calendar.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.deps.Transactions.List(r.Context(), owner, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionDTO, 0, len(list))
	for _, tx := range list {
		out = append(out, newTransactionDTO(tx, s.deps.Calendar.Location))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	tx, err := s.deps.Transactions.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionDTO(tx, s.deps.Calendar.Location))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input(s.deps.Calendar.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.deps.Transactions.Update(r.Context(), owner, r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionDTO(tx, s.deps.Calendar.Location))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, owner string) {
	if err := s.deps.Transactions.Delete(r.Context(), owner, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
