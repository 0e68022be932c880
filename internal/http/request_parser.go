package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budgetflow/internal/core"
	"budgetflow/internal/services"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type ownerHandler func(w http.ResponseWriter, r *http.Request, owner string)

// withOwner rejects requests without an owner header.
func (s *Server) withOwner(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := sanitizeInput(r.Header.Get(HeaderOwnerID))
		if owner == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + HeaderOwnerID + " header"})
			return
		}
		next(w, r, owner)
	}
}

// decodeJSON reads one JSON object into v, rejecting unknown fields and
// trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return err
		case errors.Is(err, io.EOF):
			return badRequest("empty request body")
		}
		return badRequest("invalid JSON body: %v", err)
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// parseDate accepts YYYY-MM-DD in loc, or an RFC3339 timestamp.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.ErrInvalidDate
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
}

// parseUpperBound parses an exclusive "to" bound. A bare date includes that
// whole day, so the bound moves to the following midnight.
func parseUpperBound(s string, loc *time.Location) (time.Time, error) {
	if d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc); err == nil {
		return d.AddDate(0, 0, 1), nil
	}
	return parseDate(s, loc)
}

type transactionRequest struct {
	CategoryID  string    `json:"category_id"`
	Kind        core.Kind `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
}

func (req transactionRequest) input(loc *time.Location) (services.TransactionInput, error) {
	date, err := parseDate(req.Date, loc)
	if err != nil {
		return services.TransactionInput{}, err
	}
	return services.TransactionInput{
		CategoryID:  sanitizeInput(req.CategoryID),
		Kind:        core.Kind(strings.ToLower(sanitizeInput(string(req.Kind)))),
		Amount:      core.Cents(req.AmountCents),
		Date:        date,
		Description: sanitizeInput(req.Description),
	}, nil
}

func parseTransactionFilter(q url.Values, loc *time.Location) (core.TransactionFilter, error) {
	f := core.TransactionFilter{
		CategoryID: sanitizeInput(q.Get("category_id")),
		Kind:       core.Kind(sanitizeInput(q.Get("kind"))),
	}
	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = parseDate(v, loc); err != nil {
			return f, err
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = parseUpperBound(v, loc); err != nil {
			return f, err
		}
	}
	if f.Limit, err = parseLimit(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

func parseAlertFilter(q url.Values) (core.AlertFilter, error) {
	f := core.AlertFilter{}
	var err error
	if f.UnreadOnly, err = parseBool(q, "unread"); err != nil {
		return f, err
	}
	if f.UnresolvedOnly, err = parseBool(q, "unresolved"); err != nil {
		return f, err
	}
	if f.Limit, err = parseLimit(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

func parseBool(q url.Values, key string) (bool, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest("invalid %s %q", key, v)
	}
	return b, nil
}

func parseLimit(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 1000 {
		return 0, badRequest("invalid limit %q: must be between 0 and 1000", v)
	}
	return n, nil
}

// parseYearMonth reads year and month, defaulting to the month of now in loc.
func parseYearMonth(q url.Values, now time.Time, loc *time.Location) (int, int, error) {
	local := now.In(loc)
	year, month := local.Year(), int(local.Month())
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1900 || y > 9999 {
			return 0, 0, fmt.Errorf("%w: year %q", core.ErrInvalidDate, v)
		}
		year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, fmt.Errorf("%w: month %q", core.ErrInvalidDate, v)
		}
		month = m
	}
	return year, month, nil
}
