package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paisa/internal/core"
	"paisa/internal/store"
)

const maxBodyBytes = 1 << 20

var errBadRequestBody = errors.New("invalid request body")

// decodeJSON reads and decodes the request body into dst, rejecting unknown
// fields and oversized payloads.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequestBody, err)
	}
	return nil
}

// parseDate parses a date string in YYYY-MM-DD or RFC 3339 format.
func parseDate(dateStr string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", dateStr); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", core.ErrInvalidDate, dateStr)
	}
	return t, nil
}

// parseTransactionFilter builds a store filter from list query parameters.
func parseTransactionFilter(r *http.Request) store.TransactionFilter {
	q := r.URL.Query()
	f := store.TransactionFilter{
		Kind:          core.TransactionKind(strings.TrimSpace(q.Get("kind"))),
		Status:        core.DueStatus(strings.TrimSpace(q.Get("status"))),
		SourceID:      core.CanonicalID(strings.TrimSpace(q.Get("source_id"))),
		ReferenceKind: core.ReferenceKind(strings.TrimSpace(q.Get("reference_kind"))),
		ReferenceID:   strings.TrimSpace(q.Get("reference_id")),
	}
	if q.Get("order") != "asc" {
		f.OrderByDateDesc = true
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	return f
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
