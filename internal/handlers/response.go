package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/compliance"
	"github.com/ukydev/fleet-ledger/internal/export"
	"github.com/ukydev/fleet-ledger/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps the error kinds of the service layer onto HTTP.
// Anything unrecognised is logged and reported as a bare 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if compliance.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, "Record was modified concurrently, retry", err)
	case errors.Is(err, models.ErrPartialWrite):
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Partial write")
		writeError(w, http.StatusInternalServerError, "Operation partially applied", err)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		h.log.WithError(err).WithField("path", r.URL.Path).Warn("Store unavailable")
		writeError(w, http.StatusServiceUnavailable, "Store unavailable", nil)
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// writeTable replies with the table as JSON, or as a workbook download when
// the request asks for ?format=xlsx.
func (h *Handler) writeTable(w http.ResponseWriter, r *http.Request, t export.Table) {
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		writeJSON(w, http.StatusOK, t)
	case "xlsx":
		var buf bytes.Buffer
		if err := export.WriteXLSX(&buf, t); err != nil {
			h.log.WithError(err).WithField("title", t.Title).Error("Failed to encode workbook")
			writeError(w, http.StatusInternalServerError, "Failed to encode workbook", nil)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+fileName(t.Title)+`.xlsx"`)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	default:
		writeError(w, http.StatusBadRequest, "Unsupported format "+format, nil)
	}
}

// fileName turns a table title into a download name: lower case, with every
// run of other characters collapsed to a single dash.
func fileName(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		return "export"
	}
	return name
}

func (h *Handler) requestLog(r *http.Request) *logrus.Entry {
	entry := h.log.WithField("path", r.URL.Path)
	if claims, ok := userFrom(r); ok {
		entry = entry.WithField("user_id", claims.UserID)
	}
	return entry
}
