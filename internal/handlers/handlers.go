package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"procurement/db"
	"procurement/internal/audit"
	"procurement/internal/auth"
	"procurement/internal/files"
	"procurement/internal/notify"
	"procurement/internal/scoring"
)

// Stable error kinds returned in JSON error bodies.
const (
	errUnauthorized = "unauthorized"
	errValidation   = "validation_error"
	errNotFound     = "not_found"
	errForbidden    = "forbidden"
	errInvalidState = "invalid_state"
	errConflict     = "conflict"
	errInternal     = "internal_error"
)

// Handler wires storage and the external collaborators into the HTTP API.
type Handler struct {
	Store    StorageInterface
	Scorer   scoring.VendorScorer
	Auditor  audit.Auditor
	Notifier notify.Notifier
	Files    files.Store
}

func NewHandler(store StorageInterface, scorer scoring.VendorScorer, auditor audit.Auditor, notifier notify.Notifier, fileStore files.Store) *Handler {
	return &Handler{
		Store:    store,
		Scorer:   scorer,
		Auditor:  auditor,
		Notifier: notifier,
		Files:    fileStore,
	}
}

// PingHandler answers "ok" for liveness checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// principal resolves the authenticated identity from the X-User-ID header.
// Authentication happens upstream; the handler trusts the id and loads the
// role from storage.
func (h *Handler) principal(r *http.Request) (auth.Principal, error) {
	idStr := r.Header.Get("X-User-ID")
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return auth.Principal{}, errors.New("missing or invalid X-User-ID header")
	}
	user, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		return auth.Principal{}, errors.New("unknown user")
	}
	role := auth.Role(user.Role)
	if !auth.ValidRole(role) {
		return auth.Principal{}, errors.New("unknown role")
	}
	return auth.Principal{ID: id, Role: role}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": kind, "message": message})
}

// writeStorageError maps storage failures: missing rows are not_found,
// everything else is an internal failure without leaked detail.
func writeStorageError(w http.ResponseWriter, err error, entity string) {
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, errNotFound, entity+" not found")
		return
	}
	log.Printf("storage error: %v", err)
	writeError(w, http.StatusInternalServerError, errInternal, "internal server error")
}

// parseDate accepts both date-only and RFC 3339 timestamps.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// isMultipart reports whether the request carries form-data uploads.
func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// hasUploads reports whether the parsed multipart form carries file parts
// under field.
func hasUploads(r *http.Request, field string) bool {
	return r.MultipartForm != nil && len(r.MultipartForm.File[field]) > 0
}

// saveUploads stores every file posted under field and returns their
// attachment references.
func (h *Handler) saveUploads(r *http.Request, field string) ([]db.Attachment, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var atts []db.Attachment
	for _, fh := range r.MultipartForm.File[field] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		stored, err := h.Files.Save(fh.Filename, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		atts = append(atts, db.Attachment{FileName: stored.FileName, FilePath: stored.FilePath})
	}
	return atts, nil
}

// notifyQuietly delivers a message and only logs on failure. Notification
// never aborts the operation it is attached to.
func (h *Handler) notifyQuietly(recipient, subject, body string) {
	if recipient == "" {
		return
	}
	if err := h.Notifier.Notify(recipient, subject, body); err != nil {
		log.Printf("failed to notify %s: %v", recipient, err)
	}
}
