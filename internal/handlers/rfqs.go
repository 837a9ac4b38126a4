package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"procurement/db"
	"procurement/internal/auth"

	"github.com/go-chi/chi/v5"
)

var rfqCategories = map[string]bool{
	"Office Supplies": true,
	"IT Hardware":     true,
	"Raw Materials":   true,
}

var rfqRequestTypes = map[string]bool{"RFQ": true, "RFP": true}

// rfqInput carries a create or partial-update request. Nil means "not sent".
type rfqInput struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	RequestType *string  `json:"requestType"`
	Budget      *float64 `json:"budget"`
	Deadline    *string  `json:"deadline"`
	Category    *string  `json:"category"`
	Status      *string  `json:"status"`
}

// readRfqInput decodes either a JSON body or a multipart form with
// "attachments" file parts.
func (h *Handler) readRfqInput(r *http.Request) (rfqInput, []db.Attachment, error) {
	var in rfqInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return in, nil, fmt.Errorf("invalid multipart form: %v", err)
		}
		strField := func(name string) *string {
			if v := r.FormValue(name); v != "" {
				return &v
			}
			return nil
		}
		in.Title = strField("title")
		in.Description = strField("description")
		in.RequestType = strField("requestType")
		in.Deadline = strField("deadline")
		in.Category = strField("category")
		in.Status = strField("status")
		if v := r.FormValue("budget"); v != "" {
			budget, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return in, nil, fmt.Errorf("invalid budget: %v", err)
			}
			in.Budget = &budget
		}
		atts, err := h.saveUploads(r, "attachments")
		if err != nil {
			return in, nil, fmt.Errorf("failed to store attachments: %v", err)
		}
		return in, atts, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, 1048576)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, nil, fmt.Errorf("invalid JSON format")
	}
	return in, nil, nil
}

// CreateRfqHandler handles POST /api/rfq. Buyers only. All fields are
// required; vendors are notified of the new posting asynchronously.
func (h *Handler) CreateRfqHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}
	if p.Role != auth.RoleBuyer {
		writeError(w, http.StatusForbidden, errForbidden, "only buyers may create RFQs")
		return
	}

	in, atts, err := h.readRfqInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	if in.Title == nil || in.Description == nil || in.RequestType == nil ||
		in.Budget == nil || in.Deadline == nil || in.Category == nil {
		writeError(w, http.StatusBadRequest, errValidation, "please enter all required fields for the RFQ")
		return
	}
	if !rfqRequestTypes[*in.RequestType] {
		writeError(w, http.StatusBadRequest, errValidation, "requestType must be RFQ or RFP")
		return
	}
	if *in.Budget <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "budget must be positive")
		return
	}
	if !rfqCategories[*in.Category] {
		writeError(w, http.StatusBadRequest, errValidation, "invalid category")
		return
	}
	deadline, err := parseDate(*in.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, "invalid deadline date")
		return
	}

	rfq := &db.Rfq{
		Title:       *in.Title,
		Description: *in.Description,
		RequestType: *in.RequestType,
		Budget:      *in.Budget,
		Deadline:    deadline,
		Category:    *in.Category,
		Status:      "open",
		BuyerID:     p.ID,
		Attachments: atts,
	}
	if rfq.Attachments == nil {
		rfq.Attachments = []db.Attachment{}
	}

	if err := h.Store.CreateRfq(r.Context(), rfq); err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}

	// Vendor fan-out runs in the background; a delivery failure never
	// fails the create.
	go h.notifyVendorsOfRfq(*rfq)

	writeJSON(w, http.StatusCreated, rfq)
}

func (h *Handler) notifyVendorsOfRfq(rfq db.Rfq) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	emails, err := h.Store.GetVendorEmails(ctx)
	if err != nil {
		log.Printf("failed to list vendors for RFQ %d notification: %v", rfq.ID, err)
		return
	}
	subject := fmt.Sprintf("New %s Posted: %s", rfq.RequestType, rfq.Title)
	body := fmt.Sprintf("A new %s titled %q has been posted. Deadline: %s\n\n%s",
		rfq.RequestType, rfq.Title, rfq.Deadline.Format("2006-01-02"), rfq.Description)
	for _, email := range emails {
		h.notifyQuietly(email, subject, body)
	}
}

// GetRfqsHandler handles GET /api/rfq. Buyers see their own, vendors see
// open postings, admins see everything. Optional category/status filters.
func (h *Handler) GetRfqsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	vis := auth.RfqVisibility(p)
	filter := db.RfqFilter{BuyerID: vis.BuyerID, OpenOnly: vis.OpenOnly}

	if category := r.URL.Query().Get("category"); category != "" && rfqCategories[category] {
		filter.Category = category
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		switch status {
		case "open", "in_progress", "closed":
			filter.Status = status
		}
	}

	rfqs, err := h.Store.ListRfqs(r.Context(), filter)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	writeJSON(w, http.StatusOK, rfqs)
}

// GetRfqHandler handles GET /api/rfq/{rfqId} with the same visibility rule.
func (h *Handler) GetRfqHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	rfqID, err := strconv.Atoi(chi.URLParam(r, "rfqId"))
	if err != nil || rfqID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid rfqId")
		return
	}

	rfq, err := h.Store.GetRfq(r.Context(), rfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if !auth.CanViewRfq(p, rfq.BuyerID, rfq.Status) {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to view this RFQ")
		return
	}
	writeJSON(w, http.StatusOK, rfq)
}

// validRfqTransition enforces the monotonic open -> in_progress -> closed
// machine. Same-status writes are no-ops.
func validRfqTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case "open":
		return to == "in_progress"
	case "in_progress":
		return to == "closed"
	}
	return false
}

// UpdateRfqHandler handles PUT /api/rfq/{rfqId}. Only the owning buyer;
// unset fields keep their values, attachments are additive.
func (h *Handler) UpdateRfqHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	rfqID, err := strconv.Atoi(chi.URLParam(r, "rfqId"))
	if err != nil || rfqID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid rfqId")
		return
	}

	rfq, err := h.Store.GetRfq(r.Context(), rfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if !auth.CanMutateRfq(p, rfq.BuyerID) {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to update this RFQ")
		return
	}

	in, atts, err := h.readRfqInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	if in.Title != nil {
		rfq.Title = *in.Title
	}
	if in.Description != nil {
		rfq.Description = *in.Description
	}
	if in.Budget != nil {
		if *in.Budget <= 0 {
			writeError(w, http.StatusBadRequest, errValidation, "budget must be positive")
			return
		}
		rfq.Budget = *in.Budget
	}
	if in.Deadline != nil {
		deadline, err := parseDate(*in.Deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, errValidation, "invalid deadline date")
			return
		}
		rfq.Deadline = deadline
	}
	if in.Category != nil {
		if !rfqCategories[*in.Category] {
			writeError(w, http.StatusBadRequest, errValidation, "invalid category")
			return
		}
		rfq.Category = *in.Category
	}
	if in.Status != nil {
		if !validRfqTransition(rfq.Status, *in.Status) {
			writeError(w, http.StatusConflict, errInvalidState,
				fmt.Sprintf("cannot change RFQ status from %s to %s", rfq.Status, *in.Status))
			return
		}
		rfq.Status = *in.Status
	}

	if err := h.Store.UpdateRfq(r.Context(), rfq); err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if len(atts) > 0 {
		if err := h.Store.AddRfqAttachments(r.Context(), rfq.ID, atts); err != nil {
			writeStorageError(w, err, "RFQ")
			return
		}
		rfq.Attachments = append(rfq.Attachments, atts...)
	}
	writeJSON(w, http.StatusOK, rfq)
}

// DeleteRfqHandler handles DELETE /api/rfq/{rfqId}. Only the owning buyer,
// only while open and before any quotation exists.
func (h *Handler) DeleteRfqHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	rfqID, err := strconv.Atoi(chi.URLParam(r, "rfqId"))
	if err != nil || rfqID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid rfqId")
		return
	}

	rfq, err := h.Store.GetRfq(r.Context(), rfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if !auth.CanMutateRfq(p, rfq.BuyerID) {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to delete this RFQ")
		return
	}
	if rfq.Status != "open" {
		writeError(w, http.StatusConflict, errInvalidState, "only open RFQs can be deleted")
		return
	}
	count, err := h.Store.CountQuotationsForRfq(r.Context(), rfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if count > 0 {
		writeError(w, http.StatusConflict, errInvalidState, "RFQ already has quotations and cannot be deleted")
		return
	}

	if err := h.Store.DeleteRfq(r.Context(), rfqID); err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "RFQ deleted successfully"})
}

// GetRfqQuotationsHandler handles GET /api/rfq/{rfqId}/quotations, returning
// the RFQ's quotations ordered by vendor score, visibility-filtered.
func (h *Handler) GetRfqQuotationsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	rfqID, err := strconv.Atoi(chi.URLParam(r, "rfqId"))
	if err != nil || rfqID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid rfqId")
		return
	}

	rfq, err := h.Store.GetRfq(r.Context(), rfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if p.Role == auth.RoleBuyer && rfq.BuyerID != p.ID {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to view quotations for this RFQ")
		return
	}

	vis := auth.QuotationVisibility(p)
	filter := db.QuotationFilter{
		VendorID:     vis.VendorID,
		RfqID:        &rfqID,
		OrderByScore: true,
	}
	quotations, err := h.Store.ListQuotations(r.Context(), filter)
	if err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	writeJSON(w, http.StatusOK, quotations)
}
