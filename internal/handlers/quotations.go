package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"procurement/db"
	"procurement/internal/auth"
	"procurement/internal/scoring"

	"github.com/go-chi/chi/v5"
)

// quotationInput carries a create or partial-update request.
type quotationInput struct {
	RfqID            *int                `json:"rfqId"`
	Price            *float64            `json:"price"`
	DeliveryTimeDays *int                `json:"deliveryTimeDays"`
	Compliance       *scoring.Compliance `json:"compliance"`
	Status           *string             `json:"status"`
}

// readQuotationInput parses the fields of a JSON body or multipart form.
// File parts are left unsaved; callers store them with saveUploads once the
// principal is allowed to attach files at all.
func (h *Handler) readQuotationInput(r *http.Request) (quotationInput, error) {
	var in quotationInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return in, fmt.Errorf("invalid multipart form: %v", err)
		}
		if v := r.FormValue("rfqId"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				return in, fmt.Errorf("invalid rfqId: %v", err)
			}
			in.RfqID = &id
		}
		if v := r.FormValue("price"); v != "" {
			price, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return in, fmt.Errorf("invalid price: %v", err)
			}
			in.Price = &price
		}
		if v := r.FormValue("deliveryTimeDays"); v != "" {
			days, err := strconv.Atoi(v)
			if err != nil {
				return in, fmt.Errorf("invalid deliveryTimeDays: %v", err)
			}
			in.DeliveryTimeDays = &days
		}
		// compliance arrives as a JSON string in form uploads
		if v := r.FormValue("compliance"); v != "" {
			var c scoring.Compliance
			if err := json.Unmarshal([]byte(v), &c); err != nil {
				return in, fmt.Errorf("invalid compliance JSON: %v", err)
			}
			in.Compliance = &c
		}
		if v := r.FormValue("status"); v != "" {
			in.Status = &v
		}
		return in, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, 1048576)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, fmt.Errorf("invalid JSON format")
	}
	return in, nil
}

// scoreQuotation recomputes the quotation's compliance score and asks the
// vendor-scoring model to rank it. Scoring unavailability stores a null
// score; it never fails the surrounding operation.
func (h *Handler) scoreQuotation(ctx context.Context, rfq *db.Rfq, q *db.Quotation) {
	complianceScore := scoring.ComplianceScore(q.Compliance)
	priceDifference := rfq.Budget - q.Price

	score, err := h.Scorer.Score(ctx, priceDifference, float64(q.DeliveryTimeDays), complianceScore)
	if err != nil {
		log.Printf("vendor scoring failed for quotation on RFQ %d: %v", rfq.ID, err)
		q.VendorScore = nil
		return
	}
	q.VendorScore = &score
}

// CreateQuotationHandler handles POST /api/quotation. Vendors only, and only
// against an open RFQ.
func (h *Handler) CreateQuotationHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}
	if p.Role != auth.RoleVendor {
		writeError(w, http.StatusForbidden, errForbidden, "only vendors may submit quotations")
		return
	}

	in, err := h.readQuotationInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	if in.RfqID == nil || in.Price == nil || in.DeliveryTimeDays == nil || in.Compliance == nil {
		writeError(w, http.StatusBadRequest, errValidation, "please enter all required fields for the quotation")
		return
	}
	if *in.Price <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "price must be positive")
		return
	}
	if *in.DeliveryTimeDays <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "deliveryTimeDays must be positive")
		return
	}
	if !scoring.ValidGrade(in.Compliance.MaterialGrade) {
		writeError(w, http.StatusBadRequest, errValidation, "invalid material grade")
		return
	}

	rfq, err := h.Store.GetRfq(r.Context(), *in.RfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if rfq.Status != "open" {
		writeError(w, http.StatusConflict, errInvalidState, "quotations can only be submitted against an open RFQ")
		return
	}

	atts, err := h.saveUploads(r, "attachments")
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, fmt.Sprintf("failed to store attachments: %v", err))
		return
	}

	q := &db.Quotation{
		RfqID:            rfq.ID,
		VendorID:         p.ID,
		Price:            *in.Price,
		DeliveryTimeDays: *in.DeliveryTimeDays,
		Compliance:       *in.Compliance,
		Status:           "submitted",
		Attachments:      atts,
	}
	if q.Attachments == nil {
		q.Attachments = []db.Attachment{}
	}
	h.scoreQuotation(r.Context(), rfq, q)

	if err := h.Store.CreateQuotation(r.Context(), q); err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// GetQuotationsHandler handles GET /api/quotation. Vendors see their own,
// buyers see quotations against their RFQs, admins see all.
func (h *Handler) GetQuotationsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	vis := auth.QuotationVisibility(p)
	quotations, err := h.Store.ListQuotations(r.Context(), db.QuotationFilter{
		VendorID: vis.VendorID,
		BuyerID:  vis.BuyerID,
	})
	if err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	writeJSON(w, http.StatusOK, quotations)
}

// GetQuotationHandler handles GET /api/quotation/{quotationId}.
func (h *Handler) GetQuotationHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	quotationID, err := strconv.Atoi(chi.URLParam(r, "quotationId"))
	if err != nil || quotationID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid quotationId")
		return
	}

	q, err := h.Store.GetQuotation(r.Context(), quotationID)
	if err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	rfq, err := h.Store.GetRfq(r.Context(), q.RfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if !auth.CanViewQuotation(p, q.VendorID, rfq.BuyerID) {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to view this quotation")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// terminalQuotationStatus: no buyer decision may follow these.
func terminalQuotationStatus(status string) bool {
	return status == "accepted" || status == "rejected" || status == "Contract_created"
}

// UpdateQuotationHandler handles PUT /api/quotation/{quotationId}.
// The vendor path edits bid fields while the parent RFQ is open; the buyer
// path decides status, and acceptance cascades to the parent RFQ.
func (h *Handler) UpdateQuotationHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	quotationID, err := strconv.Atoi(chi.URLParam(r, "quotationId"))
	if err != nil || quotationID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid quotationId")
		return
	}

	q, err := h.Store.GetQuotation(r.Context(), quotationID)
	if err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	rfq, err := h.Store.GetRfq(r.Context(), q.RfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}

	in, err := h.readQuotationInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	switch {
	case auth.IsQuotationVendor(p, q.VendorID):
		h.vendorUpdateQuotation(w, r, in, q, rfq)
	case auth.IsQuotationBuyer(p, rfq.BuyerID):
		h.buyerDecideQuotation(w, r, in, q, rfq)
	default:
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to update this quotation")
	}
}

func (h *Handler) vendorUpdateQuotation(w http.ResponseWriter, r *http.Request, in quotationInput, q *db.Quotation, rfq *db.Rfq) {
	if rfq.Status != "open" {
		writeError(w, http.StatusConflict, errInvalidState, "cannot update quotation: the RFQ is no longer open")
		return
	}
	if in.Status != nil {
		writeError(w, http.StatusForbidden, errForbidden, "vendors cannot change quotation status")
		return
	}

	if in.Price != nil {
		if *in.Price <= 0 {
			writeError(w, http.StatusBadRequest, errValidation, "price must be positive")
			return
		}
		q.Price = *in.Price
	}
	if in.DeliveryTimeDays != nil {
		if *in.DeliveryTimeDays <= 0 {
			writeError(w, http.StatusBadRequest, errValidation, "deliveryTimeDays must be positive")
			return
		}
		q.DeliveryTimeDays = *in.DeliveryTimeDays
	}
	if in.Compliance != nil {
		if !scoring.ValidGrade(in.Compliance.MaterialGrade) {
			writeError(w, http.StatusBadRequest, errValidation, "invalid material grade")
			return
		}
		q.Compliance = *in.Compliance
	}

	atts, err := h.saveUploads(r, "attachments")
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, fmt.Sprintf("failed to store attachments: %v", err))
		return
	}

	h.scoreQuotation(r.Context(), rfq, q)

	if err := h.Store.UpdateQuotation(r.Context(), q); err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	if len(atts) > 0 {
		if err := h.Store.AddQuotationAttachments(r.Context(), q.ID, atts); err != nil {
			writeStorageError(w, err, "quotation")
			return
		}
		q.Attachments = append(q.Attachments, atts...)
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) buyerDecideQuotation(w http.ResponseWriter, r *http.Request, in quotationInput, q *db.Quotation, rfq *db.Rfq) {
	if in.Status == nil || in.Price != nil || in.DeliveryTimeDays != nil || in.Compliance != nil ||
		hasUploads(r, "attachments") {
		writeError(w, http.StatusForbidden, errForbidden, "buyers can only update quotation status")
		return
	}
	if !auth.ValidQuotationDecision(*in.Status) {
		writeError(w, http.StatusForbidden, errForbidden, "buyers can only set accepted, rejected or under_review")
		return
	}
	if terminalQuotationStatus(q.Status) {
		writeError(w, http.StatusConflict, errInvalidState,
			fmt.Sprintf("quotation is already %s", q.Status))
		return
	}

	switch *in.Status {
	case "accepted":
		// Quotation and parent RFQ move together in one transaction.
		if err := h.Store.AcceptQuotation(r.Context(), q.ID, rfq.ID); err != nil {
			writeStorageError(w, err, "quotation")
			return
		}
		q.Status = "accepted"
		rfq.Status = "in_progress"
		h.notifyVendorOfDecision(r.Context(), q.VendorID,
			fmt.Sprintf("Your Quotation for %s Accepted!", rfq.Title),
			fmt.Sprintf("Good news! Your quotation for RFQ %q has been accepted by the buyer.\n\nProceed to contract finalization.", rfq.Title))
	case "rejected":
		q.Status = "rejected"
		if err := h.Store.UpdateQuotation(r.Context(), q); err != nil {
			writeStorageError(w, err, "quotation")
			return
		}
		h.notifyVendorOfDecision(r.Context(), q.VendorID,
			fmt.Sprintf("Your Quotation for %s Rejected", rfq.Title),
			fmt.Sprintf("Your quotation for RFQ %q was unfortunately not selected at this time.\n\nThank you for your submission.", rfq.Title))
	default: // under_review
		q.Status = *in.Status
		if err := h.Store.UpdateQuotation(r.Context(), q); err != nil {
			writeStorageError(w, err, "quotation")
			return
		}
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) notifyVendorOfDecision(ctx context.Context, vendorID int, subject, body string) {
	vendor, err := h.Store.GetUser(ctx, vendorID)
	if err != nil {
		log.Printf("failed to load vendor %d for notification: %v", vendorID, err)
		return
	}
	h.notifyQuietly(vendor.Email, subject, body)
}

// DeleteQuotationHandler handles DELETE /api/quotation/{quotationId}.
// Only the owning vendor, only while the parent RFQ is open.
func (h *Handler) DeleteQuotationHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	quotationID, err := strconv.Atoi(chi.URLParam(r, "quotationId"))
	if err != nil || quotationID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid quotationId")
		return
	}

	q, err := h.Store.GetQuotation(r.Context(), quotationID)
	if err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	if !auth.IsQuotationVendor(p, q.VendorID) {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to delete this quotation")
		return
	}

	rfq, err := h.Store.GetRfq(r.Context(), q.RfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if rfq.Status != "open" {
		writeError(w, http.StatusConflict, errInvalidState, "cannot delete quotation: the RFQ is no longer open")
		return
	}

	if err := h.Store.DeleteQuotation(r.Context(), quotationID); err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "quotation deleted successfully"})
}
