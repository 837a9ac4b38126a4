package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"procurement/db"
	"procurement/internal/audit"
	"procurement/internal/auth"

	"github.com/go-chi/chi/v5"
)

var contractStatuses = map[string]bool{
	"Active":    true,
	"Expired":   true,
	"Audited":   true,
	"Cancelled": true,
}

// contractInput carries a create or partial-update request.
type contractInput struct {
	RfqID       *int    `json:"rfqId"`
	VendorID    *int    `json:"vendorId"`
	QuotationID *int    `json:"quotationId"`
	Content     *string `json:"content"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	Status      *string `json:"status"`
}

func (h *Handler) readContractInput(r *http.Request) (contractInput, *db.Attachment, error) {
	var in contractInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return in, nil, fmt.Errorf("invalid multipart form: %v", err)
		}
		intField := func(name string) (*int, error) {
			if v := r.FormValue(name); v != "" {
				id, err := strconv.Atoi(v)
				if err != nil {
					return nil, fmt.Errorf("invalid %s: %v", name, err)
				}
				return &id, nil
			}
			return nil, nil
		}
		strField := func(name string) *string {
			if v := r.FormValue(name); v != "" {
				return &v
			}
			return nil
		}
		var err error
		if in.RfqID, err = intField("rfqId"); err != nil {
			return in, nil, err
		}
		if in.VendorID, err = intField("vendorId"); err != nil {
			return in, nil, err
		}
		if in.QuotationID, err = intField("quotationId"); err != nil {
			return in, nil, err
		}
		in.Content = strField("content")
		in.StartDate = strField("startDate")
		in.EndDate = strField("endDate")
		in.Status = strField("status")

		files, err := h.saveUploads(r, "contractFile")
		if err != nil {
			return in, nil, fmt.Errorf("failed to store contract file: %v", err)
		}
		if len(files) > 0 {
			return in, &files[0], nil
		}
		return in, nil, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, 1048576)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, nil, fmt.Errorf("invalid JSON format")
	}
	return in, nil, nil
}

// CreateContractHandler handles POST /api/contract. Buyers only, and only
// from an accepted quotation. The contract content is audited synchronously;
// an unavailable auditor degrades to a Failed audit, never a failed create.
func (h *Handler) CreateContractHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}
	if p.Role != auth.RoleBuyer {
		writeError(w, http.StatusForbidden, errForbidden, "only buyers may create contracts")
		return
	}

	in, file, err := h.readContractInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	if in.RfqID == nil || in.VendorID == nil || in.QuotationID == nil ||
		in.Content == nil || in.StartDate == nil || in.EndDate == nil {
		writeError(w, http.StatusBadRequest, errValidation, "please enter all required fields for the contract")
		return
	}
	startDate, err := parseDate(*in.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, "invalid startDate")
		return
	}
	endDate, err := parseDate(*in.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, "invalid endDate")
		return
	}

	q, err := h.Store.GetQuotation(r.Context(), *in.QuotationID)
	if err != nil {
		writeStorageError(w, err, "quotation")
		return
	}
	if q.RfqID != *in.RfqID || q.VendorID != *in.VendorID {
		writeError(w, http.StatusBadRequest, errValidation, "quotation does not match the given RFQ and vendor")
		return
	}
	if q.Status != "accepted" {
		writeError(w, http.StatusConflict, errInvalidState, "contracts can only be created from an accepted quotation")
		return
	}

	rfq, err := h.Store.GetRfq(r.Context(), q.RfqID)
	if err != nil {
		writeStorageError(w, err, "RFQ")
		return
	}
	if rfq.BuyerID != p.ID {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to create a contract for this RFQ")
		return
	}

	auditResult := h.Auditor.Audit(r.Context(), *in.Content)

	contract := &db.Contract{
		RfqID:       q.RfqID,
		VendorID:    q.VendorID,
		BuyerID:     p.ID,
		QuotationID: q.ID,
		Content:     *in.Content,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      "Active",
		AuditStatus: audit.Collapse(auditResult.Status),
		AuditReport: auditResult.Report,
		Warnings:    make([]db.ContractWarning, 0, len(auditResult.Warnings)),
	}
	if file != nil {
		contract.FileName = &file.FileName
		contract.FilePath = &file.FilePath
	}
	for _, warning := range auditResult.Warnings {
		contract.Warnings = append(contract.Warnings, db.ContractWarning{
			WarningType: warning.WarningType,
			Description: warning.Description,
			Severity:    warning.Severity,
		})
	}

	if err := h.Store.CreateContract(r.Context(), contract); err != nil {
		if errors.Is(err, db.ErrContractExists) {
			writeError(w, http.StatusConflict, errConflict, "a contract already exists for this quotation")
			return
		}
		writeStorageError(w, err, "contract")
		return
	}

	body := fmt.Sprintf("A new contract has been created.\n\nContract ID: %d\nContent: %s", contract.ID, contract.Content)
	h.notifyVendorOfDecision(r.Context(), contract.VendorID, "Contract Created", body)
	if buyer, err := h.Store.GetUser(r.Context(), contract.BuyerID); err == nil {
		h.notifyQuietly(buyer.Email, "Contract Created",
			fmt.Sprintf("Your contract has been successfully created.\n\nContract ID: %d\nContent: %s", contract.ID, contract.Content))
	}

	writeJSON(w, http.StatusCreated, contract)
}

// GetContractsHandler handles GET /api/contract. Each party sees contracts
// it is named on; admins see all.
func (h *Handler) GetContractsHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	vis := auth.ContractVisibility(p)
	contracts, err := h.Store.ListContracts(r.Context(), db.ContractFilter{
		BuyerID:  vis.BuyerID,
		VendorID: vis.VendorID,
	})
	if err != nil {
		writeStorageError(w, err, "contract")
		return
	}
	writeJSON(w, http.StatusOK, contracts)
}

// GetContractHandler handles GET /api/contract/{contractId}.
func (h *Handler) GetContractHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	contractID, err := strconv.Atoi(chi.URLParam(r, "contractId"))
	if err != nil || contractID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid contractId")
		return
	}

	contract, err := h.Store.GetContract(r.Context(), contractID)
	if err != nil {
		writeStorageError(w, err, "contract")
		return
	}
	if !auth.CanViewContract(p, contract.BuyerID, contract.VendorID) {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to view this contract")
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// UpdateContractHandler handles PUT /api/contract/{contractId}. The owning
// buyer and admins may change dates and status; the owning vendor may only
// move the status out of Active (Audited to accept, Cancelled to reject).
func (h *Handler) UpdateContractHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthorized, err.Error())
		return
	}

	contractID, err := strconv.Atoi(chi.URLParam(r, "contractId"))
	if err != nil || contractID <= 0 {
		writeError(w, http.StatusBadRequest, errValidation, "invalid contractId")
		return
	}

	contract, err := h.Store.GetContract(r.Context(), contractID)
	if err != nil {
		writeStorageError(w, err, "contract")
		return
	}

	grant, ok := auth.ContractUpdatePolicy(p, contract.BuyerID, contract.VendorID)
	if !ok {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to update this contract")
		return
	}

	in, _, err := h.readContractInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	if (in.StartDate != nil || in.EndDate != nil) && !grant.Dates {
		writeError(w, http.StatusForbidden, errForbidden, "not authorized to change contract dates")
		return
	}
	if in.Status == nil && !grant.Dates {
		writeError(w, http.StatusBadRequest, errValidation, "status is required")
		return
	}

	if in.StartDate != nil {
		startDate, err := parseDate(*in.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, errValidation, "invalid startDate")
			return
		}
		contract.StartDate = startDate
	}
	if in.EndDate != nil {
		endDate, err := parseDate(*in.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, errValidation, "invalid endDate")
			return
		}
		contract.EndDate = endDate
	}
	if in.Status != nil {
		if !contractStatuses[*in.Status] {
			writeError(w, http.StatusBadRequest, errValidation, "invalid contract status")
			return
		}
		if grant.ActiveOnly {
			if contract.Status != "Active" {
				writeError(w, http.StatusConflict, errInvalidState,
					fmt.Sprintf("contract status is %s and can no longer be changed by the vendor", contract.Status))
				return
			}
			if *in.Status != "Audited" && *in.Status != "Cancelled" {
				writeError(w, http.StatusForbidden, errForbidden, "vendors may only set Audited or Cancelled")
				return
			}
		}
		contract.Status = *in.Status
	}

	if err := h.Store.UpdateContract(r.Context(), contract); err != nil {
		writeStorageError(w, err, "contract")
		return
	}
	writeJSON(w, http.StatusOK, contract)
}
