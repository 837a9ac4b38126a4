package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"procurement/db"
	"procurement/internal/handlers/testutils"

	"github.com/stretchr/testify/require"
)

func TestCreateRfqVendorForbidden(t *testing.T) {
	store := newMockStorage()
	store.seedUser(2, "vendor")
	h, _ := newTestHandler(store)

	req := jsonRequest(http.MethodPost, "/api/rfq", 2, `{"title":"x"}`)
	w := httptest.NewRecorder()
	h.CreateRfqHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	require.Equal(t, "forbidden", errorKind(t, res))
}

func TestCreateRfqMissingFields(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	h, _ := newTestHandler(store)

	req := jsonRequest(http.MethodPost, "/api/rfq", 1, `{"title":"Laptops","budget":10000}`)
	w := httptest.NewRecorder()
	h.CreateRfqHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "validation_error", errorKind(t, res))
}

func TestCreateRfqInvalidCategory(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	h, _ := newTestHandler(store)

	req := jsonRequest(http.MethodPost, "/api/rfq", 1, `{
        "title":"Laptops","description":"d","requestType":"RFQ",
        "budget":10000,"deadline":"2026-12-31","category":"Spaceships"
    }`)
	w := httptest.NewRecorder()
	h.CreateRfqHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCreateRfqNotifiesVendors(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	store.seedUser(2, "vendor")
	store.seedUser(3, "vendor")
	h, rec := newTestHandler(store)

	req := jsonRequest(http.MethodPost, "/api/rfq", 1, `{
        "title":"Laptops","description":"d","requestType":"RFP",
        "budget":10000,"deadline":"2026-12-31","category":"IT Hardware"
    }`)
	w := httptest.NewRecorder()
	h.CreateRfqHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	// fan-out is asynchronous
	require.Eventually(t, func() bool {
		return len(rec.sent()) == 2
	}, time.Second, 10*time.Millisecond)
	for _, msg := range rec.sent() {
		require.Equal(t, "New RFP Posted: Laptops", msg.Subject)
	}
}

func TestGetRfqsVisibility(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	store.seedUser(2, "buyer")
	store.seedUser(3, "vendor")
	store.seedUser(9, "admin")
	store.seedRfq(10, 1, "open")
	store.seedRfq(11, 1, "closed")
	store.seedRfq(12, 2, "open")
	h, _ := newTestHandler(store)

	list := func(userID int, query string) []db.Rfq {
		req := jsonRequest(http.MethodGet, "/api/rfq"+query, userID, "")
		w := httptest.NewRecorder()
		h.GetRfqsHandler(w, req)
		res := w.Result()
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
		var rfqs []db.Rfq
		require.NoError(t, json.NewDecoder(res.Body).Decode(&rfqs))
		return rfqs
	}

	rfqs := list(1, "")
	require.Len(t, rfqs, 2) // buyer 1 sees both of their own, any status

	rfqs = list(3, "")
	require.Len(t, rfqs, 2) // vendor sees only open postings
	for _, r := range rfqs {
		require.Equal(t, "open", r.Status)
	}

	rfqs = list(9, "")
	require.Len(t, rfqs, 3) // admin sees everything

	rfqs = list(1, "?status=closed")
	require.Len(t, rfqs, 1)
	require.Equal(t, 11, rfqs[0].ID)
}

func TestGetRfqVendorCannotSeeClosed(t *testing.T) {
	store := newMockStorage()
	store.seedUser(3, "vendor")
	store.seedRfq(10, 1, "closed")
	h, _ := newTestHandler(store)

	req := jsonRequest(http.MethodGet, "/api/rfq/10", 3, "")
	req = testutils.WithChiURLParams(req, map[string]string{"rfqId": "10"})
	w := httptest.NewRecorder()
	h.GetRfqHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestGetRfqNotFound(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	h, _ := newTestHandler(store)

	req := jsonRequest(http.MethodGet, "/api/rfq/404", 1, "")
	req = testutils.WithChiURLParams(req, map[string]string{"rfqId": "404"})
	w := httptest.NewRecorder()
	h.GetRfqHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Equal(t, "not_found", errorKind(t, res))
}

func TestUpdateRfqNonOwnerForbidden(t *testing.T) {
	store := newMockStorage()
	store.seedUser(2, "buyer")
	store.seedRfq(10, 1, "open")
	h, _ := newTestHandler(store)

	req := jsonRequest(http.MethodPut, "/api/rfq/10", 2, `{"title":"hijacked"}`)
	req = testutils.WithChiURLParams(req, map[string]string{"rfqId": "10"})
	w := httptest.NewRecorder()
	h.UpdateRfqHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestUpdateRfqStatusTransitions(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	store.seedRfq(10, 1, "open")
	h, _ := newTestHandler(store)

	put := func(body string) *http.Response {
		req := jsonRequest(http.MethodPut, "/api/rfq/10", 1, body)
		req = testutils.WithChiURLParams(req, map[string]string{"rfqId": "10"})
		w := httptest.NewRecorder()
		h.UpdateRfqHandler(w, req)
		return w.Result()
	}

	// open cannot jump straight to closed
	res := put(`{"status":"closed"}`)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	require.Equal(t, "invalid_state", errorKind(t, res))
	res.Body.Close()

	res = put(`{"status":"in_progress"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()
	require.Equal(t, "in_progress", store.rfqStatus(10))

	// no going back
	res = put(`{"status":"open"}`)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	res.Body.Close()

	res = put(`{"status":"closed"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()
	require.Equal(t, "closed", store.rfqStatus(10))
}

func TestUpdateRfqPartialKeepsFields(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	store.seedRfq(10, 1, "open")
	h, _ := newTestHandler(store)

	req := jsonRequest(http.MethodPut, "/api/rfq/10", 1, `{"budget":15000}`)
	req = testutils.WithChiURLParams(req, map[string]string{"rfqId": "10"})
	w := httptest.NewRecorder()
	h.UpdateRfqHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var rfq db.Rfq
	require.NoError(t, json.NewDecoder(res.Body).Decode(&rfq))
	require.Equal(t, 15000.0, rfq.Budget)
	require.Equal(t, "RFQ 10", rfq.Title)
	require.Equal(t, "IT Hardware", rfq.Category)
}

func TestDeleteRfqGuards(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	store.seedRfq(10, 1, "in_progress")
	store.seedRfq(11, 1, "open")
	store.seedQuotation(20, 11, 3, "submitted")
	store.seedRfq(12, 1, "open")
	h, _ := newTestHandler(store)

	del := func(rfqID string) *http.Response {
		req := jsonRequest(http.MethodDelete, "/api/rfq/"+rfqID, 1, "")
		req = testutils.WithChiURLParams(req, map[string]string{"rfqId": rfqID})
		w := httptest.NewRecorder()
		h.DeleteRfqHandler(w, req)
		return w.Result()
	}

	res := del("10") // not open
	require.Equal(t, http.StatusConflict, res.StatusCode)
	res.Body.Close()

	res = del("11") // has a quotation
	require.Equal(t, http.StatusConflict, res.StatusCode)
	require.Equal(t, "invalid_state", errorKind(t, res))
	res.Body.Close()

	res = del("12")
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()
	req := jsonRequest(http.MethodGet, "/api/rfq/12", 1, "")
	req = testutils.WithChiURLParams(req, map[string]string{"rfqId": "12"})
	w := httptest.NewRecorder()
	h.GetRfqHandler(w, req)
	require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}

func TestGetRfqQuotationsAccess(t *testing.T) {
	store := newMockStorage()
	store.seedUser(1, "buyer")
	store.seedUser(2, "buyer")
	store.seedUser(3, "vendor")
	store.seedUser(4, "vendor")
	store.seedRfq(10, 1, "open")
	store.seedQuotation(20, 10, 3, "submitted")
	store.seedQuotation(21, 10, 4, "submitted")
	h, _ := newTestHandler(store)

	get := func(userID int) *http.Response {
		req := jsonRequest(http.MethodGet, "/api/rfq/10/quotations", userID, "")
		req = testutils.WithChiURLParams(req, map[string]string{"rfqId": "10"})
		w := httptest.NewRecorder()
		h.GetRfqQuotationsHandler(w, req)
		return w.Result()
	}

	// another buyer cannot inspect competing bids
	res := get(2)
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	res.Body.Close()

	// the owner sees every quotation
	res = get(1)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var quotations []db.Quotation
	require.NoError(t, json.NewDecoder(res.Body).Decode(&quotations))
	res.Body.Close()
	require.Len(t, quotations, 2)

	// a vendor sees only their own
	res = get(3)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&quotations))
	res.Body.Close()
	require.Len(t, quotations, 1)
	require.Equal(t, 3, quotations[0].VendorID)
}
