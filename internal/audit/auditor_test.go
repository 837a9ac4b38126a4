package audit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"procurement/internal/audit"

	"github.com/stretchr/testify/require"
)

func llmResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
}

func TestAuditMissingAPIKey(t *testing.T) {
	client := audit.NewLLMClient("http://example.invalid", "", time.Second)

	result := client.Audit(context.Background(), "some contract")
	require.Equal(t, audit.StatusFailed, result.Status)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, "ConfigurationError", result.Warnings[0].WarningType)
	require.Equal(t, "High", result.Warnings[0].Severity)
}

func TestAuditParsesCleanJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		json.NewEncoder(w).Encode(llmResponse(`{
			"auditReport": "Two clauses need attention.",
			"auditWarnings": [{"type": "VagueTerm", "description": "Clause 4 is ambiguous.", "severity": "Medium"}],
			"auditStatus": "NeedsReview"
		}`))
	}))
	defer srv.Close()

	client := audit.NewLLMClient(srv.URL, "test-key", time.Second)
	result := client.Audit(context.Background(), "contract body")
	require.Equal(t, audit.StatusNeedsReview, result.Status)
	require.Equal(t, "Two clauses need attention.", result.Report)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, "VagueTerm", result.Warnings[0].WarningType)
}

func TestAuditStripsMarkdownFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llmResponse("```json\n{\"auditReport\": \"Looks fine.\", \"auditWarnings\": [], \"auditStatus\": \"Completed\"}\n```"))
	}))
	defer srv.Close()

	client := audit.NewLLMClient(srv.URL, "test-key", time.Second)
	result := client.Audit(context.Background(), "contract body")
	require.Equal(t, audit.StatusCompleted, result.Status)
	require.Equal(t, "Looks fine.", result.Report)
	require.Empty(t, result.Warnings)
}

func TestAuditMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llmResponse("sorry, I cannot help with that"))
	}))
	defer srv.Close()

	client := audit.NewLLMClient(srv.URL, "test-key", time.Second)
	result := client.Audit(context.Background(), "contract body")
	require.Equal(t, audit.StatusFailed, result.Status)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, "LLMFailure", result.Warnings[0].WarningType)
	require.Equal(t, "High", result.Warnings[0].Severity)
}

func TestAuditUnknownStatusRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llmResponse(`{"auditReport": "x", "auditWarnings": [], "auditStatus": "AllGood"}`))
	}))
	defer srv.Close()

	client := audit.NewLLMClient(srv.URL, "test-key", time.Second)
	result := client.Audit(context.Background(), "contract body")
	require.Equal(t, audit.StatusFailed, result.Status)
}

func TestAuditUnknownSeverityRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llmResponse(`{
			"auditReport": "x",
			"auditWarnings": [{"type": "VagueTerm", "description": "d", "severity": "Catastrophic"}],
			"auditStatus": "Completed"
		}`))
	}))
	defer srv.Close()

	client := audit.NewLLMClient(srv.URL, "test-key", time.Second)
	result := client.Audit(context.Background(), "contract body")
	require.Equal(t, audit.StatusFailed, result.Status)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, "LLMFailure", result.Warnings[0].WarningType)
	require.Equal(t, "High", result.Warnings[0].Severity)
}

func TestAuditServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := audit.NewLLMClient(srv.URL, "test-key", time.Second)
	result := client.Audit(context.Background(), "contract body")
	require.Equal(t, audit.StatusFailed, result.Status)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, "LLMFailure", result.Warnings[0].WarningType)
}

func TestCollapse(t *testing.T) {
	require.Equal(t, "Completed", audit.Collapse(audit.StatusCompleted))
	require.Equal(t, "Completed", audit.Collapse(audit.StatusNeedsReview))
	require.Equal(t, "Completed", audit.Collapse(audit.StatusCriticalIssues))
	require.Equal(t, "Failed", audit.Collapse(audit.StatusFailed))
}
