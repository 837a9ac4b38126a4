// Package audit reviews contract text through an external LLM endpoint.
// The Audit call never fails: every internal error degrades to a result with
// Status Failed so contract creation is never blocked by the auditor.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Auditor statuses as returned by the external review.
const (
	StatusCompleted      = "Completed"
	StatusNeedsReview    = "NeedsReview"
	StatusCriticalIssues = "CriticalIssues"
	StatusFailed         = "Failed"
)

// Warning is a single audit finding.
type Warning struct {
	WarningType string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Result of a contract audit.
type Result struct {
	Report   string    `json:"auditReport"`
	Warnings []Warning `json:"auditWarnings"`
	Status   string    `json:"auditStatus"`
}

// Auditor reviews contract content. Implementations must not return errors;
// failures are encoded in the Result.
type Auditor interface {
	Audit(ctx context.Context, content string) Result
}

// Collapse maps the auditor's own status to the contract's persisted audit
// status: any completed review (including NeedsReview and CriticalIssues)
// stores as Completed, Failed stores as Failed.
func Collapse(status string) string {
	if status == StatusFailed {
		return StatusFailed
	}
	return StatusCompleted
}

func failedResult(warningType, reason string) Result {
	return Result{
		Report: fmt.Sprintf("An error occurred during contract audit: %s", reason),
		Warnings: []Warning{{
			WarningType: warningType,
			Description: reason,
			Severity:    "High",
		}},
		Status: StatusFailed,
	}
}

// LLMClient audits contracts against a generateContent-style endpoint.
type LLMClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewLLMClient builds an auditor with an enforced request timeout so a hung
// upstream cannot stall contract creation indefinitely.
func NewLLMClient(endpoint, apiKey string, timeout time.Duration) *LLMClient {
	return &LLMClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

const auditPrompt = `You are an AI contract auditor. Review the following contract content and identify any potential issues, inconsistencies, missing clauses, or areas of concern.

Respond ONLY with valid JSON, no markdown formatting or explanatory text:
{
  "auditReport": "concise summary, under 200 words",
  "auditWarnings": [
    {"type": "MissingClause|VagueTerm|FinancialInconsistency|ExpiredTerm|ComplianceIssue", "description": "...", "severity": "Low|Medium|High"}
  ],
  "auditStatus": "Completed|NeedsReview|CriticalIssues"
}

Contract Content:
---
%s
---`

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		MaxOutputTokens  int     `json:"maxOutputTokens"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *LLMClient) Audit(ctx context.Context, content string) Result {
	if c.apiKey == "" {
		return failedResult("ConfigurationError", "audit API key is not configured")
	}

	var reqBody generateRequest
	reqBody.Contents = make([]struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}, 1)
	reqBody.Contents[0].Parts = []struct {
		Text string `json:"text"`
	}{{Text: fmt.Sprintf(auditPrompt, content)}}
	reqBody.GenerationConfig.Temperature = 0
	reqBody.GenerationConfig.MaxOutputTokens = 1000
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return failedResult("LLMFailure", fmt.Sprintf("failed to encode audit request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return failedResult("LLMFailure", fmt.Sprintf("failed to build audit request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return failedResult("LLMFailure", fmt.Sprintf("audit request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failedResult("LLMFailure", fmt.Sprintf("audit endpoint returned status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failedResult("LLMFailure", fmt.Sprintf("failed to read audit response: %v", err))
	}

	var gen generateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return failedResult("LLMFailure", fmt.Sprintf("failed to decode audit response: %v", err))
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return failedResult("LLMFailure", "audit response contained no candidates")
	}

	result, err := parseAuditJSON(gen.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return failedResult("LLMFailure", err.Error())
	}
	return result
}

// parseAuditJSON extracts and validates the audit JSON from model output,
// tolerating markdown fences and surrounding prose.
func parseAuditJSON(text string) (Result, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no JSON object found in audit response")
	}

	var result Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return Result{}, fmt.Errorf("audit response JSON parsing failed: %v", err)
	}
	if result.Report == "" || result.Status == "" {
		return Result{}, fmt.Errorf("audit response did not match the expected structure")
	}
	switch result.Status {
	case StatusCompleted, StatusNeedsReview, StatusCriticalIssues:
	default:
		return Result{}, fmt.Errorf("audit response carried unknown status %q", result.Status)
	}
	for _, w := range result.Warnings {
		switch w.Severity {
		case "Low", "Medium", "High":
		default:
			return Result{}, fmt.Errorf("audit response carried unknown severity %q", w.Severity)
		}
	}
	if result.Warnings == nil {
		result.Warnings = []Warning{}
	}
	return result, nil
}

// AuditorFunc adapts a function to the Auditor interface.
type AuditorFunc func(ctx context.Context, content string) Result

func (f AuditorFunc) Audit(ctx context.Context, content string) Result {
	return f(ctx, content)
}
