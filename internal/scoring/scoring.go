package scoring

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Compliance declaration submitted by a vendor alongside a quotation.
// Field names on the wire follow the established API contract.
type Compliance struct {
	ISOCertification       bool   `json:"ISO_Certification"`
	MaterialGrade          string `json:"Material_Grade"`
	EnvironmentalStandards bool   `json:"Environmental_Standards"`
	DocumentSubmission     bool   `json:"Document_Submission"`
}

var materialGrades = map[string]bool{"A+": true, "A": true, "B": true, "C": true}

// ValidGrade reports whether g is one of the accepted material grades.
func ValidGrade(g string) bool {
	return materialGrades[g]
}

// Value stores the declaration as a jsonb column.
func (c Compliance) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan reads the declaration back from a jsonb column.
func (c *Compliance) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	case nil:
		*c = Compliance{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Compliance", src)
	}
}

// ComplianceScore maps a declaration to a score on a fixed weighted rubric:
// ISO certification 40, material grade 30/20/10/0 for A+/A/B/C,
// environmental standards 20, document submission 10. Range [0, 100].
func ComplianceScore(c Compliance) float64 {
	var score float64
	if c.ISOCertification {
		score += 40
	}
	switch c.MaterialGrade {
	case "A+":
		score += 30
	case "A":
		score += 20
	case "B":
		score += 10
	}
	if c.EnvironmentalStandards {
		score += 20
	}
	if c.DocumentSubmission {
		score += 10
	}
	return score
}

// ErrUnavailable is returned when the scoring model cannot produce a score.
// Callers store a null vendor score instead of failing the operation.
var ErrUnavailable = errors.New("vendor scoring model unavailable")

// VendorScorer ranks a quotation from its price deviation, delivery time and
// compliance score. Implementations must not panic; unavailability is an error.
type VendorScorer interface {
	Score(ctx context.Context, priceDifference, deliveryTimeDays, complianceScore float64) (float64, error)
}

// ModelClient calls an external model-serving endpoint with the assembled
// three-element feature vector. Constructed once at process start and
// injected wherever scoring is needed.
type ModelClient struct {
	url    string
	client *http.Client
}

func NewModelClient(url string, timeout time.Duration) *ModelClient {
	return &ModelClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (m *ModelClient) Score(ctx context.Context, priceDifference, deliveryTimeDays, complianceScore float64) (float64, error) {
	if m.url == "" {
		return 0, ErrUnavailable
	}

	payload, err := json.Marshal(map[string][]float64{
		"input": {priceDifference, deliveryTimeDays, complianceScore},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out.Score, nil
}

// ScorerFunc adapts a function to the VendorScorer interface.
type ScorerFunc func(ctx context.Context, priceDifference, deliveryTimeDays, complianceScore float64) (float64, error)

func (f ScorerFunc) Score(ctx context.Context, priceDifference, deliveryTimeDays, complianceScore float64) (float64, error) {
	return f(ctx, priceDifference, deliveryTimeDays, complianceScore)
}
