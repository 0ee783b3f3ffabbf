package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"breathesmart/models"
	"breathesmart/storage"
)

// Decision thresholds for the ML verification service. A report is
// verified only when both confidences clear their threshold.
const (
	PollutionThresholdPercent    = 45.0
	DescriptionThresholdFraction = 0.60
)

// VerificationResult is the ML service's verdict on one report.
type VerificationResult struct {
	PollutionConfidence        float64 `json:"pollution_confidence"`
	DescriptionMatchConfidence float64 `json:"description_match_confidence"`
	AQI                        float64 `json:"aqi"`
	Points                     int     `json:"points"`
}

// VerificationClient polls pending reports and moves them to verified
// or rejected based on the external ML verification service. This is
// the ingestion side of the report lifecycle; the validation service
// only ever acts on reports this worker marked verified.
type VerificationClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      storage.ReportStore
}

func NewVerificationClient(store storage.ReportStore) *VerificationClient {
	baseURL := os.Getenv("VERIFY_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("VERIFY_SERVICE_URL environment variable is required for report verification")
	}

	return &VerificationClient{
		BaseURL: baseURL,
		Store:   store,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *VerificationClient) Verify(ctx context.Context, r models.Report) (*VerificationResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"description": r.Description,
		"image_url":   r.ImageURL,
		"lat":         r.Lat,
		"lng":         r.Lng,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/verify", c.BaseURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("verify service returned %d: %s", resp.StatusCode, payload)
	}

	var result VerificationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	return &result, nil
}

// NormalizePollutionConfidence brings the pollution confidence onto a
// 0–100 percent scale regardless of whether the ML service answered
// with a fraction or a percentage.
func NormalizePollutionConfidence(v float64) float64 {
	if v <= 1.5 {
		return v * 100.0
	}
	return v
}

// NormalizeDescriptionConfidence brings the description-match
// confidence onto a 0–1 fraction scale.
func NormalizeDescriptionConfidence(v float64) float64 {
	if v > 1.5 {
		return v / 100.0
	}
	return v
}

// ApplyVerification writes the verdict onto the report: both
// thresholds cleared means verified with credits, anything else means
// rejected with none.
func ApplyVerification(r *models.Report, result *VerificationResult) {
	pollPct := NormalizePollutionConfidence(result.PollutionConfidence)
	descFrac := NormalizeDescriptionConfidence(result.DescriptionMatchConfidence)

	r.PollutionConfidence = pollPct
	r.DescriptionMatchConfidence = descFrac
	r.AQI = result.AQI
	r.Points = result.Points
	r.LastCheckedAt = time.Now()

	if pollPct >= PollutionThresholdPercent && descFrac >= DescriptionThresholdFraction {
		r.Status = models.ReportStatusVerified
		r.AwardedCredits = result.Points
	} else {
		r.Status = models.ReportStatusRejected
		r.AwardedCredits = 0
	}
}

func (c *VerificationClient) processOne(ctx context.Context, r models.Report) error {
	result, err := c.Verify(ctx, r)
	if err != nil {
		return err
	}
	ApplyVerification(&r, result)
	if err := c.Store.Update(ctx, &r); err != nil {
		return err
	}
	log.Printf("[VERIFY] report %d -> %s (pollution=%.1f%%, description=%.2f)",
		r.ID, r.Status, r.PollutionConfidence, r.DescriptionMatchConfidence)
	return nil
}

// PollPendingReports runs the verification loop until ctx is done.
func PollPendingReports(ctx context.Context, c *VerificationClient, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[VERIFY] worker started (every %s)", interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("[VERIFY] worker stopped")
			return
		case <-ticker.C:
			pending, err := c.Store.ListPending(ctx, 20)
			if err != nil {
				log.Printf("[VERIFY] listing pending reports failed: %v", err)
				continue
			}
			for _, r := range pending {
				if err := c.processOne(ctx, r); err != nil {
					log.Printf("[VERIFY] report %d verification failed: %v", r.ID, err)
				}
			}
		}
	}
}
