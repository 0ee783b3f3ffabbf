package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"breathesmart/bus"
	"breathesmart/handlers"
	"breathesmart/middleware"
	"breathesmart/models"
	"breathesmart/services"
	"breathesmart/storage"

	"github.com/gofiber/fiber/v2"
)

type fixture struct {
	app   *fiber.App
	store *storage.MemoryReportStore
}

func newAppFixture(t *testing.T) *fixture {
	t.Helper()
	app := fiber.New()
	app.Use(middleware.SessionContext())

	store := storage.NewMemoryReportStore()
	rewardStore := storage.NewMemoryRewardStore()
	broker := bus.NewLocalBroker()

	validation := services.NewValidationService(store, broker.Open())
	rewards := services.NewRewardService(store, rewardStore, nil)

	handlers.SetupReportRoutes(app, validation, rewards, store)
	handlers.SetupRewardRoutes(app, rewards)
	return &fixture{app: app, store: store}
}

func (f *fixture) seed(t *testing.T, status models.ReportStatus, username string, credits int) *models.Report {
	t.Helper()
	r := &models.Report{
		UserName:       username,
		Description:    "haze over the market",
		Status:         status,
		AwardedCredits: credits,
	}
	if err := f.store.Create(context.Background(), r); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return r
}

func asGovernment(req *http.Request) {
	req.Header.Set("Authorization", "Bearer gov-token")
	req.Header.Set("X-User-Name", "Inspector")
	req.Header.Set("X-User-Email", "inspector@gov.example")
	req.Header.Set("X-User-Role", "government")
}

func asCitizen(req *http.Request) {
	req.Header.Set("Authorization", "Bearer cit-token")
	req.Header.Set("X-User-Name", "asha")
	req.Header.Set("X-User-Email", "asha@example.com")
	req.Header.Set("X-User-Role", "citizen")
}

func validateRequest(id uint, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/reports/%d/validate", id), bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decoding response %s: %v", data, err)
	}
}

func TestValidateRequiresToken(t *testing.T) {
	f := newAppFixture(t)
	r := f.seed(t, models.ReportStatusVerified, "asha", 0)

	resp, err := f.app.Test(validateRequest(r.ID, `{"status":"approved"}`))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestValidateRefusesCitizenRole(t *testing.T) {
	f := newAppFixture(t)
	r := f.seed(t, models.ReportStatusVerified, "asha", 0)

	req := validateRequest(r.ID, `{"status":"approved"}`)
	asCitizen(req)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestValidateApprovesOnce(t *testing.T) {
	f := newAppFixture(t)
	r := f.seed(t, models.ReportStatusVerified, "asha", 0)

	req := validateRequest(r.ID, `{"status":"approved","precautions":"Wear N95","action_taken":"Crew dispatched"}`)
	asGovernment(req)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Message string        `json:"message"`
		Report  models.Report `json:"report"`
	}
	decodeBody(t, resp, &body)
	if body.Message != "Report approved" {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if body.Report.Status != models.ReportStatusApproved || body.Report.Precautions != "Wear N95" {
		t.Fatalf("unexpected report: %+v", body.Report)
	}

	// Second resolution of the same report loses the race.
	retry := validateRequest(r.ID, `{"status":"rejected"}`)
	asGovernment(retry)
	resp2, err := f.app.Test(retry)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second resolution, got %d", resp2.StatusCode)
	}
}

func TestValidateRejectsBadStatus(t *testing.T) {
	f := newAppFixture(t)
	r := f.seed(t, models.ReportStatusVerified, "asha", 0)

	req := validateRequest(r.ID, `{"status":"promoted"}`)
	asGovernment(req)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestValidateUnknownReport(t *testing.T) {
	f := newAppFixture(t)

	req := validateRequest(999, `{"status":"approved"}`)
	asGovernment(req)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestLeaderboardSortedDescending(t *testing.T) {
	f := newAppFixture(t)
	f.seed(t, models.ReportStatusApproved, "asha", 10)
	f.seed(t, models.ReportStatusVerified, "bilal", 50)
	f.seed(t, models.ReportStatusApproved, "chitra", 30)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/reports/leaderboard", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var entries []models.LeaderboardEntry
	decodeBody(t, resp, &entries)
	want := []models.LeaderboardEntry{
		{Username: "bilal", GreenCredits: 50},
		{Username: "chitra", GreenCredits: 30},
		{Username: "asha", GreenCredits: 10},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), entries)
	}
	for i, w := range want {
		if entries[i] != w {
			t.Fatalf("rank %d: want %+v, got %+v", i, w, entries[i])
		}
	}
}

func TestListReportsFiltersByStatus(t *testing.T) {
	f := newAppFixture(t)
	f.seed(t, models.ReportStatusVerified, "asha", 0)
	f.seed(t, models.ReportStatusPending, "bilal", 0)
	f.seed(t, models.ReportStatusApproved, "chitra", 0)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/reports/?status=verified", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var filtered []models.Report
	decodeBody(t, resp, &filtered)
	if len(filtered) != 1 || filtered[0].Status != models.ReportStatusVerified {
		t.Fatalf("status filter broken: %+v", filtered)
	}

	resp2, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/reports/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var all []models.Report
	decodeBody(t, resp2, &all)
	if len(all) != 3 {
		t.Fatalf("expected all 3 reports, got %d", len(all))
	}
}

func TestRewardApproveEndpoint(t *testing.T) {
	f := newAppFixture(t)

	body := `{"user_id":"asha","reward_type":"green_credits","reward_value":75}`
	req := httptest.NewRequest(http.MethodPost, "/api/rewards/approve", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	asGovernment(req)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var approval models.RewardApproval
	decodeBody(t, resp, &approval)
	if approval.UserID != "asha" || approval.RewardValue != 75 {
		t.Fatalf("unexpected approval: %+v", approval)
	}
	if approval.ApprovedBy != "inspector@gov.example" {
		t.Fatalf("approver not taken from session: %q", approval.ApprovedBy)
	}
}

func TestRewardApproveValidation(t *testing.T) {
	f := newAppFixture(t)

	for _, body := range []string{
		`{"reward_type":"green_credits","reward_value":75}`,
		`{"user_id":"asha","reward_value":75}`,
		`{"user_id":"  ","reward_type":"green_credits"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/rewards/approve", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		asGovernment(req)
		resp, err := f.app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, resp.StatusCode)
		}
	}

	// Listing approvals is also government-only.
	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/rewards/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func uploadRequest(t *testing.T, description string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "smog.jpg")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	_ = w.WriteField("lat", "28.61")
	_ = w.WriteField("lng", "77.23")
	_ = w.WriteField("description", description)
	if err := w.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/reports/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadCreatesPendingReport(t *testing.T) {
	f := newAppFixture(t)

	req := uploadRequest(t, "smoke from the depot", []byte("jpeg-bytes"))
	asCitizen(req)
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var report models.Report
	decodeBody(t, resp, &report)
	if report.Status != models.ReportStatusPending || report.UserName != "asha" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Lat != 28.61 || report.Lng != 77.23 {
		t.Fatalf("coordinates not parsed: %+v", report)
	}
}

func TestUploadDuplicateImageRules(t *testing.T) {
	f := newAppFixture(t)
	image := []byte("same-jpeg-bytes")

	first := uploadRequest(t, "first sighting", image)
	asCitizen(first)
	resp, err := f.app.Test(first)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first upload: expected 201, got %d", resp.StatusCode)
	}

	// Same citizen re-submitting the same image is re-queued, not refused.
	resubmit := uploadRequest(t, "still there", image)
	asCitizen(resubmit)
	resp2, err := f.app.Test(resubmit)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("resubmit: expected 200, got %d", resp2.StatusCode)
	}
	var requeued models.Report
	decodeBody(t, resp2, &requeued)
	if requeued.Status != models.ReportStatusPending || requeued.Description != "still there" {
		t.Fatalf("resubmit did not re-queue: %+v", requeued)
	}

	// A different user with the same image is a duplicate.
	other := uploadRequest(t, "copying", image)
	other.Header.Set("Authorization", "Bearer other-token")
	other.Header.Set("X-User-Name", "bilal")
	other.Header.Set("X-User-Role", "citizen")
	resp3, err := f.app.Test(other)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp3.StatusCode != http.StatusConflict {
		t.Fatalf("other user's duplicate: expected 409, got %d", resp3.StatusCode)
	}
}

func TestUploadRequiresAuthentication(t *testing.T) {
	f := newAppFixture(t)

	resp, err := f.app.Test(uploadRequest(t, "anonymous", []byte("bytes")))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
