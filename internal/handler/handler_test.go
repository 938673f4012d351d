package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fuelsync/fuelsync/internal/auth"
	"github.com/fuelsync/fuelsync/internal/cascade"
	"github.com/fuelsync/fuelsync/internal/currency"
	"github.com/fuelsync/fuelsync/internal/kv/memory"
	"github.com/fuelsync/fuelsync/internal/middleware"
	"github.com/fuelsync/fuelsync/internal/model"
	"github.com/fuelsync/fuelsync/internal/repository"
	"github.com/fuelsync/fuelsync/internal/service"
	"github.com/fuelsync/fuelsync/internal/testutil"
)

const testSecret = "handler-test-secret"

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := testutil.DiscardLogger()
	store := memory.New(memory.Options{})
	repo := repository.New(store)

	snapshots := repo.RateSnapshots(nil, nil)
	err := snapshots.PutSnapshot(context.Background(), &model.RateSnapshot{
		Date:  "2024-03-01",
		Base:  "USD",
		Rates: map[string]float64{"UAH": 40},
	})
	if err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	rates := currency.New(snapshots, nil, currency.Options{
		Now:    func() time.Time { return testNow },
		Logger: logger,
	})
	svc := service.New(repo, rates, cascade.New(store, cascade.Options{Logger: logger}), service.Options{
		Logger: logger,
		Now:    func() time.Time { return testNow },
	})

	return NewRouter(RouterConfig{
		Logger:   logger,
		Service:  svc,
		Verifier: auth.NewVerifier(auth.VerifierConfig{Secret: testSecret}),
		Security: middleware.SecurityConfig{IsDevelopment: true, MaxRequestBodySize: 1 << 10},
	})
}

// do sends a request as owner (unauthenticated when owner is empty).
func do(t *testing.T, h http.Handler, owner, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+testutil.SignToken(t, testSecret, owner, owner+"@example.com"))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decodeBody[map[string]string](t, rec)["code"]; got != code {
		t.Errorf("expected code %s, got %s", code, got)
	}
}

func createVehicle(t *testing.T, h http.Handler, owner string) model.Vehicle {
	t.Helper()
	rec := do(t, h, owner, http.MethodPost, "/api/v1/vehicles", map[string]any{
		"make": "Skoda", "model": "Octavia", "year": 2019, "fuelType": "diesel",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create vehicle: status %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[model.Vehicle](t, rec)
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, "", http.MethodGet, "/nonexistent", nil)
	expectError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = do(t, h, "", http.MethodPost, "/healthz", nil)
	expectError(t, rec, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, "", http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(t, h, "", http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with nothing configured, got %d", rec.Code)
	}
	resp := decodeBody[HealthResponse](t, rec)
	if resp.Checks["store"] != "not configured" || resp.Checks["cache"] != "not configured" {
		t.Errorf("unexpected checks: %v", resp.Checks)
	}

	rec = do(t, h, "", http.MethodGet, "/metrics", nil)
	expectError(t, rec, http.StatusServiceUnavailable, "METRICS_DISABLED")
}

func TestAPI_RequiresAuth(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, "", http.MethodGet, "/api/v1/vehicles", nil)
	expectError(t, rec, http.StatusUnauthorized, "UNAUTHENTICATED")
}

func TestAPI_ProfileAndSettings(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, "owner-1", http.MethodGet, "/api/v1/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[map[string]any](t, rec)["email"]; got != "owner-1@example.com" {
		t.Errorf("expected email from token, got %v", got)
	}

	rec = do(t, h, "owner-1", http.MethodPut, "/api/v1/settings", map[string]any{"preferredCurrency": "eur"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[map[string]any](t, rec)["preferredCurrency"]; got != "EUR" {
		t.Errorf("expected EUR, got %v", got)
	}
}

func TestAPI_VehicleLifecycle(t *testing.T) {
	h := newTestRouter(t)
	v := createVehicle(t, h, "owner-1")
	if v.ID == "" || v.OwnerID != "owner-1" {
		t.Fatalf("unexpected vehicle: %+v", v)
	}
	path := "/api/v1/vehicles/" + v.ID

	rec := do(t, h, "owner-2", http.MethodGet, path, nil)
	expectError(t, rec, http.StatusNotFound, "VEHICLE_NOT_FOUND")

	rec = do(t, h, "owner-1", http.MethodPatch, path, map[string]any{"licensePlate": "AA1234BB"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[model.Vehicle](t, rec); got.LicensePlate != "AA1234BB" || got.Make != "Skoda" {
		t.Errorf("unexpected update result: %+v", got)
	}

	rec = do(t, h, "owner-1", http.MethodPost, path+"/refills", map[string]any{
		"timestamp": "2024-03-04T08:00:00Z", "volume": 40, "pricePerUnit": 50, "currency": "UAH",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create refill: %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "owner-1", http.MethodDelete, path, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, "owner-1", http.MethodGet, path, nil)
	expectError(t, rec, http.StatusNotFound, "VEHICLE_NOT_FOUND")
	rec = do(t, h, "owner-1", http.MethodDelete, path, nil)
	expectError(t, rec, http.StatusNotFound, "VEHICLE_NOT_FOUND")
}

func TestAPI_Validation(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing make", http.MethodPost, "/api/v1/vehicles", map[string]any{"model": "Octavia"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad fuel type", http.MethodPost, "/api/v1/vehicles", map[string]any{"make": "a", "model": "b", "fuelType": "steam"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid json", http.MethodPost, "/api/v1/vehicles", "{not json", http.StatusBadRequest, "INVALID_JSON"},
		{"empty body", http.MethodPost, "/api/v1/vehicles", nil, http.StatusBadRequest, "INVALID_JSON"},
		{"body too large", http.MethodPost, "/api/v1/vehicles", `{"make":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"malformed nextToken", http.MethodGet, "/api/v1/vehicles?nextToken=%25%25garbage", nil, http.StatusBadRequest, "MALFORMED_CURSOR"},
		{"bad rate date", http.MethodGet, "/api/v1/rates/2024-13-45?currency=UAH", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "owner-1", tt.method, tt.path, tt.body)
			expectError(t, rec, tt.status, tt.code)
		})
	}
}

func TestAPI_VehiclePaging(t *testing.T) {
	h := newTestRouter(t)
	for range 5 {
		createVehicle(t, h, "owner-1")
	}
	createVehicle(t, h, "owner-2")

	seen := map[string]bool{}
	token := ""
	pages := 0
	for {
		path := "/api/v1/vehicles?limit=2"
		if token != "" {
			path += "&nextToken=" + token
		}
		rec := do(t, h, "owner-1", http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("list: %d: %s", rec.Code, rec.Body.String())
		}
		page := decodeBody[struct {
			Items     []model.Vehicle `json:"items"`
			NextToken string          `json:"nextToken"`
		}](t, rec)
		pages++
		for _, v := range page.Items {
			if seen[v.ID] {
				t.Fatalf("vehicle %s returned twice", v.ID)
			}
			seen[v.ID] = true
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
		if pages > 5 {
			t.Fatal("paging did not terminate")
		}
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 vehicles, got %d", len(seen))
	}
	if pages != 3 {
		t.Errorf("expected 3 pages, got %d", pages)
	}
}

func TestAPI_RecordTimestampOutOfRange(t *testing.T) {
	h := newTestRouter(t)
	v := createVehicle(t, h, "owner-1")
	base := "/api/v1/vehicles/" + v.ID

	rec := do(t, h, "owner-1", http.MethodPost, base+"/refills", map[string]any{
		"timestamp": "1969-12-31T00:00:00Z", "volume": 10, "pricePerUnit": 2,
	})
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	rec = do(t, h, "owner-1", http.MethodPost, base+"/expenses", map[string]any{
		"timestamp": "1969-07-20T20:17:00Z", "category": "Repair", "amount": 5,
	})
	expectError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	rec = do(t, h, "owner-1", http.MethodGet, base+"/refills", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list refills: %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("expected no refills stored, got %s", rec.Body.String())
	}
}

func TestAPI_RefillsAndStatistics(t *testing.T) {
	h := newTestRouter(t)
	v := createVehicle(t, h, "owner-1")
	base := "/api/v1/vehicles/" + v.ID

	rec := do(t, h, "owner-1", http.MethodPost, base+"/refills", map[string]any{
		"timestamp": "2024-03-04T08:00:00Z", "volume": 40, "pricePerUnit": 50, "currency": "UAH",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create refill: %d: %s", rec.Code, rec.Body.String())
	}
	refill := decodeBody[model.Refill](t, rec)
	if refill.TotalCost != 2000 || refill.BaseAmount != 50 || refill.RateDate != "2024-03-01" {
		t.Errorf("unexpected refill: %+v", refill)
	}

	rec = do(t, h, "owner-1", http.MethodPost, base+"/expenses", map[string]any{
		"timestamp": "2024-04-10T08:00:00Z", "category": "Maintenance", "amount": 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense: %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "owner-1", http.MethodGet, base+"/refills/"+refill.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get refill: %d", rec.Code)
	}
	rec = do(t, h, "owner-1", http.MethodGet, base+"/refills/01ARZ3NDEKTSV4RRFFQ69G5FAV", nil)
	expectError(t, rec, http.StatusNotFound, "REFILL_NOT_FOUND")

	rec = do(t, h, "owner-1", http.MethodGet, base+"/statistics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics: %d: %s", rec.Code, rec.Body.String())
	}
	st := decodeBody[service.Statistics](t, rec)
	if st.Currency != "USD" || st.Refills.TotalCost != 50 || st.Expenses.TotalCost != 30 || st.Totals.AllCosts != 80 {
		t.Errorf("unexpected statistics: %+v", st)
	}

	rec = do(t, h, "owner-1", http.MethodGet, base+"/charts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("charts: %d", rec.Code)
	}
	charts := decodeBody[service.Charts](t, rec)
	if fmt.Sprint(charts.Costs.Labels) != "[Mar 2024 Apr 2024]" {
		t.Errorf("unexpected labels: %v", charts.Costs.Labels)
	}

	rec = do(t, h, "owner-1", http.MethodDelete, base+"/refills/"+refill.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete refill: %d", rec.Code)
	}
	rec = do(t, h, "owner-1", http.MethodGet, base+"/refills", nil)
	if got := decodeBody[map[string]any](t, rec)["items"].([]any); len(got) != 0 {
		t.Errorf("expected no refills, got %d", len(got))
	}
}

func TestAPI_RateAndDashboard(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, "owner-1", http.MethodGet, "/api/v1/rates/2024-03-05?currency=uah", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rate: %d: %s", rec.Code, rec.Body.String())
	}
	q := decodeBody[currency.Quote](t, rec)
	if q.Rate != 40 || q.Source != currency.SourceNearest || q.RateDate != "2024-03-01" {
		t.Errorf("unexpected quote: %+v", q)
	}

	createVehicle(t, h, "owner-1")
	rec = do(t, h, "owner-1", http.MethodGet, "/api/v1/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: %d", rec.Code)
	}
	if d := decodeBody[service.Dashboard](t, rec); d.VehicleCount != 1 {
		t.Errorf("expected 1 vehicle, got %d", d.VehicleCount)
	}
}
