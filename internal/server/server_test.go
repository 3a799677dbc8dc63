package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"energybudget/internal/config"
	"energybudget/internal/logger"
	"energybudget/internal/metrics"
	"energybudget/internal/models"
	"energybudget/internal/testutil"
)

const pipelineKey = "test-pipeline-key"

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test", "error")
}

type testApp struct {
	db     *gorm.DB
	router *gin.Engine
	meterA *models.Meter
	meterB *models.Meter
	energy *models.EnergyType
}

func setupApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	energy := testutil.CreateTestEnergyType(t, db)
	a := testutil.CreateTestMeter(t, db, energy.ID)
	b := testutil.CreateTestMeter(t, db, energy.ID)

	if cfg == nil {
		cfg = &config.Config{PipelineAPIKey: pipelineKey, RequestTimeout: 5 * time.Second}
	}
	app := NewApp(db, cfg, metrics.New(), fixedClock(testutil.Date(2024, 2, 15)))
	return &testApp{db: db, router: app.Router, meterA: a, meterB: b, energy: energy}
}

func (a *testApp) request(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseJSON(t, rec)["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

func (a *testApp) createParent(t *testing.T) float64 {
	t.Helper()
	rec := a.request("POST", "/api/v1/budgets", fmt.Sprintf(
		`{"budgetType":"parent","periodStart":"2024-01-01","periodEnd":"2024-12-31","totalBudget":120000000,"efficiencyTag":0.9,"energyTypeId":%d}`,
		a.energy.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating parent, got %d: %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["budget"].(map[string]interface{})["id"].(float64)
}

func (a *testApp) childBody(parentID float64, wA, wB float64) string {
	return fmt.Sprintf(
		`{"budgetType":"child","parentBudgetId":%.0f,"periodStart":"2024-01-01","periodEnd":"2024-03-31","totalBudget":30000000,
		  "allocations":[{"meterId":%d,"weight":%g},{"meterId":%d,"weight":%g}]}`,
		parentID, a.meterA.ID, wA, a.meterB.ID, wB)
}

func capacity(t *testing.T, a *testApp, parentID float64) float64 {
	t.Helper()
	rec := a.request("GET", fmt.Sprintf("/api/v1/budgets/%.0f/available-capacity", parentID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reading capacity, got %d: %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["availableBudgetForNextPeriod"].(float64)
}

func TestBudgetLifecycle(t *testing.T) {
	app := setupApp(t, nil)

	// Step 1: parent budget with full capacity
	parentID := app.createParent(t)
	if got := capacity(t, app, parentID); got != 120000000 {
		t.Fatalf("expected capacity 120000000 before children, got %v", got)
	}

	// Step 2: unbalanced weights are rejected with the concrete total
	rec := app.request("POST", "/api/v1/budgets", app.childBody(parentID, 0.5, 0.45))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	fields := parseJSON(t, rec)["error"].(map[string]interface{})["fields"].([]interface{})
	field := fields[0].(map[string]interface{})
	if field["code"] != "WEIGHT_SUM_MISMATCH" || !strings.Contains(field["message"].(string), "95.0%") {
		t.Errorf("unexpected field error: %v", field)
	}

	// Step 3: balanced child
	rec = app.request("POST", "/api/v1/budgets", app.childBody(parentID, 0.6, 0.4), "X-Actor-ID", "planner")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating child, got %d: %s", rec.Code, rec.Body.String())
	}
	childID := parseJSON(t, rec)["budget"].(map[string]interface{})["id"].(float64)
	if got := capacity(t, app, parentID); got != 90000000 {
		t.Fatalf("expected capacity 90000000 after child, got %v", got)
	}

	var audits int64
	app.db.Model(&models.AuditLog{}).Where("actor = ? AND action = ?", "planner", "CREATE_BUDGET").Count(&audits)
	if audits != 1 {
		t.Errorf("expected one audit entry for the child, got %d", audits)
	}

	// Step 4: meter A overspends its share
	testutil.CreateTestUsage(t, app.db, app.meterA.ID, testutil.Date(2024, 1, 20), 20000000)

	rec = app.request("GET", fmt.Sprintf("/api/v1/budgets/%.0f", childID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	detail := parseJSON(t, rec)["budget"].(map[string]interface{})
	var meterA map[string]interface{}
	for _, a := range detail["allocations"].([]interface{}) {
		alloc := a.(map[string]interface{})
		if alloc["meterId"].(float64) == float64(app.meterA.ID) {
			meterA = alloc
		}
	}
	if meterA == nil {
		t.Fatalf("meter A missing from allocations: %v", detail["allocations"])
	}
	if meterA["allocatedBudget"].(float64) != 18000000 || meterA["remainingBudget"].(float64) != -2000000 {
		t.Errorf("unexpected meter A figures: %v", meterA)
	}
	if meterA["realizationPercentage"].(float64) != 111.11 {
		t.Errorf("expected 111.11%%, got %v", meterA["realizationPercentage"])
	}
	if detail["status"] != "active" {
		t.Errorf("expected active status, got %v", detail["status"])
	}

	// Step 5: preview never persists
	var before int64
	app.db.Model(&models.AnnualBudget{}).Count(&before)
	rec = app.request("POST", "/api/v1/budgets/preview", fmt.Sprintf(
		`{"parentBudgetId":%.0f,"periodStart":"2024-04-01","periodEnd":"2024-06-30","allocations":[{"meterId":%d,"weight":1}]}`,
		parentID, app.meterA.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 previewing, got %d: %s", rec.Code, rec.Body.String())
	}
	preview := parseJSON(t, rec)
	if preview["totalBudget"].(float64) != 90000000 || preview["budgetPerMonth"].(float64) != 30000000 {
		t.Errorf("expected the remaining capacity spread over 3 months, got %v", preview)
	}
	var after int64
	app.db.Model(&models.AnnualBudget{}).Count(&after)
	if before != after {
		t.Errorf("preview changed the budget count from %d to %d", before, after)
	}

	// Step 6: deleting a parent with children needs cascade
	rec = app.request("DELETE", fmt.Sprintf("/api/v1/budgets/%.0f", parentID), "")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "HAS_DEPENDENT_CHILDREN" {
		t.Fatalf("expected 409 HAS_DEPENDENT_CHILDREN, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = app.request("DELETE", fmt.Sprintf("/api/v1/budgets/%.0f?cascade=true", parentID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 deleting with cascade, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = app.request("GET", fmt.Sprintf("/api/v1/budgets/%.0f", childID), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected child to be gone, got %d", rec.Code)
	}
}

func TestPartialUpdate(t *testing.T) {
	app := setupApp(t, nil)
	parentID := app.createParent(t)
	rec := app.request("POST", "/api/v1/budgets", app.childBody(parentID, 0.6, 0.4))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	childID := parseJSON(t, rec)["budget"].(map[string]interface{})["id"].(float64)
	path := fmt.Sprintf("/api/v1/budgets/%.0f", childID)

	rec = app.request("PATCH", path, `{"totalBudget":40000000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	budget := parseJSON(t, rec)["budget"].(map[string]interface{})
	if budget["totalBudget"].(float64) != 40000000 || len(budget["allocations"].([]interface{})) != 2 {
		t.Errorf("unexpected updated budget: %v", budget)
	}
	if got := capacity(t, app, parentID); got != 80000000 {
		t.Errorf("expected capacity 80000000, got %v", got)
	}

	rec = app.request("PATCH", path, `{"totalBudget":130000000}`)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "CAPACITY_EXCEEDED" {
		t.Errorf("expected 409 CAPACITY_EXCEEDED, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = app.request("PATCH", path, `{"budgetType":"parent"}`)
	if rec.Code == http.StatusOK {
		t.Errorf("changing a child into a parent must fail, got %s", rec.Body.String())
	}

	// Same number of rows as stored, but no weights: nothing may be carried over.
	c := testutil.CreateTestMeter(t, app.db, app.energy.ID)
	d := testutil.CreateTestMeter(t, app.db, app.energy.ID)
	rec = app.request("PATCH", path, fmt.Sprintf(`{"allocations":[{"meterId":%d},{"meterId":%d}]}`, c.ID, d.ID))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for allocations without weights, got %d: %s", rec.Code, rec.Body.String())
	}
	if !hasFieldError(t, rec, "allocations[0].weight", "FIELD_RANGE") {
		t.Errorf("expected FIELD_RANGE on allocations[0].weight, got %s", rec.Body.String())
	}
	rec = app.request("GET", path, "")
	allocations := parseJSON(t, rec)["budget"].(map[string]interface{})["allocations"].([]interface{})
	kept := map[float64]bool{}
	for _, raw := range allocations {
		kept[raw.(map[string]interface{})["meterId"].(float64)] = true
	}
	if len(kept) != 2 || !kept[float64(app.meterA.ID)] || !kept[float64(app.meterB.ID)] {
		t.Errorf("rejected patch must leave the stored allocations alone, got %v", allocations)
	}
}

func hasFieldError(t *testing.T, rec *httptest.ResponseRecorder, field, code string) bool {
	t.Helper()
	body := parseJSON(t, rec)
	errBody, _ := body["error"].(map[string]interface{})
	fields, _ := errBody["fields"].([]interface{})
	for _, raw := range fields {
		f := raw.(map[string]interface{})
		if f["field"] == field && f["code"] == code {
			return true
		}
	}
	return false
}

func TestRealizationSnapshotsAndPipeline(t *testing.T) {
	app := setupApp(t, nil)
	parentID := app.createParent(t)
	rec := app.request("POST", "/api/v1/budgets", app.childBody(parentID, 0.6, 0.4))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	childID := parseJSON(t, rec)["budget"].(map[string]interface{})["id"].(float64)
	testutil.CreateTestUsage(t, app.db, app.meterB.ID, testutil.Date(2024, 2, 1), 6000000)

	realizationPath := fmt.Sprintf("/api/v1/budgets/%.0f/realization", childID)
	rec = app.request("GET", realizationPath, "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "SNAPSHOT_NOT_FOUND" {
		t.Fatalf("expected 404 before recalculation, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = app.request("POST", fmt.Sprintf("/api/v1/budgets/%.0f/recalculate", childID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 recalculating, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = app.request("GET", realizationPath, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after recalculation, got %d: %s", rec.Code, rec.Body.String())
	}
	snapshot := parseJSON(t, rec)["realization"].(map[string]interface{})
	if snapshot["totalRealization"].(float64) != 6000000 || snapshot["runId"] == "" {
		t.Errorf("unexpected snapshot: %v", snapshot)
	}

	rec = app.request("POST", "/api/v1/pipeline/recalculate", "")
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "INVALID_API_KEY" {
		t.Errorf("expected 401 without key, got %d", rec.Code)
	}

	rec = app.request("POST", "/api/v1/pipeline/recalculate", "", "X-API-Key", pipelineKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d: %s", rec.Code, rec.Body.String())
	}
	summary := parseJSON(t, rec)
	if summary["budgets"].(float64) != 2 || summary["recalculated"].(float64) != 2 {
		t.Errorf("expected both active budgets recalculated, got %v", summary)
	}
}

func TestOptionalIntegrations(t *testing.T) {
	app := setupApp(t, &config.Config{RequestTimeout: time.Second})
	parentID := app.createParent(t)

	rec := app.request("GET", fmt.Sprintf("/api/v1/budgets/%.0f/classification", parentID), "")
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "UPSTREAM_NOT_CONFIGURED" {
		t.Errorf("expected 503 without classifier, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = app.request("POST", "/api/v1/pipeline/recalculate", "", "X-API-Key", "anything")
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "PIPELINE_NOT_CONFIGURED" {
		t.Errorf("expected 503 without pipeline key, got %d", rec.Code)
	}
}

func TestClassificationThroughClassifier(t *testing.T) {
	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"label": "HEMAT", "confidence": 0.8})
	}))
	defer classifier.Close()

	app := setupApp(t, &config.Config{ClassifierURL: classifier.URL, EstimatorTimeout: time.Second})
	parentID := app.createParent(t)

	rec := app.request("GET", fmt.Sprintf("/api/v1/budgets/%.0f/classification", parentID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	classification := parseJSON(t, rec)["classification"].(map[string]interface{})
	if classification["label"] != "HEMAT" {
		t.Errorf("expected HEMAT, got %v", classification["label"])
	}
}

func TestMasterDataRoutes(t *testing.T) {
	app := setupApp(t, nil)

	rec := app.request("GET", "/api/v1/energy-types", "")
	if rec.Code != http.StatusOK || len(parseJSON(t, rec)["energyTypes"].([]interface{})) != 1 {
		t.Errorf("unexpected energy types response: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.request("GET", fmt.Sprintf("/api/v1/meters?energyType=%d&status=active", app.energy.ID), "")
	if rec.Code != http.StatusOK || len(parseJSON(t, rec)["meters"].([]interface{})) != 2 {
		t.Errorf("unexpected meters response: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.request("GET", "/api/v1/energy-types/999", "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "ENERGY_TYPE_NOT_FOUND" {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestOperationalRoutes(t *testing.T) {
	app := setupApp(t, nil)

	rec := app.request("GET", "/api/health", "")
	if rec.Code != http.StatusOK || parseJSON(t, rec)["status"] != "ok" {
		t.Errorf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}

	app.request("GET", "/api/v1/energy-types", "")
	rec = app.request("GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `energybudget_http_requests_total{method="GET",route="/api/v1/energy-types",status="200"}`) {
		t.Errorf("expected request counter in metrics output")
	}

	rec = app.request("GET", "/swagger/doc.json", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/budgets/preview") {
		t.Errorf("expected swagger document, got %d", rec.Code)
	}
}
