package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const recalcPath = "/api/v1/pipeline/recalculate"

// setupRecalcRouter mounts a stand-in for the pipeline recalculation route
// and counts how often it is reached.
func setupRecalcRouter(apiKey string, runs *int) *gin.Engine {
	r := gin.New()
	pipeline := r.Group("/api/v1/pipeline", PipelineAuthMiddleware(apiKey))
	pipeline.POST("/recalculate", func(c *gin.Context) {
		*runs++
		c.JSON(http.StatusOK, gin.H{"budgets": 3, "recalculated": 3})
	})
	return r
}

func postRecalc(r *gin.Engine, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, recalcPath, http.NoBody)
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
	return result
}

func TestPipelineAuthMiddleware(t *testing.T) {
	const ingestionKey = "ingestion-7f3a"

	tests := []struct {
		name          string
		configuredKey string
		requestKey    string
		wantStatus    int
		wantErrorCode string
	}{
		{name: "ingestion key triggers recalculation", configuredKey: ingestionKey, requestKey: ingestionKey, wantStatus: http.StatusOK},
		{name: "wrong key", configuredKey: ingestionKey, requestKey: "ingestion-0000", wantStatus: http.StatusUnauthorized, wantErrorCode: "INVALID_API_KEY"},
		{name: "no key header", configuredKey: ingestionKey, wantStatus: http.StatusUnauthorized, wantErrorCode: "INVALID_API_KEY"},
		{name: "key prefix", configuredKey: ingestionKey, requestKey: "ingestion", wantStatus: http.StatusUnauthorized, wantErrorCode: "INVALID_API_KEY"},
		{name: "key with trailing data", configuredKey: ingestionKey, requestKey: ingestionKey + "x", wantStatus: http.StatusUnauthorized, wantErrorCode: "INVALID_API_KEY"},
		{name: "pipeline disabled", requestKey: ingestionKey, wantStatus: http.StatusServiceUnavailable, wantErrorCode: "PIPELINE_NOT_CONFIGURED"},
		{name: "pipeline disabled without key", wantStatus: http.StatusServiceUnavailable, wantErrorCode: "PIPELINE_NOT_CONFIGURED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs int
			rec := postRecalc(setupRecalcRouter(tt.configuredKey, &runs), tt.requestKey)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if tt.wantErrorCode == "" {
				if runs != 1 {
					t.Errorf("expected one recalculation run, got %d", runs)
				}
				if got := parseBody(t, rec)["recalculated"]; got != float64(3) {
					t.Errorf("expected the run summary, got %v", got)
				}
				return
			}

			if runs != 0 {
				t.Errorf("rejected request must not start a recalculation, got %d runs", runs)
			}
			errObj, ok := parseBody(t, rec)["error"].(map[string]interface{})
			if !ok {
				t.Fatal("expected error object in response")
			}
			if code, _ := errObj["code"].(string); code != tt.wantErrorCode {
				t.Errorf("error code = %q, want %q", code, tt.wantErrorCode)
			}
		})
	}
}
