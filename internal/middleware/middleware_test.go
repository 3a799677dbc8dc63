package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	apperrors "energybudget/internal/errors"
	"energybudget/internal/metrics"
)

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/validation", func(c *gin.Context) {
		_ = c.Error(apperrors.WithFields([]apperrors.FieldError{
			apperrors.At(apperrors.ErrWeightSumMismatch, "allocations", "Allocation weights total 95.0%, required 100%"),
		}))
	})
	r.GET("/store", func(c *gin.Context) {
		_ = c.Error(apperrors.Wrap(apperrors.ErrStoreUnavailable, errors.New("dial tcp: connection refused")))
	})
	r.GET("/unexpected", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	t.Run("field errors are returned", func(t *testing.T) {
		rec := serve(r, http.MethodGet, "/validation", nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		body := parseBody(t, rec)
		errObj := body["error"].(map[string]interface{})
		if errObj["code"] != "VALIDATION_FAILED" {
			t.Errorf("code = %v", errObj["code"])
		}
		fields, ok := errObj["fields"].([]interface{})
		if !ok || len(fields) != 1 {
			t.Fatalf("expected one field error, got %v", errObj["fields"])
		}
		field := fields[0].(map[string]interface{})
		if field["field"] != "allocations" || field["code"] != "WEIGHT_SUM_MISMATCH" {
			t.Errorf("unexpected field error: %v", field)
		}
	})

	t.Run("internal detail is hidden", func(t *testing.T) {
		rec := serve(r, http.MethodGet, "/store", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		errObj := parseBody(t, rec)["error"].(map[string]interface{})
		if errObj["message"] != apperrors.ErrStoreUnavailable.Message {
			t.Errorf("message = %v", errObj["message"])
		}
		if _, ok := errObj["fields"]; ok {
			t.Error("fields should be omitted when empty")
		}
	})

	t.Run("unexpected error becomes internal error", func(t *testing.T) {
		rec := serve(r, http.MethodGet, "/unexpected", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		errObj := parseBody(t, rec)["error"].(map[string]interface{})
		if errObj["code"] != "INTERNAL_ERROR" {
			t.Errorf("code = %v", errObj["code"])
		}
	})
}

func TestRequestLogging(t *testing.T) {
	m := metrics.New()
	r := gin.New()
	r.Use(RequestLogging(m))
	r.GET("/budgets/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": RequestID(c)})
	})

	t.Run("generates a request id", func(t *testing.T) {
		rec := serve(r, http.MethodGet, "/budgets/1", nil)
		id := rec.Header().Get(RequestIDHeader)
		if id == "" {
			t.Fatal("expected X-Request-ID header")
		}
		if got := parseBody(t, rec)["request_id"]; got != id {
			t.Errorf("context request id = %v, header = %s", got, id)
		}
	})

	t.Run("reuses the caller's request id", func(t *testing.T) {
		rec := serve(r, http.MethodGet, "/budgets/2", http.Header{RequestIDHeader: {"abc-123"}})
		if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("X-Request-ID = %q, want abc-123", got)
		}
	})

	t.Run("counts requests by route", func(t *testing.T) {
		serve(r, http.MethodGet, "/nowhere", nil)
		if got := testutil.CollectAndCount(m.Registry(), "energybudget_http_requests_total"); got != 2 {
			t.Errorf("expected series for the budget route and unmatched, got %d", got)
		}
	})
}

func TestRequestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(RequestTimeout(20 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			if errors.Is(c.Request.Context().Err(), context.DeadlineExceeded) {
				c.Status(http.StatusGatewayTimeout)
				return
			}
			c.Status(http.StatusInternalServerError)
		case <-time.After(time.Second):
			c.Status(http.StatusOK)
		}
	})

	rec := serve(r, http.MethodGet, "/slow", nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}

	unbounded := gin.New()
	unbounded.Use(RequestTimeout(0))
	unbounded.GET("/deadline", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); ok {
			t.Error("unexpected deadline with zero timeout")
		}
		c.Status(http.StatusNoContent)
	})
	serve(unbounded, http.MethodGet, "/deadline", nil)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.PATCH("/budgets/1", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(r, http.MethodOptions, "/budgets/1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("expected Access-Control-Allow-Methods header")
	}

	rec = serve(r, http.MethodPatch, "/budgets/1", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected response: %d %v", rec.Code, rec.Header())
	}
}
