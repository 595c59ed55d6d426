package integration

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/health"
)

var validate = validator.New()

// TestAPIHelpers contains helper functions for API testing
type TestAPIHelpers struct {
	t     *testing.T
	e     *echo.Echo
	actor string
}

func NewTestAPIHelpers(t *testing.T) *TestAPIHelpers {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	e.Use(middleware.Context())

	return &TestAPIHelpers{
		t:     t,
		e:     e,
		actor: "test-admin@chapter.ph",
	}
}

func (h *TestAPIHelpers) MakeRequest(method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderActor, h.actor)

	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *TestAPIHelpers) decodeError(rec *httptest.ResponseRecorder) middleware.ErrorResponse {
	var resp middleware.ErrorResponse
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSearchAPI_Validation(t *testing.T) {
	t.Run("ValidRequest", func(t *testing.T) {
		req := models.SearchRequest{Query: "I need a family lawyer in Makati", Limit: 10}
		assert.NoError(t, validate.Struct(req))
	})

	t.Run("QueryIsRequired", func(t *testing.T) {
		req := models.SearchRequest{Limit: 10}
		assert.Error(t, validate.Struct(req))
	})

	t.Run("LimitZeroMeansDefault", func(t *testing.T) {
		req := models.SearchRequest{Query: "find Juan Dela Cruz"}
		assert.NoError(t, validate.Struct(req))
	})

	t.Run("LimitBounds", func(t *testing.T) {
		for limit, wantErr := range map[int]bool{1: false, 100: false, 101: true, -1: true} {
			req := models.SearchRequest{Query: "doctors in QC", Limit: limit}
			err := validate.Struct(req)
			if wantErr {
				assert.Error(t, err, "limit %d should be rejected", limit)
			} else {
				assert.NoError(t, err, "limit %d should be accepted", limit)
			}
		}
	})
}

func TestMergeAPI_Validation(t *testing.T) {
	t.Run("AllStrategiesAccepted", func(t *testing.T) {
		for _, strategy := range []string{"keep_newest", "keep_both", "manual_review"} {
			req := models.MergeGroupRequest{Strategy: strategy}
			assert.NoError(t, validate.Struct(req), "strategy %s should be accepted", strategy)
		}
	})

	t.Run("UnknownStrategyRejected", func(t *testing.T) {
		req := models.MergeGroupRequest{Strategy: "delete_everything"}
		assert.Error(t, validate.Struct(req))
	})

	t.Run("StrategyIsRequired", func(t *testing.T) {
		req := models.MergeGroupRequest{Notes: "looks like the same person"}
		assert.Error(t, validate.Struct(req))
	})

	t.Run("FieldOverridesAreOptional", func(t *testing.T) {
		req := models.MergeGroupRequest{
			Strategy:       "keep_newest",
			FieldOverrides: map[string]string{"mobile_number": "member-123"},
		}
		assert.NoError(t, validate.Struct(req))
	})
}

func TestMemberAPI_Validation(t *testing.T) {
	t.Run("CreateRequiresFields", func(t *testing.T) {
		req := models.CreateMemberRequest{SourceName: "manual"}
		assert.Error(t, validate.Struct(req))

		req.Fields = map[string]any{"NAME": "Juan Dela Cruz"}
		assert.NoError(t, validate.Struct(req))
	})

	t.Run("UpdateRequiresFields", func(t *testing.T) {
		req := models.UpdateMemberRequest{}
		assert.Error(t, validate.Struct(req))

		req.Fields = map[string]any{"MOBILE": "0917 555 1234"}
		assert.NoError(t, validate.Struct(req))
	})
}

func TestErrorHandler(t *testing.T) {
	h := NewTestAPIHelpers(t)

	h.e.GET("/api/v1/members/:id", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusNotFound, "member not found")
	})
	h.e.GET("/api/v1/boom", func(c echo.Context) error {
		return errors.New("pq: connection refused")
	})
	h.e.GET("/api/v1/echo-error", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	})

	t.Run("HTTPErrorKeepsStatusAndMessage", func(t *testing.T) {
		rec := h.MakeRequest(http.MethodGet, "/api/v1/members/missing-id", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		resp := h.decodeError(rec)
		assert.Equal(t, "member not found", resp.Message)
		assert.NotEmpty(t, resp.RequestID)
	})

	t.Run("UnexpectedErrorIsNotLeaked", func(t *testing.T) {
		rec := h.MakeRequest(http.MethodGet, "/api/v1/boom", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := h.decodeError(rec)
		assert.Equal(t, "Internal Server Error", resp.Message)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})

	t.Run("EchoErrorsPassThrough", func(t *testing.T) {
		rec := h.MakeRequest(http.MethodGet, "/api/v1/echo-error", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := h.decodeError(rec)
		assert.Equal(t, "invalid request body", resp.Message)
	})

	t.Run("RequestIDEchoesHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/members/missing-id", nil)
		req.Header.Set(echo.HeaderXRequestID, "req-42")
		rec := httptest.NewRecorder()
		h.e.ServeHTTP(rec, req)

		resp := h.decodeError(rec)
		assert.Equal(t, "req-42", resp.RequestID)
	})
}

func TestHealthAPI(t *testing.T) {
	h := NewTestAPIHelpers(t)
	checker := health.NewChecker(nil, nil, nil, nil, "test")
	checker.RegisterRoutes(h.e)

	t.Run("LiveIsAlwaysAlive", func(t *testing.T) {
		rec := h.MakeRequest(http.MethodGet, "/api/v1/health/live", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status": "alive"}`, rec.Body.String())
	})

	t.Run("ReadyGatesOnStartup", func(t *testing.T) {
		rec := h.MakeRequest(http.MethodGet, "/api/v1/health/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status": "not ready"}`, rec.Body.String())

		checker.SetReady(true)

		rec = h.MakeRequest(http.MethodGet, "/api/v1/health/ready", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status": "ready"}`, rec.Body.String())
	})

	t.Run("HealthReportsMissingDatabase", func(t *testing.T) {
		rec := h.MakeRequest(http.MethodGet, "/api/v1/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status health.HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "unhealthy", status.Status)
		assert.Equal(t, "test", status.Version)

		require.Contains(t, status.Checks, "database")
		assert.Equal(t, "unhealthy", status.Checks["database"].Status)
		assert.Equal(t, "database not configured", status.Checks["database"].Message)

		// Optional dependencies are skipped, not reported as failures.
		assert.NotContains(t, status.Checks, "redis")
		assert.NotContains(t, status.Checks, "kafka_consumer")
		assert.NotContains(t, status.Checks, "graph")
	})
}

func BenchmarkHealthEndpoint(b *testing.B) {
	e := echo.New()
	checker := health.NewChecker(nil, nil, nil, nil, "bench")
	checker.RegisterRoutes(e)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}
}
