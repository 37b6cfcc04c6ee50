package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Check(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name           string
		stores         map[string]Pinger
		expectedStatus int
		expectedBody   string
	}{
		{"NoStores", nil, http.StatusOK, `"status":"ok"`},
		{"AllHealthy", map[string]Pinger{"postgres": healthy, "mongodb": healthy}, http.StatusOK, `"postgres":"ok"`},
		{"OneDown", map[string]Pinger{"postgres": healthy, "mongodb": down}, http.StatusServiceUnavailable, `"mongodb":"unavailable"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(newTestLogger(), "split", tt.stores)
			r := gin.New()
			r.GET("/health", h.Check)

			req, _ := http.NewRequest(http.MethodGet, "/health", nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
			assert.Contains(t, rr.Body.String(), `"backend":"split"`)
		})
	}
}
