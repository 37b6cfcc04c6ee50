package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Authenticate(token string) (uuid.UUID, error) {
	args := m.Called(token)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func TestAuthenticateMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accountID := uuid.New()

	tests := []struct {
		name           string
		header         string
		setupMock      func(m *MockTokenVerifier)
		expectedStatus int
	}{
		{
			name:   "ValidToken",
			header: "Bearer good-token",
			setupMock: func(m *MockTokenVerifier) {
				m.On("Authenticate", "good-token").Return(accountID, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "SchemeIsCaseInsensitive",
			header: "bearer good-token",
			setupMock: func(m *MockTokenVerifier) {
				m.On("Authenticate", "good-token").Return(accountID, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "MissingHeader",
			setupMock:      func(m *MockTokenVerifier) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "WrongScheme",
			header:         "Basic dXNlcjpwYXNz",
			setupMock:      func(m *MockTokenVerifier) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "EmptyToken",
			header:         "Bearer  ",
			setupMock:      func(m *MockTokenVerifier) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:   "RejectedToken",
			header: "Bearer expired-token",
			setupMock: func(m *MockTokenVerifier) {
				m.On("Authenticate", "expired-token").Return(uuid.Nil, errors.New("token is expired")).Once()
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &MockTokenVerifier{}
			tt.setupMock(verifier)

			router := gin.New()
			router.Use(CorrelationID())
			router.Use(Authenticate(verifier, logger))
			var seen uuid.UUID
			router.GET("/api/v1/balance", func(c *gin.Context) {
				seen, _ = GetAccountID(c)
				c.Status(http.StatusOK)
			})

			req, _ := http.NewRequest(http.MethodGet, "/api/v1/balance", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, accountID, seen)
			} else {
				assert.Equal(t, uuid.Nil, seen)
				assert.Contains(t, rr.Body.String(), `"code":"UNAUTHORIZED"`)
				assert.Contains(t, rr.Body.String(), `"correlation_id":`)
			}
			verifier.AssertExpectations(t)
		})
	}
}

func TestGetAccountID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetAccountID(c)
	assert.False(t, ok)

	c.Set(AccountIDKey, "not-a-uuid-value")
	_, ok = GetAccountID(c)
	assert.False(t, ok)

	id := uuid.New()
	c.Set(AccountIDKey, id)
	got, ok := GetAccountID(c)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
