package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/banking-ledger-engine/internal/api_gateway/middleware"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response. Code is either a
// ledger error kind or a transport-level code such as BAD_REQUEST.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, &Response{
		Data:          data,
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, &Response{
		Error:         &ErrorInfo{Code: code, Message: message},
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func RespondConflict(c *gin.Context, message string) {
	RespondWithError(c, http.StatusConflict, "CONFLICT", message)
}

func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

var kindStatus = map[shared.ErrorKind]int{
	shared.KindInvalidAmount:     http.StatusBadRequest,
	shared.KindInsufficientFunds: http.StatusUnprocessableEntity,
	shared.KindRecipientNotFound: http.StatusNotFound,
	shared.KindAccountNotFound:   http.StatusNotFound,
	shared.KindConditionFailed:   http.StatusConflict,
	shared.KindStoreUnavailable:  http.StatusServiceUnavailable,
	shared.KindInconsistentState: http.StatusInternalServerError,
}

// StatusForError maps a ledger failure to its HTTP status and error code
func StatusForError(err error) (int, string) {
	var le *shared.LedgerError
	switch {
	case errors.As(err, &le):
		if le == shared.ErrAccountQuarantined {
			return http.StatusLocked, string(le.Kind)
		}
		if status, ok := kindStatus[le.Kind]; ok {
			return status, string(le.Kind)
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return 499, "CANCELED"
	}
	return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
}

// RespondLedgerError answers with the ledger error's kind and message. Causes
// are never exposed.
func RespondLedgerError(c *gin.Context, err error) {
	status, code := StatusForError(err)
	if status == http.StatusInternalServerError && code == "INTERNAL_SERVER_ERROR" {
		RespondInternalError(c)
		return
	}

	message := code
	var le *shared.LedgerError
	if errors.As(err, &le) {
		message = le.Message
		if le.Kind == shared.KindInconsistentState && le != shared.ErrAccountQuarantined {
			message = shared.ErrInconsistentState.Message
		}
	}
	RespondWithError(c, status, code, message)
}
