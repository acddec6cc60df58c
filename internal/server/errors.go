package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	checkoutdomain "github.com/smallbiznis/eventcover/internal/checkout/domain"
	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	policydomain "github.com/smallbiznis/eventcover/internal/policy/domain"
	stripeclient "github.com/smallbiznis/eventcover/internal/providers/stripe"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindingError turns request binding failures into field-level errors.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}

	out := &ValidationErrors{}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fieldErrorMessage(fe),
		})
	}
	return out
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "datetime":
		return fe.Field() + " must match " + fe.Param()
	case "gte", "min":
		return fe.Field() + " must be at least " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if field, ok := validationField(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   field,
					Code:    "invalid_" + field,
					Message: err.Error(),
				},
			},
		}
	}

	var pe *stripeclient.ProviderError
	if errors.As(err, &pe) {
		return providerErrorStatus(pe), errorPayload{
			Type:    "provider_error",
			Message: providerErrorMessage(pe),
			Code:    string(pe.Kind),
		}
	}

	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, paymentdomain.ErrEventInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "event_in_progress",
			Message: "event is being processed by another worker",
		}
	case errors.Is(err, quotedomain.ErrNotPending),
		errors.Is(err, quotedomain.ErrExpired),
		errors.Is(err, checkoutdomain.ErrSessionNotPaid),
		errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    err.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limit exceeded",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, checkoutdomain.ErrSessionIncomplete):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "checkout session response was incomplete",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// providerErrorStatus maps a classified provider failure to an HTTP status.
func providerErrorStatus(pe *stripeclient.ProviderError) int {
	switch pe.Kind {
	case stripeclient.KindCard:
		return http.StatusPaymentRequired
	case stripeclient.KindInvalidRequest:
		return http.StatusBadRequest
	case stripeclient.KindAuth:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

// providerErrorMessage only echoes provider text for card errors, which are
// meant for the payer.
func providerErrorMessage(pe *stripeclient.ProviderError) string {
	switch pe.Kind {
	case stripeclient.KindCard:
		if pe.Message != "" {
			return pe.Message
		}
		return "card was declined"
	case stripeclient.KindInvalidRequest:
		return "payment provider rejected the request"
	case stripeclient.KindAuth:
		return "payment provider authentication failed"
	default:
		return "payment provider unavailable"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationField(err error) (string, bool) {
	switch {
	case errors.Is(err, checkoutdomain.ErrQuoteIDRequired):
		return "quote_id", true
	case errors.Is(err, checkoutdomain.ErrInvalidPremium):
		return "premium", true
	case errors.Is(err, checkoutdomain.ErrSessionIDRequired):
		return "session_id", true
	case errors.Is(err, checkoutdomain.ErrEmailRequired):
		return "email", true
	case errors.Is(err, quotedomain.ErrInvalidID),
		errors.Is(err, policydomain.ErrInvalidID):
		return "id", true
	default:
		return "", false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, quotedomain.ErrNotFound),
		errors.Is(err, policydomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog returns the envelope type and a stable code for logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
