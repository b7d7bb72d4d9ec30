package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/wasteloop/internal/agrisense"
	"github.com/smallbiznis/wasteloop/internal/authorization"
	"github.com/smallbiznis/wasteloop/internal/inference"
	"github.com/smallbiznis/wasteloop/internal/ingestion"
	pickupdomain "github.com/smallbiznis/wasteloop/internal/pickup/domain"
	profiledomain "github.com/smallbiznis/wasteloop/internal/profile/domain"
	"github.com/smallbiznis/wasteloop/internal/ratelimit"
	"github.com/smallbiznis/wasteloop/internal/userlock"
	"github.com/smallbiznis/wasteloop/internal/wasteintel"
	ledgerdomain "github.com/smallbiznis/wasteloop/internal/wasteledger/domain"
	"github.com/smallbiznis/wasteloop/pkg/db/pagination"
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
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
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

		var limitErr *ratelimit.LimitError
		if errors.As(lastErr.Err, &limitErr) && limitErr.RetryAfter > 0 {
			seconds := int(limitErr.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
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

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, inference.ErrParse):
		return http.StatusBadGateway, errorPayload{
			Type:    "inference_parse_error",
			Message: "inference response could not be parsed",
		}
	case inference.IsConfigurationError(err),
		errors.Is(err, agrisense.ErrNotConfigured),
		errors.Is(err, agrisense.ErrSync),
		errors.Is(err, userlock.ErrLockTimeout),
		errors.Is(err, ErrServiceUnavailable):
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

// classifyErrorForLog returns the error_type/error_code pair of a request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if err != nil && payload.Type != "internal_error" {
		code = strings.SplitN(err.Error(), ":", 2)[0]
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, wasteintel.ErrInvalidItemName),
		errors.Is(err, wasteintel.ErrInvalidQuantity),
		errors.Is(err, agrisense.ErrInvalidEnabled),
		errors.Is(err, agrisense.ErrPhoneRequired),
		errors.Is(err, pickupdomain.ErrInvalidStatus),
		errors.Is(err, pickupdomain.ErrInvalidTransition),
		errors.Is(err, pickupdomain.ErrInvalidID),
		errors.Is(err, profiledomain.ErrInvalidUserID),
		errors.Is(err, ledgerdomain.ErrInvalidOwner),
		errors.Is(err, ingestion.ErrInvalidDedupeKey),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, pickupdomain.ErrNotFound),
		errors.Is(err, pickupdomain.ErrNoReusableWaste),
		errors.Is(err, profiledomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	if errors.Is(err, pickupdomain.ErrNoReusableWaste) {
		return "no reusable waste available"
	}
	return "not found"
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pickupdomain.ErrInvalidTransition):
		return pickupdomain.ErrInvalidTransition.Error()
	default:
		return strings.SplitN(err.Error(), ":", 2)[0]
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_status_transition":
		return "status"
	case "phone_required":
		return "phone"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_status_transition":
		return "status transition not allowed"
	case "phone_required":
		return "a phone number is required"
	default:
		return "invalid value"
	}
}
