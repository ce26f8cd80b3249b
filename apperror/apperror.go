package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalid         Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeForbidden       Code = "FORBIDDEN"
	CodeExpired         Code = "EXPIRED"
	CodePaymentRequired Code = "PAYMENT_REQUIRED"
	CodeQuotaExceeded   Code = "QUOTA_EXCEEDED"
	CodeInternal        Code = "INTERNAL"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`

	// Payment carries the numbers the client needs to start a payment
	// flow. Set only for CodePaymentRequired.
	Payment *PaymentDetails `json:"payment,omitempty"`
}

// PaymentDetails is the structured 402 payload.
type PaymentDetails struct {
	ConversationID   uint  `json:"conversation_id"`
	Price            int64 `json:"price"`
	FreeMessageLimit int   `json:"free_message_limit"`
	CurrentCount     int   `json:"current_count"`
	PaidCycles       int   `json:"paid_cycles"`
	AllowedMessages  int   `json:"allowed_messages"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Invalid(msg string) error   { return New(CodeInvalid, msg) }
func NotFound(msg string) error  { return New(CodeNotFound, msg) }
func Conflict(msg string) error  { return New(CodeConflict, msg) }
func Forbidden(msg string) error { return New(CodeForbidden, msg) }
func Expired(msg string) error   { return New(CodeExpired, msg) }
func Internal(msg string) error  { return New(CodeInternal, msg) }

func QuotaExceeded(msg string) error { return New(CodeQuotaExceeded, msg) }

func PaymentRequired(details PaymentDetails) error {
	return &Error{
		Code:    CodePaymentRequired,
		Message: "payment required to continue messaging",
		Payment: &details,
	}
}

// As unwraps err into an *Error, or wraps unknown errors as internal so
// every error reaching the transport layer carries a code.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: CodeInternal, Message: "internal server error", Cause: err}
}

// HTTPStatus maps an error code onto the REST status surface.
func HTTPStatus(err error) int {
	switch As(err).Code {
	case CodeInvalid:
		return http.StatusBadRequest
	case CodePaymentRequired:
		return http.StatusPaymentRequired
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func IsCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
