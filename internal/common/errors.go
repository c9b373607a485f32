package common

import (
	"errors"
	"net/http"
)

// Error codes shared by the checkout and promotion endpoints.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternal           = "INTERNAL"
	CodeCustomerNotFound   = "CUSTOMER_NOT_FOUND"
	CodePromotionRejected  = "PROMOTION_REJECTED"
	CodeStockShortage      = "STOCK_SHORTAGE"
	CodeCheckoutInProgress = "CHECKOUT_IN_PROGRESS"
)

// AppError carries the response code and status a domain failure should be
// rendered with.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError reports whether err wraps an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// WithDetails returns a copy of e carrying details in the error body.
func (e *AppError) WithDetails(details any) *AppError {
	out := *e
	out.Details = details
	return &out
}

// WriteError renders err. AppErrors keep their own code and status; anything
// else becomes a 500 with fallback as the message.
func WriteError(w http.ResponseWriter, err error, fallback string) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		JSONError(w, http.StatusInternalServerError, CodeInternal, fallback, nil)
		return
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusBadRequest
	}
	code := appErr.Code
	if code == "" {
		code = CodeBadRequest
	}
	JSONError(w, status, code, appErr.Message, appErr.Details)
}
