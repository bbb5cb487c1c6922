package model

import (
	"errors"
	"fmt"
)

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails adds details to an API error
func (e APIError) WithDetails(details string) APIError {
	e.Details = details
	return e
}

// Common API errors
var (
	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = APIError{
		Status:  400,
		Code:    "invalid_request",
		Message: "The request is invalid",
	}

	// ErrNoChunks is returned when completion is requested but no
	// fragments were ever stored for the pair
	ErrNoChunks = APIError{
		Status:  400,
		Code:    "no_chunks",
		Message: "No chunks found for this recording",
	}

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = APIError{
		Status:  404,
		Code:    "not_found",
		Message: "The requested resource was not found",
	}

	// ErrStitchFailed is returned when fragment concatenation fails
	ErrStitchFailed = APIError{
		Status:  500,
		Code:    "stitch_failed",
		Message: "Failed to assemble the recording",
	}

	// ErrInternalServer is returned when an internal server error occurs
	ErrInternalServer = APIError{
		Status:  500,
		Code:    "internal_server_error",
		Message: "An internal server error occurred",
	}
)

// IsNoChunks checks whether an error (possibly wrapped) is the
// no-chunks completion failure
func IsNoChunks(err error) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "no_chunks"
	}
	return false
}

// IsNotFound checks whether an error is a not found error
func IsNotFound(err error) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 404
	}
	return false
}
