package models

import (
	"context"
	"errors"
)

// ConsentErrorCode is the machine-readable code returned in API error bodies
type ConsentErrorCode string

const (
	ErrorCodeBadRequest             ConsentErrorCode = "BAD_REQUEST"
	ErrorCodeUnauthorized           ConsentErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden              ConsentErrorCode = "FORBIDDEN"
	ErrorCodeSessionNotFound        ConsentErrorCode = "SESSION_NOT_FOUND"
	ErrorCodeConfirmationDeclined   ConsentErrorCode = "CONFIRMATION_DECLINED"
	ErrorCodeMalformedConsentRecord ConsentErrorCode = "MALFORMED_CONSENT_RECORD"
	ErrorCodeServiceUnavailable     ConsentErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeRequestTimeout         ConsentErrorCode = "REQUEST_TIMEOUT"
	ErrorCodeInternalError          ConsentErrorCode = "INTERNAL_ERROR"
)

// ConsentError is a sentinel error value; wrap it with fmt.Errorf("%w: ...")
// and test with errors.Is.
type ConsentError string

func (e ConsentError) Error() string {
	return string(e)
}

const (
	// ErrAuthorizationDeclined means the user did not authorize a wallet account
	ErrAuthorizationDeclined ConsentError = "wallet authorization declined"
	// ErrServiceUnavailable means the messaging client or resolution service failed
	ErrServiceUnavailable ConsentError = "consent service unavailable"
	// ErrConfirmationDeclined means the user did not confirm a permission change
	ErrConfirmationDeclined ConsentError = "confirmation declined"
	// ErrMalformedConsentRecord means a record has no address or an unknown permission
	ErrMalformedConsentRecord ConsentError = "malformed consent record"
	// ErrInvalidPermission means a permission value is outside the closed set
	ErrInvalidPermission ConsentError = "invalid permission"
	// ErrInvalidAddress means a peer address is empty
	ErrInvalidAddress ConsentError = "invalid address"
	// ErrSessionNotFound means the session ID is unknown or has expired
	ErrSessionNotFound ConsentError = "session not found"
	// ErrSessionForbidden means the session belongs to another wallet
	ErrSessionForbidden ConsentError = "session belongs to a different wallet"
)

// ErrorClass groups failures the way callers need to react to them
type ErrorClass string

const (
	ClassAuthorizationDeclined ErrorClass = "authorization_declined"
	ClassServiceFailure        ErrorClass = "service_failure"
	ClassConfirmationDeclined  ErrorClass = "confirmation_declined"
	ClassInvalidInput          ErrorClass = "invalid_input"
	ClassSession               ErrorClass = "session"
	ClassCancelled             ErrorClass = "cancelled"
	ClassUnknown               ErrorClass = "unknown"
)

// ClassifyError maps an error returned by the consent services onto an ErrorClass.
func ClassifyError(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCancelled
	case errors.Is(err, ErrAuthorizationDeclined):
		return ClassAuthorizationDeclined
	case errors.Is(err, ErrConfirmationDeclined):
		return ClassConfirmationDeclined
	case errors.Is(err, ErrServiceUnavailable):
		return ClassServiceFailure
	case errors.Is(err, ErrMalformedConsentRecord),
		errors.Is(err, ErrInvalidPermission),
		errors.Is(err, ErrInvalidAddress):
		return ClassInvalidInput
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionForbidden):
		return ClassSession
	default:
		return ClassUnknown
	}
}
