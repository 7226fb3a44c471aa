package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput             = "SERVICE_BAD_INPUT"
	ServiceErrorNotFound             = "SERVICE_NOT_FOUND"
	ServiceErrorProviderNotFound     = "SERVICE_PROVIDER_NOT_FOUND"
	ServiceErrorInvalidState         = "SERVICE_INVALID_STATE"
	ServiceErrorUnauthenticated      = "SERVICE_UNAUTHENTICATED"
	ServiceErrorForbidden            = "SERVICE_FORBIDDEN"
	ServiceErrorTokenExchangeFailed  = "SERVICE_TOKEN_EXCHANGE_FAILED"
	ServiceErrorRefreshFailed        = "SERVICE_REFRESH_FAILED"
	ServiceErrorStorageFailure       = "SERVICE_STORAGE_FAILURE"
	ServiceErrorAlreadyFinal         = "SERVICE_ALREADY_FINAL"
	ServiceErrorAuthorizationTimeout = "SERVICE_AUTHORIZATION_TIMEOUT"
	ServiceErrorConflict             = "SERVICE_CONFLICT"
	ServiceErrorInternal             = "SERVICE_INTERNAL_ERROR"
)

var (
	ErrInvalidState          = errors.New("core: oauth state invalid")
	ErrTokenExchangeFailed   = errors.New("core: token exchange failed")
	ErrRefreshFailed         = errors.New("core: token refresh failed")
	ErrStorageFailure        = errors.New("core: storage failure")
	ErrAlreadyFinal          = errors.New("core: operation already final")
	ErrAuthorizationTimeout  = errors.New("core: interactive authorization timed out")
	ErrOperationNotFound     = errors.New("core: operation not found")
	ErrOperationExists       = errors.New("core: operation already exists")
	ErrIntegrationNotFound   = errors.New("core: integration not found")
	ErrProviderNotFound      = errors.New("core: provider not found")
	ErrCredentialsNotFound   = errors.New("core: credentials not found")
	ErrFlowStateNotFound     = errors.New("core: flow state not found")
	ErrSurfaceNotConfigured  = errors.New("core: authorization surface is not configured")
	ErrExecutorNotConfigured = errors.New("core: executor is not configured")
)

// TokenEndpointError is returned by providers when the token endpoint answers
// with a non-success status or an error payload.
type TokenEndpointError struct {
	Status int
	Body   string
}

func (e *TokenEndpointError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("token endpoint error (%d): %s", e.Status, truncateBody(e.Body))
}

type TokenExchangeFailedError struct {
	Status int
	Body   string
	Err    error
}

func (e *TokenExchangeFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrTokenExchangeFailed, e.Err)
	}
	return fmt.Sprintf("%s: status %d", ErrTokenExchangeFailed, e.Status)
}

func (e *TokenExchangeFailedError) Unwrap() []error {
	return []error{ErrTokenExchangeFailed, e.Err}
}

type RefreshFailedError struct {
	Status int
	Body   string
	Err    error
}

func (e *RefreshFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrRefreshFailed, e.Err)
	}
	return fmt.Sprintf("%s: status %d", ErrRefreshFailed, e.Status)
}

func (e *RefreshFailedError) Unwrap() []error {
	return []error{ErrRefreshFailed, e.Err}
}

type AlreadyFinalError struct {
	OperationID   string
	CurrentStatus OperationStatus
}

func (e *AlreadyFinalError) Error() string {
	return fmt.Sprintf("%s: %s is %s", ErrAlreadyFinal, e.OperationID, e.CurrentStatus)
}

func (e *AlreadyFinalError) Unwrap() error {
	return ErrAlreadyFinal
}

type StorageFailureError struct {
	Op  string
	Err error
}

func (e *StorageFailureError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageFailure, e.Op, e.Err)
}

func (e *StorageFailureError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

func storageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StorageFailureError
	if errors.As(err, &existing) {
		return err
	}
	return &StorageFailureError{Op: op, Err: err}
}

func newTokenExchangeFailed(err error) error {
	out := &TokenExchangeFailedError{Err: err}
	var endpointErr *TokenEndpointError
	if errors.As(err, &endpointErr) {
		out.Status = endpointErr.Status
		out.Body = endpointErr.Body
	}
	return out
}

func newRefreshFailed(err error) error {
	out := &RefreshFailedError{Err: err}
	var endpointErr *TokenEndpointError
	if errors.As(err, &endpointErr) {
		out.Status = endpointErr.Status
		out.Body = endpointErr.Body
	}
	return out
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	var exchangeErr *TokenExchangeFailedError
	var refreshErr *RefreshFailedError
	var finalErr *AlreadyFinalError
	switch {
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrFlowStateNotFound):
		return wrapServiceError(err, goerrors.CategoryAuth, ServiceErrorInvalidState)
	case errors.As(err, &exchangeErr):
		return wrapServiceError(err, goerrors.CategoryOperation, ServiceErrorTokenExchangeFailed).
			WithMetadata(map[string]any{"status": exchangeErr.Status, "body": truncateBody(exchangeErr.Body)})
	case errors.As(err, &refreshErr):
		return wrapServiceError(err, goerrors.CategoryOperation, ServiceErrorRefreshFailed).
			WithMetadata(map[string]any{"status": refreshErr.Status, "body": truncateBody(refreshErr.Body)})
	case errors.As(err, &finalErr):
		return wrapServiceError(err, goerrors.CategoryConflict, ServiceErrorAlreadyFinal).
			WithMetadata(map[string]any{"current_status": string(finalErr.CurrentStatus)})
	case errors.Is(err, ErrAuthorizationTimeout):
		return wrapServiceError(err, goerrors.CategoryOperation, ServiceErrorAuthorizationTimeout)
	case errors.Is(err, ErrStorageFailure):
		return wrapServiceError(err, goerrors.CategoryInternal, ServiceErrorStorageFailure)
	case errors.Is(err, ErrProviderNotFound):
		return wrapServiceError(err, goerrors.CategoryNotFound, ServiceErrorProviderNotFound)
	case errors.Is(err, ErrOperationNotFound), errors.Is(err, ErrIntegrationNotFound), errors.Is(err, ErrCredentialsNotFound):
		return wrapServiceError(err, goerrors.CategoryNotFound, ServiceErrorNotFound)
	case errors.Is(err, ErrOperationExists):
		return wrapServiceError(err, goerrors.CategoryConflict, ServiceErrorConflict)
	case errors.Is(err, ErrInvalidOperationStatus),
		errors.Is(err, ErrInvalidCredentialKey),
		errors.Is(err, ErrInvalidIntegrationStatusTransition):
		return wrapServiceError(err, goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return wrapServiceError(err, goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func wrapServiceError(err error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.Wrap(err, category, err.Error()).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth:
		return ServiceErrorUnauthenticated
	case goerrors.CategoryAuthz:
		return ServiceErrorForbidden
	case goerrors.CategoryConflict:
		return ServiceErrorConflict
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

const maxErrorBodyBytes = 2048

func truncateBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxErrorBodyBytes {
		return body
	}
	return body[:maxErrorBodyBytes]
}

// ToServiceError applies the default service error mapping. Transports use
// it to render errors that did not pass through a Service method.
func ToServiceError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}
