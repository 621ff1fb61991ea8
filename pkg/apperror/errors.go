package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error carrying a machine-readable kind and an HTTP mapping.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error kinds.
const (
	CodeInvalidAmount           = "PAY_001"
	CodeDuplicateVoucher        = "PAY_002"
	CodeUnknownSender           = "PAY_003"
	CodeNotFound                = "PAY_004"
	CodeInvalidStatusTransition = "PAY_005"
	CodeVoucherNotCancellable   = "PAY_006"

	CodeInvalidPin = "PIN_001"
	CodeLockedOut  = "PIN_002"
	CodePinNotSet  = "PIN_003"

	CodeMalformedVoucher  = "VCH_001"
	CodePayloadParseError = "VCH_002"

	CodeInvalidSignature  = "SEC_001"
	CodeDecryptionFailure = "SEC_002"
	CodeVerificationError = "SEC_003"
	CodeInvalidToken      = "SEC_004"

	CodeKeyStoreUnavailable = "KEY_001"
	CodeKeyNotInitialized   = "KEY_002"
	CodeSigningFailure      = "KEY_003"

	CodeLedgerWriteFailure = "STO_001"

	CodeSyncPartial       = "SYNC_001"
	CodeRemoteUnavailable = "SYNC_002"
	CodeSyncInProgress    = "SYNC_003"

	CodeInternal    = "SYS_001"
	CodeValidation  = "REQ_001"
	CodeRateLimited = "REQ_002"
)

// CodeOf returns the error kind of err, or "" if err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err is an AppError of the given kind.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// ---- Payment / voucher business rules (PAY) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrDuplicateVoucher() *AppError {
	return New(CodeDuplicateVoucher, "Voucher has already been redeemed", http.StatusConflict)
}

func ErrUnknownSender(uid string) *AppError {
	return New(CodeUnknownSender, fmt.Sprintf("No public key known for sender %s", uid), http.StatusNotFound)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidStatusTransition(from, to string) *AppError {
	return New(CodeInvalidStatusTransition, fmt.Sprintf("Voucher cannot move from %s to %s", from, to), http.StatusConflict)
}

func ErrVoucherNotCancellable() *AppError {
	return New(CodeVoucherNotCancellable, "Voucher can no longer be cancelled", http.StatusConflict)
}

// ---- PIN (PIN) ----

func ErrInvalidPin(remaining int) *AppError {
	return New(CodeInvalidPin, fmt.Sprintf("Incorrect PIN, %d attempt(s) left", remaining), http.StatusUnauthorized)
}

func ErrLockedOut() *AppError {
	return New(CodeLockedOut, "Too many incorrect PIN attempts, wallet is locked", http.StatusLocked)
}

func ErrPinNotSet() *AppError {
	return New(CodePinNotSet, "No PIN has been set", http.StatusPreconditionFailed)
}

// ---- Voucher format (VCH) ----

func ErrMalformedVoucher(reason string) *AppError {
	return New(CodeMalformedVoucher, "Malformed voucher: "+reason, http.StatusBadRequest)
}

func ErrPayloadParse(err error) *AppError {
	return Wrap(CodePayloadParseError, "Voucher payload could not be read", http.StatusUnprocessableEntity, err)
}

// ---- Cryptography (SEC) ----

func ErrInvalidSignature() *AppError {
	return New(CodeInvalidSignature, "Invalid signature", http.StatusUnauthorized)
}

func ErrDecryptionFailure(err error) *AppError {
	return Wrap(CodeDecryptionFailure, "Voucher could not be decrypted", http.StatusUnprocessableEntity, err)
}

func ErrVerification(err error) *AppError {
	return Wrap(CodeVerificationError, "Signature could not be verified", http.StatusBadRequest, err)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Key storage (KEY) ----

func ErrKeyStoreUnavailable(err error) *AppError {
	return Wrap(CodeKeyStoreUnavailable, "Key storage unavailable", http.StatusServiceUnavailable, err)
}

func ErrKeyNotInitialized() *AppError {
	return New(CodeKeyNotInitialized, "Identity keys have not been generated", http.StatusConflict)
}

func ErrSigningFailure(err error) *AppError {
	return Wrap(CodeSigningFailure, "Signing failed", http.StatusInternalServerError, err)
}

// ---- Local storage (STO) ----

func ErrLedgerWrite(err error) *AppError {
	return Wrap(CodeLedgerWriteFailure, "Ledger write failed", http.StatusInternalServerError, err)
}

// ---- Sync (SYNC) ----

func ErrSyncPartial(failed int) *AppError {
	return New(CodeSyncPartial, fmt.Sprintf("Sync incomplete, %d item(s) will be retried", failed), http.StatusServiceUnavailable)
}

func ErrRemoteUnavailable(err error) *AppError {
	return Wrap(CodeRemoteUnavailable, "Remote store unavailable", http.StatusServiceUnavailable, err)
}

func ErrSyncInProgress() *AppError {
	return New(CodeSyncInProgress, "Sync already in progress", http.StatusConflict)
}

// ---- System (SYS / REQ) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Too many requests, slow down", http.StatusTooManyRequests)
}
