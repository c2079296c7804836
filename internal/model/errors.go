package model

import "errors"

// Client-visible error codes, closed table.
const (
	ErrCodeValidation = "E_VALIDATION"
	ErrCodeSafety     = "E_SAFETY"
	ErrCodeExternal   = "E_EXTERNAL"
	ErrCodeStorage    = "E_STORAGE"
	ErrCodeIntegrity  = "E_INTEGRITY"
)

var knownCodes = map[string]struct{}{
	ErrCodeValidation: {},
	ErrCodeSafety:     {},
	ErrCodeExternal:   {},
	ErrCodeStorage:    {},
	ErrCodeIntegrity:  {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Sentinel errors for the propagation policy: validation surfaces to the
// caller, external failures are recovered locally, storage failures abort
// the current submission.
var (
	ErrValidation = errors.New("validation")
	ErrStorage    = errors.New("storage")
	ErrIntegrity  = errors.New("integrity")
)

// CodedError pairs a client-visible code with a short message.
type CodedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CodedError) Error() string { return e.Code + ": " + e.Message }

func NewValidationError(msg string) *CodedError {
	return &CodedError{Code: ErrCodeValidation, Message: msg}
}
