package domain

import (
	"errors"
	"fmt"
)

// ErrorKind groups ledger errors by how a caller can recover from them.
type ErrorKind string

const (
	// KindValidation: malformed input, rejected before any mutation.
	KindValidation ErrorKind = "validation"
	// KindAuthorization: wrong signer for the action.
	KindAuthorization ErrorKind = "authorization"
	// KindStateConflict: a precondition violated by current ledger state.
	KindStateConflict ErrorKind = "state_conflict"
	// KindAccounting: insufficient balance or quota.
	KindAccounting ErrorKind = "accounting"
	// KindNotFound: a referenced record does not exist.
	KindNotFound ErrorKind = "not_found"
)

// LedgerError is the error type returned by instruction handlers and the token ledger.
// Two LedgerErrors match under errors.Is when their codes are equal.
type LedgerError struct {
	Code    uint32
	Name    string
	Message string
	Kind    ErrorKind
	Cause   error
}

func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}

func (e *LedgerError) Is(target error) bool {
	if t, ok := target.(*LedgerError); ok {
		return e.Code == t.Code
	}
	return false
}

// Wrap returns a copy of e carrying cause.
func (e *LedgerError) Wrap(cause error) *LedgerError {
	c := *e
	c.Cause = cause
	return &c
}

func newLedgerError(code uint32, name, message string, kind ErrorKind) *LedgerError {
	return &LedgerError{Code: code, Name: name, Message: message, Kind: kind}
}

// Codes 6000-6007 are stable wire values; later codes are appended.
var (
	ErrNameTooLong             = newLedgerError(6000, "NameTooLong", "Name is too long", KindValidation)
	ErrDescriptionTooLong      = newLedgerError(6001, "DescriptionTooLong", "Description is too long", KindValidation)
	ErrLocationTooLong         = newLedgerError(6002, "LocationTooLong", "Location is too long", KindValidation)
	ErrProjectNotVerified      = newLedgerError(6003, "ProjectNotVerified", "Project is not verified", KindStateConflict)
	ErrProjectAlreadyVerified  = newLedgerError(6004, "ProjectAlreadyVerified", "Project is already verified", KindStateConflict)
	ErrExceedsEstimatedCredits = newLedgerError(6005, "ExceedsEstimatedCredits", "Amount exceeds estimated credits", KindAccounting)
	ErrInsufficientCredits     = newLedgerError(6006, "InsufficientCredits", "Insufficient credits", KindAccounting)
	ErrUnauthorized            = newLedgerError(6007, "Unauthorized", "Unauthorized", KindAuthorization)

	ErrAlreadyInitialized          = newLedgerError(6008, "AlreadyInitialized", "Program is already initialized", KindStateConflict)
	ErrAlreadyExists               = newLedgerError(6009, "AlreadyExists", "Record already exists", KindStateConflict)
	ErrNotInitialized              = newLedgerError(6010, "NotInitialized", "Program is not initialized", KindStateConflict)
	ErrProjectNotFound             = newLedgerError(6011, "ProjectNotFound", "Project not found", KindNotFound)
	ErrBatchNotFound               = newLedgerError(6012, "BatchNotFound", "Credit batch not found", KindNotFound)
	ErrRetirementNotFound          = newLedgerError(6013, "RetirementNotFound", "Retirement not found", KindNotFound)
	ErrVerificationStandardTooLong = newLedgerError(6014, "VerificationStandardTooLong", "Verification standard is too long", KindValidation)
	ErrMetadataURITooLong          = newLedgerError(6015, "MetadataURITooLong", "Metadata URI is too long", KindValidation)
	ErrReasonTooLong               = newLedgerError(6016, "ReasonTooLong", "Reason is too long", KindValidation)
	ErrInvalidAmount               = newLedgerError(6017, "InvalidAmount", "Amount must be greater than zero", KindValidation)
	ErrInvalidProjectType          = newLedgerError(6018, "InvalidProjectType", "Invalid project type", KindValidation)
	ErrProjectAlreadySuspended     = newLedgerError(6019, "ProjectAlreadySuspended", "Project is already suspended", KindStateConflict)
	ErrArithmeticOverflow          = newLedgerError(6020, "ArithmeticOverflow", "Arithmetic overflow", KindAccounting)
	ErrInvalidRecord               = newLedgerError(6021, "InvalidRecord", "Record data is invalid", KindStateConflict)
	ErrNonCanonicalAddress         = newLedgerError(6022, "NonCanonicalAddress", "Record is not stored at its canonical address", KindStateConflict)
)

// Token ledger errors.
var (
	ErrInsufficientBalance   = newLedgerError(7000, "InsufficientBalance", "Insufficient token balance", KindAccounting)
	ErrInvalidMint           = newLedgerError(7001, "InvalidMint", "Invalid mint", KindNotFound)
	ErrMintAuthorityMismatch = newLedgerError(7002, "MintAuthorityMismatch", "Mint authority did not sign", KindAuthorization)
	ErrSameAccount           = newLedgerError(7003, "SameAccount", "Source and destination are the same account", KindValidation)
	ErrMintAlreadyExists     = newLedgerError(7004, "MintAlreadyExists", "Mint already exists", KindStateConflict)
)

// KindOf returns the error kind of err, or "" when err is not a LedgerError.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
