package models

import (
	dErrors "idregistry/pkg/domain-errors"
)

// Reason is the stable failure cause returned to callers. Values match the
// reason strings consumers already match on.
type Reason string

const (
	// Configuration
	ReasonNoVerifiers              Reason = "NO_VERIFIERS"
	ReasonTooManyVerifiers         Reason = "TOO_MANY_VERIFIERS"
	ReasonDuplicateVerifiers       Reason = "DUPLICATE_VERIFIERS"
	ReasonNotEnoughVerifications   Reason = "NOT_ENOUGH_VERIFICATIONS"
	ReasonTooManyVerifications     Reason = "TOO_MANY_VERIFICATIONS"
	ReasonRegistrationPeriodZero   Reason = "REGISTRATION_PERIOD_ZERO"
	ReasonInvalidTimestampVariance Reason = "INVALID_TIMESTAMP_VARIANCE"
	ReasonContextRequired          Reason = "CONTEXT_REQUIRED"
	ReasonAuthFailed               Reason = "AUTH_FAILED"
	ReasonAlreadyInitialized       Reason = "INIT_ALREADY_INITIALIZED"
	ReasonNotInitialized           Reason = "NOT_INITIALIZED"

	// Request shape
	ReasonSignaturesDifferentLengths Reason = "SIGNATURES_DIFFERENT_LENGTHS"
	ReasonIncorrectTimestamps        Reason = "INCORRECT_TIMESTAMPS"
	ReasonIncorrectSignatures        Reason = "INCORRECT_SIGNATURES"

	// Quorum / authentication
	ReasonNotVerified      Reason = "NOT_VERIFIED"
	ReasonInvalidSignature Reason = "INVALID_SIGNATURE"

	// Protocol / state
	ReasonSenderNotInVerification Reason = "SENDER_NOT_IN_VERIFICATION"
	ReasonAddressVoided           Reason = "ADDRESS_VOIDED"
	ReasonNoUniqueIDAssigned      Reason = "NO_UNIQUE_ID_ASSIGNED"
)

var reasonCodes = map[Reason]dErrors.Code{
	ReasonNoVerifiers:              dErrors.CodeValidation,
	ReasonTooManyVerifiers:         dErrors.CodeValidation,
	ReasonDuplicateVerifiers:       dErrors.CodeValidation,
	ReasonNotEnoughVerifications:   dErrors.CodeValidation,
	ReasonTooManyVerifications:     dErrors.CodeValidation,
	ReasonRegistrationPeriodZero:   dErrors.CodeValidation,
	ReasonInvalidTimestampVariance: dErrors.CodeValidation,
	ReasonContextRequired:          dErrors.CodeValidation,
	ReasonAuthFailed:               dErrors.CodeForbidden,
	ReasonAlreadyInitialized:       dErrors.CodeConflict,
	ReasonNotInitialized:           dErrors.CodeUnavailable,

	ReasonSignaturesDifferentLengths: dErrors.CodeBadRequest,
	ReasonIncorrectTimestamps:        dErrors.CodeBadRequest,
	ReasonIncorrectSignatures:        dErrors.CodeBadRequest,

	ReasonNotVerified:      dErrors.CodeUnauthorized,
	ReasonInvalidSignature: dErrors.CodeBadRequest,

	ReasonSenderNotInVerification: dErrors.CodeUnauthorized,
	ReasonAddressVoided:           dErrors.CodeConflict,
	ReasonNoUniqueIDAssigned:      dErrors.CodeNotFound,
}

// Code returns the domain error code a reason maps to.
func (r Reason) Code() dErrors.Code {
	if code, ok := reasonCodes[r]; ok {
		return code
	}
	return dErrors.CodeInternal
}

func (r Reason) String() string {
	return string(r)
}

// Fail builds the domain error for a reason.
func Fail(reason Reason, msg string) error {
	return dErrors.WithReason(reason.Code(), string(reason), msg)
}

// HasReason reports whether err carries the reason.
func HasReason(err error, reason Reason) bool {
	return dErrors.HasReason(err, string(reason))
}
