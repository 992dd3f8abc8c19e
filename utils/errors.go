// utils/errors.go
package utils

import (
	"errors"
	"net/http"
)

// Domain-level errors used by the service layer to provide
// fine-grained failure reasons.
//
// Input/data-integrity errors: should never come from legitimate input;
// they signal corrupted or mis-constructed data and map to 500s.
var (
	ErrAgentNameEmpty         = errors.New("agent_name_empty")
	ErrChallengeIDInvalidUUID = errors.New("challenge_id_invalid_uuid")
	ErrNonceInvalidLength     = errors.New("nonce_invalid_length")
	ErrExpireBeforeCreation   = errors.New("expire_before_creation")
	ErrUsedAtBeforeCreation   = errors.New("used_at_before_creation")
	ErrRowVersionInvalid      = errors.New("row_version_invalid")
)

// Protocol/client errors: expected from malformed or adversarial input.
var (
	ErrInvalidJwtFormat     = errors.New("invalid_jwt_format")
	ErrInvalidJwtSignature  = errors.New("invalid_jwt_signature")
	ErrMissingRequiredClaim = errors.New("missing_required_claim")
	ErrInvalidClaimValue    = errors.New("invalid_claim_value")
	ErrJwtExpired           = errors.New("jwt_expired")
	ErrJwtNotYetValid       = errors.New("jwt_not_yet_valid")
)

// Replay/state errors: security-significant; logged distinctly, never retried.
var (
	ErrNonceMismatch         = errors.New("nonce_mismatch")
	ErrInvalidIssuer         = errors.New("invalid_issuer")
	ErrInvalidAgentOwnership = errors.New("invalid_agent_ownership")
	ErrChallengeExpired      = errors.New("challenge_expired")
	ErrChallengeAlreadyUsed  = errors.New("challenge_already_used")
)

// Infrastructure errors: crypto provider failures; caller may retry.
var (
	ErrEncryptionFailed      = errors.New("encryption_failed")
	ErrNonceGenerationFailed = errors.New("nonce_generation_failed")
)

// Store-level errors. ErrChallengeConcurrentUpdate is the CAS conflict from
// the repository; it is deliberately NOT the same error as
// ErrChallengeAlreadyUsed (conflict => re-read once, already-used => reject).
var (
	ErrChallengeConcurrentUpdate = errors.New("challenge_concurrent_update")
	ErrKeyNotFoundForAssertion   = errors.New("key_not_found_for_assertion")
)

// ErrorClass groups the sentinel errors by propagation policy.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassDataIntegrity
	ClassProtocol
	ClassReplay
	ClassInfrastructure
	ClassStoreConflict
)

func (c ErrorClass) String() string {
	switch c {
	case ClassDataIntegrity:
		return "data_integrity"
	case ClassProtocol:
		return "protocol"
	case ClassReplay:
		return "replay"
	case ClassInfrastructure:
		return "infrastructure"
	case ClassStoreConflict:
		return "store_conflict"
	default:
		return "unknown"
	}
}

var errorClasses = map[error]ErrorClass{
	ErrAgentNameEmpty:         ClassDataIntegrity,
	ErrChallengeIDInvalidUUID: ClassDataIntegrity,
	ErrNonceInvalidLength:     ClassDataIntegrity,
	ErrExpireBeforeCreation:   ClassDataIntegrity,
	ErrUsedAtBeforeCreation:   ClassDataIntegrity,
	ErrRowVersionInvalid:      ClassDataIntegrity,

	ErrInvalidJwtFormat:     ClassProtocol,
	ErrInvalidJwtSignature:  ClassProtocol,
	ErrMissingRequiredClaim: ClassProtocol,
	ErrInvalidClaimValue:    ClassProtocol,
	ErrJwtExpired:           ClassProtocol,
	ErrJwtNotYetValid:       ClassProtocol,

	ErrNonceMismatch:         ClassReplay,
	ErrInvalidIssuer:         ClassReplay,
	ErrInvalidAgentOwnership: ClassReplay,
	ErrChallengeExpired:      ClassReplay,
	ErrChallengeAlreadyUsed:  ClassReplay,

	ErrEncryptionFailed:      ClassInfrastructure,
	ErrNonceGenerationFailed: ClassInfrastructure,

	ErrChallengeConcurrentUpdate: ClassStoreConflict,
}

// Classify returns the propagation class of err, unwrapping as needed.
func Classify(err error) ErrorClass {
	for sentinel, class := range errorClasses {
		if errors.Is(err, sentinel) {
			return class
		}
	}
	return ClassUnknown
}

// AppError for structured error handling from services to controllers.
type AppError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// ToAppError maps a domain error onto the HTTP status its class calls for.
// Integrity and infrastructure failures surface as opaque 500s; protocol and
// replay failures are the client's fault; CAS conflicts are 409.
func ToAppError(err error) *AppError {
	class := Classify(err)
	switch class {
	case ClassProtocol:
		return &AppError{StatusCode: http.StatusUnauthorized, Code: err.Error(), Message: "assertion rejected", Err: err}
	case ClassReplay:
		return &AppError{StatusCode: http.StatusUnauthorized, Code: err.Error(), Message: "challenge rejected", Err: err}
	case ClassStoreConflict:
		return &AppError{StatusCode: http.StatusConflict, Code: err.Error(), Message: "concurrent update", Err: err}
	case ClassDataIntegrity, ClassInfrastructure:
		return &AppError{StatusCode: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "internal server error", Err: err}
	default:
		if errors.Is(err, ErrKeyNotFoundForAssertion) {
			return &AppError{StatusCode: http.StatusUnauthorized, Code: err.Error(), Message: "unknown agent", Err: err}
		}
		return &AppError{StatusCode: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "internal server error", Err: err}
	}
}

const ErrCodeInternal = "internal_server_error"
