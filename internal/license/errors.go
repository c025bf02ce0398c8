package license

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
	ErrMalformedToken     = errors.New("malformed token")
	ErrUnsupportedVersion = errors.New("unsupported token version")
	ErrSignatureInvalid   = errors.New("signature invalid")
	ErrSignerClosed       = errors.New("signer closed")

	// 签发策略拒绝的原因
	ErrOutOfRange      = errors.New("expire days out of range")
	ErrMetadataTooLong = errors.New("metadata too long")
	ErrInvalidMetadata = errors.New("invalid metadata")
)

// PolicyError 签发请求被策略拒绝
type PolicyError struct {
	Reason error
	Detail string
}

func (e *PolicyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("policy: %v", e.Reason)
	}
	return fmt.Sprintf("policy: %v: %s", e.Reason, e.Detail)
}

func (e *PolicyError) Unwrap() error {
	return e.Reason
}

func policyError(reason error, format string, args ...interface{}) *PolicyError {
	return &PolicyError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
