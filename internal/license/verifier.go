package license

import (
	"context"
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
)

// Verdict 校验结果
type Verdict int

const (
	VerdictValid Verdict = iota
	VerdictExpired
	VerdictFingerprintMismatch
	VerdictSignatureInvalid
	VerdictMalformedToken
	VerdictUnsupportedVersion
	VerdictRevoked
	VerdictInvalidFingerprint
)

var verdictNames = map[Verdict]string{
	VerdictValid:               "valid",
	VerdictExpired:             "expired",
	VerdictFingerprintMismatch: "fingerprint_mismatch",
	VerdictSignatureInvalid:    "signature_invalid",
	VerdictMalformedToken:      "malformed_token",
	VerdictUnsupportedVersion:  "unsupported_version",
	VerdictRevoked:             "revoked",
	VerdictInvalidFingerprint:  "invalid_fingerprint",
}

func (v Verdict) String() string {
	if s, ok := verdictNames[v]; ok {
		return s
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// MarshalText 以字符串形式输出，便于 JSON 响应
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Valid 只有所有检查都通过才为 true
func (v Verdict) Valid() bool {
	return v == VerdictValid
}

// Verdicts 返回所有结果，按定义顺序
func Verdicts() []Verdict {
	return []Verdict{
		VerdictValid, VerdictExpired, VerdictFingerprintMismatch, VerdictSignatureInvalid,
		VerdictMalformedToken, VerdictUnsupportedVersion, VerdictRevoked, VerdictInvalidFingerprint,
	}
}

// RevocationChecker 由调用方提供的吊销检查
type RevocationChecker interface {
	IsRevoked(ctx context.Context, license string) (bool, error)
}

// RevocationFunc 把普通函数适配为 RevocationChecker
type RevocationFunc func(license string) bool

func (f RevocationFunc) IsRevoked(_ context.Context, license string) (bool, error) {
	return f(license), nil
}

// Result 校验结果。只有签名验证通过后 Payload 才会被填充。
type Result struct {
	Verdict Verdict
	Payload *Payload
	KeyID   string
	Err     error
}

// Verifier 离线校验注册码，只需要公钥
type Verifier struct {
	keys       []ed25519.PublicKey
	limits     Limits
	revocation RevocationChecker
}

// VerifierOption 校验器选项
type VerifierOption func(*Verifier)

// WithRevocation 设置吊销检查
func WithRevocation(rc RevocationChecker) VerifierOption {
	return func(v *Verifier) {
		v.revocation = rc
	}
}

// WithLimits 设置解码约束
func WithLimits(l Limits) VerifierOption {
	return func(v *Verifier) {
		v.limits = l
	}
}

// NewVerifier 创建校验器。可以传入多个公钥，用于密钥轮换期间。
func NewVerifier(keys []ed25519.PublicKey, opts ...VerifierOption) (*Verifier, error) {
	if len(keys) == 0 {
		return nil, errors.New("no public keys configured")
	}
	v := &Verifier{}
	for _, k := range keys {
		if len(k) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid public key size: %d", len(k))
		}
		cp := make(ed25519.PublicKey, len(k))
		copy(cp, k)
		v.keys = append(v.keys, cp)
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// PublicKeys 返回受信任的公钥
func (v *Verifier) PublicKeys() []ed25519.PublicKey {
	out := make([]ed25519.PublicKey, len(v.keys))
	copy(out, v.keys)
	return out
}

// Verify 校验注册码。检查顺序固定：解码、签名、吊销、指纹、有效期。
// 签名通过前不会使用载荷中的任何字段。
func (v *Verifier) Verify(ctx context.Context, license, localFingerprint string, now time.Time) Result {
	payloadBytes, sig, err := DecodeLicense(license)
	if err != nil {
		return failed(err)
	}
	payload, err := DecodePayload(payloadBytes, v.limits)
	if err != nil {
		return failed(err)
	}

	keyID := ""
	for _, k := range v.keys {
		if ed25519.Verify(k, payloadBytes, sig) {
			keyID = KeyID(k)
			break
		}
	}
	if keyID == "" {
		return Result{Verdict: VerdictSignatureInvalid, Err: ErrSignatureInvalid}
	}

	res := Result{Payload: &payload, KeyID: keyID}

	if v.revocation != nil {
		// 吊销列表以规范写法为键，避免大小写或分组变体绕过
		revoked, err := v.revocation.IsRevoked(ctx, EncodeLicense(payloadBytes, sig))
		if err != nil || revoked {
			// 吊销列表不可用时按已吊销处理
			res.Verdict = VerdictRevoked
			res.Err = err
			return res
		}
	}

	local, err := HashFingerprint(localFingerprint)
	if err != nil {
		res.Verdict = VerdictInvalidFingerprint
		res.Err = err
		return res
	}
	if subtle.ConstantTimeCompare(local[:], payload.FingerprintHash[:]) != 1 {
		res.Verdict = VerdictFingerprintMismatch
		return res
	}

	if now.Unix() >= payload.ExpiresAt {
		res.Verdict = VerdictExpired
		return res
	}

	res.Verdict = VerdictValid
	return res
}

func failed(err error) Result {
	switch {
	case errors.Is(err, ErrUnsupportedVersion):
		return Result{Verdict: VerdictUnsupportedVersion, Err: err}
	default:
		return Result{Verdict: VerdictMalformedToken, Err: err}
	}
}
