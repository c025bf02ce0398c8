package license

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"
)

const secondsPerDay = 86400

// MaxExpireDays 有效期上限，保证 expiresAt 不会溢出
const MaxExpireDays = 36500

// Policy 签发策略
type Policy struct {
	MinDays        int
	MaxDays        int
	MaxMetadataLen int
	// Strict 为 true 时超出范围直接拒绝，否则截断到 [MinDays, MaxDays]
	Strict bool
}

// DefaultPolicy 默认策略：1 天到 10 年
func DefaultPolicy() Policy {
	return Policy{
		MinDays:        1,
		MaxDays:        3650,
		MaxMetadataLen: DefaultMaxMetadataLen,
	}
}

// Validate 检查策略配置本身
func (p Policy) Validate() error {
	if p.MinDays < 1 {
		return fmt.Errorf("policy: min days must be >= 1, got %d", p.MinDays)
	}
	if p.MaxDays < p.MinDays {
		return fmt.Errorf("policy: max days %d < min days %d", p.MaxDays, p.MinDays)
	}
	if p.MaxDays > MaxExpireDays {
		return fmt.Errorf("policy: max days %d exceeds %d", p.MaxDays, MaxExpireDays)
	}
	// 0 在解码约束里表示格式上限，这里不允许
	if p.MaxMetadataLen < 1 || p.MaxMetadataLen > MaxMetadataLen {
		return fmt.Errorf("policy: metadata bound must be within [1, %d]", MaxMetadataLen)
	}
	return nil
}

// Limits 校验端使用的解码约束
func (p Policy) Limits() Limits {
	return Limits{MaxMetadataLen: p.MaxMetadataLen}
}

// ExpireDays 按策略计算实际有效天数
func (p Policy) ExpireDays(requested int) (int, error) {
	if requested >= p.MinDays && requested <= p.MaxDays {
		return requested, nil
	}
	if p.Strict {
		return 0, policyError(ErrOutOfRange, "%d not within [%d, %d]", requested, p.MinDays, p.MaxDays)
	}
	if requested < p.MinDays {
		return p.MinDays, nil
	}
	return p.MaxDays, nil
}

func (p Policy) checkMetadata(metadata string) error {
	if len(metadata) > p.MaxMetadataLen {
		return policyError(ErrMetadataTooLong, "%d bytes, max %d", len(metadata), p.MaxMetadataLen)
	}
	if !utf8.ValidString(metadata) {
		return policyError(ErrInvalidMetadata, "not valid utf-8")
	}
	for _, r := range metadata {
		if unicode.IsControl(r) {
			return policyError(ErrInvalidMetadata, "contains control characters")
		}
	}
	return nil
}

// SignedLicense 签发结果
type SignedLicense struct {
	Payload      Payload
	PayloadBytes []byte
	Signature    []byte
	License      string
	ExpireDays   int
}

// Issue 构造载荷、编码并签名。这是唯一会用到私钥的路径。
func (p Policy) Issue(rawFingerprint string, requestedDays int, metadata string, signer *Signer, now time.Time) (SignedLicense, error) {
	if signer == nil {
		return SignedLicense{}, ErrSignerClosed
	}
	if err := p.Validate(); err != nil {
		return SignedLicense{}, err
	}
	days, err := p.ExpireDays(requestedDays)
	if err != nil {
		return SignedLicense{}, err
	}
	if err := p.checkMetadata(metadata); err != nil {
		return SignedLicense{}, err
	}
	hash, err := HashFingerprint(rawFingerprint)
	if err != nil {
		return SignedLicense{}, err
	}

	issuedAt := now.Unix()
	payload := Payload{
		Version:         VersionV1,
		FingerprintHash: hash,
		IssuedAt:        issuedAt,
		ExpiresAt:       issuedAt + int64(days)*secondsPerDay,
		Metadata:        metadata,
	}
	payloadBytes, err := EncodePayload(payload)
	if err != nil {
		return SignedLicense{}, err
	}
	sig, err := signer.Sign(payloadBytes)
	if err != nil {
		return SignedLicense{}, err
	}

	return SignedLicense{
		Payload:      payload,
		PayloadBytes: payloadBytes,
		Signature:    sig,
		License:      EncodeLicense(payloadBytes, sig),
		ExpireDays:   days,
	}, nil
}
