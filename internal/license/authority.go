package license

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/coder/quartz"
)

// Authority 控制台后端使用的签发与校验入口
type Authority struct {
	policy   Policy
	signer   *Signer
	verifier *Verifier
	clock    quartz.Clock
}

// AuthorityOption Authority 选项
type AuthorityOption func(*authorityOptions)

type authorityOptions struct {
	clock      quartz.Clock
	trusted    []ed25519.PublicKey
	revocation RevocationChecker
}

// WithClock 替换时钟，测试中使用 quartz.NewMock
func WithClock(c quartz.Clock) AuthorityOption {
	return func(o *authorityOptions) {
		o.clock = c
	}
}

// WithTrustedKeys 额外信任的公钥（轮换前的旧公钥）
func WithTrustedKeys(keys ...ed25519.PublicKey) AuthorityOption {
	return func(o *authorityOptions) {
		o.trusted = append(o.trusted, keys...)
	}
}

// WithRevocationChecker 设置吊销检查
func WithRevocationChecker(rc RevocationChecker) AuthorityOption {
	return func(o *authorityOptions) {
		o.revocation = rc
	}
}

// NewAuthority 创建签发入口，signer 的所有权交给 Authority
func NewAuthority(policy Policy, signer *Signer, opts ...AuthorityOption) (*Authority, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	o := authorityOptions{clock: quartz.NewReal()}
	for _, opt := range opts {
		opt(&o)
	}

	keys := append([]ed25519.PublicKey{signer.Public()}, o.trusted...)
	vopts := []VerifierOption{WithLimits(policy.Limits())}
	if o.revocation != nil {
		vopts = append(vopts, WithRevocation(o.revocation))
	}
	verifier, err := NewVerifier(keys, vopts...)
	if err != nil {
		return nil, err
	}

	return &Authority{
		policy:   policy,
		signer:   signer,
		verifier: verifier,
		clock:    o.clock,
	}, nil
}

// Policy 当前策略
func (a *Authority) Policy() Policy {
	return a.policy
}

// Verifier 内部使用的校验器
func (a *Authority) Verifier() *Verifier {
	return a.verifier
}

// KeyID 当前签发公钥的标识
func (a *Authority) KeyID() string {
	return KeyID(a.signer.Public())
}

// IssueLicense 签发注册码，只返回注册码字符串
func (a *Authority) IssueLicense(fingerprint string, expireDays int, metadata string) (string, error) {
	sl, err := a.IssueLicenseDetailed(fingerprint, expireDays, metadata)
	if err != nil {
		return "", err
	}
	return sl.License, nil
}

// IssueLicenseDetailed 签发注册码，返回完整结果供调用方保存
func (a *Authority) IssueLicenseDetailed(fingerprint string, expireDays int, metadata string) (SignedLicense, error) {
	sl, err := a.policy.Issue(fingerprint, expireDays, metadata, a.signer, a.clock.Now())
	if err != nil {
		return SignedLicense{}, fmt.Errorf("issue license: %w", err)
	}
	return sl, nil
}

// VerifyLicense 校验注册码
func (a *Authority) VerifyLicense(license, localFingerprint string) Verdict {
	return a.Verify(context.Background(), license, localFingerprint).Verdict
}

// Verify 校验注册码并返回完整结果
func (a *Authority) Verify(ctx context.Context, license, localFingerprint string) Result {
	return a.verifier.Verify(ctx, license, localFingerprint, a.clock.Now())
}

// Close 清零私钥
func (a *Authority) Close() error {
	return a.signer.Close()
}

// OfflineVerifier 受保护软件端使用，只持有公钥
type OfflineVerifier struct {
	verifier *Verifier
	clock    quartz.Clock
}

// NewOfflineVerifier 创建离线校验器
func NewOfflineVerifier(keys []ed25519.PublicKey, opts ...AuthorityOption) (*OfflineVerifier, error) {
	o := authorityOptions{clock: quartz.NewReal()}
	for _, opt := range opts {
		opt(&o)
	}
	var vopts []VerifierOption
	if o.revocation != nil {
		vopts = append(vopts, WithRevocation(o.revocation))
	}
	all := append(append([]ed25519.PublicKey{}, keys...), o.trusted...)
	v, err := NewVerifier(all, vopts...)
	if err != nil {
		return nil, err
	}
	return &OfflineVerifier{verifier: v, clock: o.clock}, nil
}

// VerifyLicense 校验注册码
func (o *OfflineVerifier) VerifyLicense(license, localFingerprint string) Verdict {
	return o.verifier.Verify(context.Background(), license, localFingerprint, o.clock.Now()).Verdict
}

// Verify 校验注册码并返回完整结果
func (o *OfflineVerifier) Verify(ctx context.Context, license, localFingerprint string) Result {
	return o.verifier.Verify(ctx, license, localFingerprint, o.clock.Now())
}
