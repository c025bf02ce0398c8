package license

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// VersionV1 当前的载荷格式版本
	VersionV1 byte = 1

	// MaxMetadataLen 载荷格式允许的元数据长度上限（长度前缀为 1 字节）
	MaxMetadataLen = 255

	// DefaultMaxMetadataLen 默认配置的元数据长度上限
	DefaultMaxMetadataLen = 64

	// SignatureSize 签名长度
	SignatureSize = 64

	// v1 固定部分：version + hash + issuedAt + expiresAt + metaLen
	v1HeaderSize = 1 + FingerprintHashSize + 8 + 8 + 1

	// 注册码中每组字符数
	groupSize = 5
)

// 注册码字母表（Crockford base32）：无 I L O U，便于手工输入
const licenseAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var licenseEncoding = base32.NewEncoding(licenseAlphabet).WithPadding(base32.NoPadding)

// 注册码最大字符数（含分组的 '-'），解码前先检查
var maxLicenseStringLen = func() int {
	n := licenseEncoding.EncodedLen(v1HeaderSize + MaxMetadataLen + SignatureSize)
	return n + n/groupSize
}()

// Payload 注册码承载的内容，签名后不可变
type Payload struct {
	Version         byte
	FingerprintHash FingerprintHash
	IssuedAt        int64
	ExpiresAt       int64
	Metadata        string
}

// IssuedTime 签发时间
func (p Payload) IssuedTime() time.Time {
	return time.Unix(p.IssuedAt, 0).UTC()
}

// ExpiresTime 过期时间
func (p Payload) ExpiresTime() time.Time {
	return time.Unix(p.ExpiresAt, 0).UTC()
}

// Limits 解码时的约束
type Limits struct {
	MaxMetadataLen int
}

func (l Limits) maxMetadata() int {
	if l.MaxMetadataLen <= 0 || l.MaxMetadataLen > MaxMetadataLen {
		return MaxMetadataLen
	}
	return l.MaxMetadataLen
}

// EncodePayload 按 v1 固定布局编码载荷
func EncodePayload(p Payload) ([]byte, error) {
	if p.Version != VersionV1 {
		return nil, fmt.Errorf("encode payload: %w: %d", ErrUnsupportedVersion, p.Version)
	}
	if p.ExpiresAt <= p.IssuedAt {
		return nil, fmt.Errorf("encode payload: expiresAt must be after issuedAt")
	}
	if len(p.Metadata) > MaxMetadataLen {
		return nil, fmt.Errorf("encode payload: %w", ErrMetadataTooLong)
	}

	buf := make([]byte, 0, v1HeaderSize+len(p.Metadata))
	buf = append(buf, p.Version)
	buf = append(buf, p.FingerprintHash[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.IssuedAt))
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.ExpiresAt))
	buf = append(buf, byte(len(p.Metadata)))
	buf = append(buf, p.Metadata...)
	return buf, nil
}

// DecodePayload 解码载荷，不做任何密码学校验
func DecodePayload(b []byte, limits Limits) (Payload, error) {
	if len(b) == 0 {
		return Payload{}, fmt.Errorf("%w: empty payload", ErrMalformedToken)
	}
	if b[0] != VersionV1 {
		return Payload{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}
	return decodeV1(b, limits)
}

func decodeV1(b []byte, limits Limits) (Payload, error) {
	if len(b) < v1HeaderSize {
		return Payload{}, fmt.Errorf("%w: truncated payload", ErrMalformedToken)
	}

	var p Payload
	p.Version = b[0]
	off := 1
	copy(p.FingerprintHash[:], b[off:off+FingerprintHashSize])
	off += FingerprintHashSize
	p.IssuedAt = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	p.ExpiresAt = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	metaLen := int(b[off])
	off++

	if metaLen > limits.maxMetadata() {
		return Payload{}, fmt.Errorf("%w: metadata length %d", ErrMalformedToken, metaLen)
	}
	if len(b) != off+metaLen {
		return Payload{}, fmt.Errorf("%w: payload length mismatch", ErrMalformedToken)
	}
	meta := b[off:]
	if !utf8.Valid(meta) {
		return Payload{}, fmt.Errorf("%w: metadata is not utf-8", ErrMalformedToken)
	}
	p.Metadata = string(meta)

	if p.ExpiresAt <= p.IssuedAt {
		return Payload{}, fmt.Errorf("%w: expiry before issuance", ErrMalformedToken)
	}
	return p, nil
}

// payloadLen 根据帧头推算载荷长度，用于从注册码中切分载荷与签名
func payloadLen(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}
	switch b[0] {
	case VersionV1:
		if len(b) < v1HeaderSize {
			return 0, fmt.Errorf("%w: truncated token", ErrMalformedToken)
		}
		return v1HeaderSize + int(b[v1HeaderSize-1]), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}
}

// EncodeLicense 将载荷和签名拼接并编码为注册码
func EncodeLicense(payload, signature []byte) string {
	raw := make([]byte, 0, len(payload)+len(signature))
	raw = append(raw, payload...)
	raw = append(raw, signature...)
	enc := licenseEncoding.EncodeToString(raw)

	var b strings.Builder
	b.Grow(len(enc) + len(enc)/groupSize)
	for i := 0; i < len(enc); i += groupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + groupSize
		if end > len(enc) {
			end = len(enc)
		}
		b.WriteString(enc[i:end])
	}
	return b.String()
}

// normalizeLicense 大小写不敏感，去掉分组符，并纠正易混淆字符
func normalizeLicense(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '-':
			continue
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}
		switch c {
		case 'O':
			c = '0'
		case 'I', 'L':
			c = '1'
		}
		if strings.IndexByte(licenseAlphabet, c) < 0 {
			return "", fmt.Errorf("%w: invalid character at %d", ErrMalformedToken, i)
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// DecodeLicense 将注册码拆分为载荷字节和签名
func DecodeLicense(s string) (payload, signature []byte, err error) {
	if s == "" {
		return nil, nil, fmt.Errorf("%w: empty license", ErrMalformedToken)
	}
	if len(s) > maxLicenseStringLen {
		return nil, nil, fmt.Errorf("%w: license too long", ErrMalformedToken)
	}
	norm, err := normalizeLicense(s)
	if err != nil {
		return nil, nil, err
	}
	raw, err := licenseEncoding.DecodeString(norm)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	// 末尾字符的填充位必须为零，保证一个令牌只有一种写法
	if licenseEncoding.EncodeToString(raw) != norm {
		return nil, nil, fmt.Errorf("%w: non-canonical encoding", ErrMalformedToken)
	}

	n, err := payloadLen(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) != n+SignatureSize {
		return nil, nil, fmt.Errorf("%w: token length mismatch", ErrMalformedToken)
	}
	return raw[:n], raw[n:], nil
}

// CanonicalLicense 返回注册码的规范写法
func CanonicalLicense(s string) (string, error) {
	payload, sig, err := DecodeLicense(s)
	if err != nil {
		return "", err
	}
	return EncodeLicense(payload, sig), nil
}
