package license

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// FingerprintHashSize 指纹摘要长度
const FingerprintHashSize = sha256.Size

// 摘要前缀，避免与其他用途的 SHA-256 摘要混用
const fingerprintDomain = "machine-license/fingerprint/v1\x00"

// FingerprintHash 规范化后机器指纹的摘要，令牌中只保存它
type FingerprintHash [FingerprintHashSize]byte

func (h FingerprintHash) String() string {
	return hex.EncodeToString(h[:])
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '-', '_', ':', '.', '/', '\\', '|', ',', ';':
		return true
	}
	return false
}

// Canonicalize 规范化原始指纹：NFKC、大小写折叠、去掉首尾空白，
// 连续的分隔符合并为一个 '-'。
func Canonicalize(raw string) ([]byte, error) {
	folded := cases.Fold().String(norm.NFKC.String(raw))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		if isSeparator(r) {
			pendingSep = b.Len() > 0
			continue
		}
		if !unicode.IsPrint(r) {
			return nil, ErrInvalidFingerprint
		}
		if pendingSep {
			b.WriteByte('-')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return nil, ErrInvalidFingerprint
	}
	return []byte(b.String()), nil
}

// HashFingerprint 规范化并计算指纹摘要
func HashFingerprint(raw string) (FingerprintHash, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return FingerprintHash{}, err
	}
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write(canonical)

	var out FingerprintHash
	copy(out[:], h.Sum(nil))
	return out, nil
}
