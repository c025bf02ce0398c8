package license

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload(t *testing.T, meta string) Payload {
	t.Helper()
	hash, err := HashFingerprint("FP-TEST-0001")
	require.NoError(t, err)
	return Payload{
		Version:         VersionV1,
		FingerprintHash: hash,
		IssuedAt:        1700000000,
		ExpiresAt:       1700000000 + 30*secondsPerDay,
		Metadata:        meta,
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		meta string
	}{
		{name: "empty_metadata", meta: ""},
		{name: "brand", meta: "ACME"},
		{name: "unicode", meta: "品牌-测试"},
		{name: "max_length", meta: strings.Repeat("m", MaxMetadataLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPayload(t, tt.meta)
			b, err := EncodePayload(p)
			require.NoError(t, err)
			assert.Len(t, b, v1HeaderSize+len(tt.meta))

			got, err := DecodePayload(b, Limits{})
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestEncodePayloadRejects(t *testing.T) {
	p := testPayload(t, "ACME")
	p.ExpiresAt = p.IssuedAt
	_, err := EncodePayload(p)
	assert.Error(t, err)

	p = testPayload(t, strings.Repeat("x", MaxMetadataLen+1))
	_, err = EncodePayload(p)
	assert.ErrorIs(t, err, ErrMetadataTooLong)

	p = testPayload(t, "ACME")
	p.Version = 9
	_, err = EncodePayload(p)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodePayloadErrors(t *testing.T) {
	valid, err := EncodePayload(testPayload(t, "ACME"))
	require.NoError(t, err)

	unknownVersion := append([]byte{}, valid...)
	unknownVersion[0] = 2

	tooLongMeta, err := EncodePayload(testPayload(t, strings.Repeat("x", 100)))
	require.NoError(t, err)

	badExpiry := testPayload(t, "")
	expiryBytes, err := EncodePayload(badExpiry)
	require.NoError(t, err)
	// expiresAt 改为 0
	copy(expiryBytes[1+FingerprintHashSize+8:], make([]byte, 8))

	tests := []struct {
		name   string
		input  []byte
		limits Limits
		want   error
	}{
		{name: "empty", input: nil, want: ErrMalformedToken},
		{name: "truncated_header", input: valid[:10], want: ErrMalformedToken},
		{name: "truncated_metadata", input: valid[:len(valid)-1], want: ErrMalformedToken},
		{name: "trailing_bytes", input: append(append([]byte{}, valid...), 0), want: ErrMalformedToken},
		{name: "unknown_version", input: unknownVersion, want: ErrUnsupportedVersion},
		{name: "metadata_over_limit", input: tooLongMeta, limits: Limits{MaxMetadataLen: 64}, want: ErrMalformedToken},
		{name: "expiry_not_after_issue", input: expiryBytes, want: ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.input, tt.limits)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLicenseStringRoundTrip(t *testing.T) {
	payload, err := EncodePayload(testPayload(t, "ACME"))
	require.NoError(t, err)
	sig := bytes.Repeat([]byte{0xA5}, SignatureSize)

	s := EncodeLicense(payload, sig)
	assert.NotContains(t, s, " ")
	assert.NotContains(t, s, "\n")
	for _, group := range strings.Split(s, "-") {
		assert.LessOrEqual(t, len(group), groupSize)
	}

	gotPayload, gotSig, err := DecodeLicense(s)
	require.NoError(t, err)
	assert.Equal(t, payload, gotPayload)
	assert.Equal(t, sig, gotSig)

	// 大小写和分组符不影响解码
	relaxed := strings.ToLower(strings.ReplaceAll(s, "-", ""))
	gotPayload, gotSig, err = DecodeLicense(relaxed)
	require.NoError(t, err)
	assert.Equal(t, payload, gotPayload)
	assert.Equal(t, sig, gotSig)
}

func TestDecodeLicenseConfusableCharacters(t *testing.T) {
	payload, err := EncodePayload(testPayload(t, "ACME"))
	require.NoError(t, err)
	s := EncodeLicense(payload, make([]byte, SignatureSize))
	require.Contains(t, s, "0")

	confused := strings.ReplaceAll(s, "0", "O")
	confused = strings.ReplaceAll(confused, "1", "l")

	gotPayload, _, err := DecodeLicense(confused)
	require.NoError(t, err)
	assert.Equal(t, payload, gotPayload)
}

func TestDecodeLicenseErrors(t *testing.T) {
	payload, err := EncodePayload(testPayload(t, "ACME"))
	require.NoError(t, err)
	s := EncodeLicense(payload, make([]byte, SignatureSize))

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{name: "empty", input: "", want: ErrMalformedToken},
		{name: "embedded_space", input: s[:10] + " " + s[10:], want: ErrMalformedToken},
		{name: "invalid_character", input: "U" + s[1:], want: ErrMalformedToken},
		{name: "truncated", input: s[:len(s)-8], want: ErrMalformedToken},
		{name: "too_long", input: strings.Repeat("0", maxLicenseStringLen+1), want: ErrMalformedToken},
		{name: "missing_signature", input: EncodeLicense(payload, nil), want: ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeLicense(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeLicenseUnknownVersion(t *testing.T) {
	payload, err := EncodePayload(testPayload(t, "ACME"))
	require.NoError(t, err)
	payload[0] = 7

	_, _, err = DecodeLicense(EncodeLicense(payload, make([]byte, SignatureSize)))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeLicenseRejectsNonCanonicalTail(t *testing.T) {
	payload, err := EncodePayload(testPayload(t, "ACME"))
	require.NoError(t, err)
	raw := append(append([]byte{}, payload...), make([]byte, SignatureSize)...)
	enc := licenseEncoding.EncodeToString(raw)
	if len(raw)*8%5 == 0 {
		t.Skip("encoding has no spare bits")
	}

	// 最后一个字符的未使用位置 1
	last := strings.IndexByte(licenseAlphabet, enc[len(enc)-1])
	tampered := enc[:len(enc)-1] + string(licenseAlphabet[last|1])
	_, _, err = DecodeLicense(tampered)
	assert.ErrorIs(t, err, ErrMalformedToken)
}
