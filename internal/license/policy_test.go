package license

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2040, 1, 15, 8, 0, 0, 0, time.UTC)

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{name: "default", policy: DefaultPolicy()},
		{name: "min_zero", policy: Policy{MinDays: 0, MaxDays: 10}, wantErr: true},
		{name: "max_below_min", policy: Policy{MinDays: 10, MaxDays: 5}, wantErr: true},
		{name: "metadata_over_format", policy: Policy{MinDays: 1, MaxDays: 5, MaxMetadataLen: 256}, wantErr: true},
		{name: "metadata_zero", policy: Policy{MinDays: 1, MaxDays: 5, MaxMetadataLen: 0}, wantErr: true},
		{name: "max_days_at_bound", policy: Policy{MinDays: 1, MaxDays: MaxExpireDays, MaxMetadataLen: 64}},
		{name: "max_days_over_bound", policy: Policy{MinDays: 1, MaxDays: MaxExpireDays + 1, MaxMetadataLen: 64}, wantErr: true},
		{name: "max_days_overflow", policy: Policy{MinDays: 1, MaxDays: int(^uint(0) >> 1), MaxMetadataLen: 64}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPolicyExpireDays(t *testing.T) {
	clamp := Policy{MinDays: 1, MaxDays: 365, MaxMetadataLen: 64}
	strict := clamp
	strict.Strict = true

	tests := []struct {
		name      string
		policy    Policy
		requested int
		want      int
		wantErr   bool
	}{
		{name: "clamp_zero", policy: clamp, requested: 0, want: 1},
		{name: "clamp_negative", policy: clamp, requested: -5, want: 1},
		{name: "clamp_over", policy: clamp, requested: 1000, want: 365},
		{name: "clamp_in_range", policy: clamp, requested: 30, want: 30},
		{name: "strict_zero", policy: strict, requested: 0, wantErr: true},
		{name: "strict_over", policy: strict, requested: 366, wantErr: true},
		{name: "strict_in_range", policy: strict, requested: 365, want: 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.ExpireDays(tt.requested)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfRange)
				var perr *PolicyError
				assert.ErrorAs(t, err, &perr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyIssueClampModes(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	clamp := Policy{MinDays: 1, MaxDays: 365, MaxMetadataLen: 64}
	sl, err := clamp.Issue("FP-TEST-0001", 0, "ACME", signer, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, sl.ExpireDays)
	assert.Equal(t, t0.Unix()+secondsPerDay, sl.Payload.ExpiresAt)

	strict := clamp
	strict.Strict = true
	_, err = strict.Issue("FP-TEST-0001", 0, "ACME", signer, t0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestPolicyIssuePayload(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)

	sl, err := DefaultPolicy().Issue("FP-TEST-0001", 30, "ACME", signer, t0)
	require.NoError(t, err)

	hash, err := HashFingerprint("fp-test-0001")
	require.NoError(t, err)
	assert.Equal(t, VersionV1, sl.Payload.Version)
	assert.Equal(t, hash, sl.Payload.FingerprintHash)
	assert.Equal(t, t0.Unix(), sl.Payload.IssuedAt)
	assert.Equal(t, t0.Add(30*24*time.Hour).Unix(), sl.Payload.ExpiresAt)
	assert.Equal(t, t0, sl.Payload.IssuedTime())
	assert.Equal(t, "ACME", sl.Payload.Metadata)
	assert.Greater(t, sl.Payload.ExpiresAt, sl.Payload.IssuedAt)

	payloadBytes, sig, err := DecodeLicense(sl.License)
	require.NoError(t, err)
	assert.Equal(t, sl.PayloadBytes, payloadBytes)
	assert.Equal(t, sl.Signature, sig)
	assert.NotContains(t, sl.License, "FP-TEST")
}

func TestPolicyIssueRejects(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	p := DefaultPolicy()

	_, err = p.Issue("FP-TEST-0001", 30, strings.Repeat("b", p.MaxMetadataLen+1), signer, t0)
	assert.ErrorIs(t, err, ErrMetadataTooLong)

	_, err = p.Issue("FP-TEST-0001", 30, "bad\nbrand", signer, t0)
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	_, err = p.Issue("   ", 30, "ACME", signer, t0)
	assert.ErrorIs(t, err, ErrInvalidFingerprint)

	_, err = p.Issue("FP-TEST-0001", 30, "ACME", nil, t0)
	assert.ErrorIs(t, err, ErrSignerClosed)

	// 策略本身无效时不签发，避免有效期溢出
	huge := Policy{MinDays: 1, MaxDays: int(^uint(0) >> 1), MaxMetadataLen: 64}
	_, err = huge.Issue("FP-TEST-0001", huge.MaxDays, "ACME", signer, t0)
	assert.Error(t, err)

	require.NoError(t, signer.Close())
	_, err = p.Issue("FP-TEST-0001", 30, "ACME", signer, t0)
	assert.ErrorIs(t, err, ErrSignerClosed)
}
