package service

import (
	"context"
	"strings"
	"testing"

	"machine-license/internal/database"
	"machine-license/internal/license"
	"machine-license/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T, store RevocationStore) *license.Authority {
	t.Helper()
	database.InitTestDB()
	t.Cleanup(database.CleanTestDB)

	signer, err := license.GenerateSigner()
	require.NoError(t, err)
	a, err := license.NewAuthority(license.DefaultPolicy(), signer, license.WithRevocationChecker(store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestIssueLicensePersists(t *testing.T) {
	store := NewDBRevocationList()
	a := setupService(t, store)
	ctx := context.Background()

	before := testutil.ToFloat64(licensesIssued)
	rec, err := IssueLicense(ctx, a, &model.CreateLicenseInput{
		Fingerprint: "FP-TEST-0001",
		Brand:       "ACME",
		ExpireDays:  intPtr(30),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(licensesIssued))

	assert.NotEmpty(t, rec.PublicID)
	assert.Equal(t, model.LicenseStatusActive, rec.Status)
	assert.Equal(t, 30, rec.ExpireDays)
	assert.Equal(t, a.KeyID(), rec.KeyID)
	assert.Equal(t, rec.IssuedAt.AddDate(0, 0, 30).Unix(), rec.ExpiresAt.Unix())

	hash, err := license.HashFingerprint("FP-TEST-0001")
	require.NoError(t, err)
	assert.Equal(t, hash.String(), rec.FingerprintHash)
	assert.NotContains(t, rec.FingerprintHash, "FP-TEST")

	var stored model.License
	require.NoError(t, database.DB.Where("public_id = ?", rec.PublicID).First(&stored).Error)
	assert.Equal(t, rec.License, stored.License)

	var logs []model.OperationLog
	require.NoError(t, database.DB.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ActionLicenseIssue, logs[0].Action)
	assert.Equal(t, rec.PublicID, logs[0].TargetID)

	assert.Equal(t, license.VerdictValid, a.VerifyLicense(rec.License, "FP-TEST-0001"))
}

func TestIssueLicenseRejected(t *testing.T) {
	a := setupService(t, NewDBRevocationList())
	policy := license.Policy{MinDays: 1, MaxDays: 10, MaxMetadataLen: 8, Strict: true}
	signer, err := license.GenerateSigner()
	require.NoError(t, err)
	strict, err := license.NewAuthority(policy, signer)
	require.NoError(t, err)
	defer strict.Close()

	tests := []struct {
		name   string
		auth   *license.Authority
		input  model.CreateLicenseInput
		reason string
	}{
		{name: "out_of_range", auth: strict, input: model.CreateLicenseInput{Fingerprint: "FP", ExpireDays: intPtr(11)}, reason: "out_of_range"},
		{name: "metadata_too_long", auth: strict, input: model.CreateLicenseInput{Fingerprint: "FP", Brand: strings.Repeat("x", 9), ExpireDays: intPtr(5)}, reason: "invalid_metadata"},
		{name: "empty_fingerprint", auth: a, input: model.CreateLicenseInput{Fingerprint: "   ", ExpireDays: intPtr(5)}, reason: "invalid_fingerprint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := issueFailures.WithLabelValues(tt.reason)
			before := testutil.ToFloat64(counter)

			rec, err := IssueLicense(context.Background(), tt.auth, &tt.input, 1)
			assert.Error(t, err)
			assert.Nil(t, rec)
			assert.Equal(t, tt.reason, IssueFailureReason(err))
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}

	var count int64
	database.DB.Model(&model.License{}).Count(&count)
	assert.Zero(t, count)
}

func TestRevokeLicense(t *testing.T) {
	store := NewDBRevocationList()
	a := setupService(t, store)
	ctx := context.Background()

	rec, err := IssueLicense(ctx, a, &model.CreateLicenseInput{Fingerprint: "FP-TEST-0001", Brand: "ACME", ExpireDays: intPtr(30)}, 1)
	require.NoError(t, err)

	before := testutil.ToFloat64(revocations)
	require.NoError(t, RevokeLicense(ctx, store, rec, 1, "refund"))
	assert.Equal(t, model.LicenseStatusRevoked, rec.Status)
	require.NotNil(t, rec.RevokedAt)

	// 重复吊销
	require.NoError(t, RevokeLicense(ctx, store, rec, 1, "refund"))
	assert.Equal(t, before+1, testutil.ToFloat64(revocations))

	var stored model.License
	require.NoError(t, database.DB.First(&stored, rec.ID).Error)
	assert.Equal(t, model.LicenseStatusRevoked, stored.Status)

	assert.Equal(t, license.VerdictRevoked, a.VerifyLicense(rec.License, "FP-TEST-0001"))
	assert.Equal(t, license.VerdictRevoked, a.VerifyLicense(strings.ToLower(rec.License), "FP-TEST-0001"))
}

func TestFindLicenseByToken(t *testing.T) {
	a := setupService(t, NewDBRevocationList())
	ctx := context.Background()

	rec, err := IssueLicense(ctx, a, &model.CreateLicenseInput{Fingerprint: "FP-TEST-0001", ExpireDays: intPtr(7)}, 1)
	require.NoError(t, err)

	found, err := FindLicenseByToken(ctx, strings.ReplaceAll(strings.ToLower(rec.License), "-", ""))
	require.NoError(t, err)
	assert.Equal(t, rec.PublicID, found.PublicID)

	_, err = FindLicenseByToken(ctx, "!!!")
	assert.Error(t, err)
}

func TestRecordUsage(t *testing.T) {
	a := setupService(t, NewDBRevocationList())
	ctx := context.Background()

	rec, err := IssueLicense(ctx, a, &model.CreateLicenseInput{Fingerprint: "FP-TEST-0001", ExpireDays: intPtr(7)}, 1)
	require.NoError(t, err)

	result := a.Verify(ctx, rec.License, "FP-TEST-0002")
	require.Equal(t, license.VerdictFingerprintMismatch, result.Verdict)

	counter := verifications.WithLabelValues(license.VerdictFingerprintMismatch.String())
	before := testutil.ToFloat64(counter)
	require.NoError(t, RecordUsage(ctx, rec.ID, result, "127.0.0.1", "test"))
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	var usage model.LicenseUsage
	require.NoError(t, database.DB.First(&usage).Error)
	assert.Equal(t, rec.ID, usage.LicenseID)
	assert.Equal(t, "fingerprint_mismatch", usage.Verdict)
	assert.Equal(t, a.KeyID(), usage.KeyID)
}

func intPtr(v int) *int {
	return &v
}
