package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"machine-license/internal/database"
	"machine-license/internal/license"
	"machine-license/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IssueLicense 签发注册码并保存记录。品牌作为元数据写入令牌。
func IssueLicense(ctx context.Context, authority *license.Authority, input *model.CreateLicenseInput, userID uint) (*model.License, error) {
	sl, err := authority.IssueLicenseDetailed(input.Fingerprint, input.Days(), input.Brand)
	if err != nil {
		RecordIssueFailure(IssueFailureReason(err))
		return nil, err
	}

	record := &model.License{
		PublicID:        uuid.NewString(),
		FingerprintHash: sl.Payload.FingerprintHash.String(),
		Brand:           input.Brand,
		ExpireDays:      sl.ExpireDays,
		License:         sl.License,
		KeyID:           authority.KeyID(),
		Status:          model.LicenseStatusActive,
		IssuedAt:        sl.Payload.IssuedTime(),
		ExpiresAt:       sl.Payload.ExpiresTime(),
		CreatedBy:       userID,
	}
	if err := database.DB.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("保存注册码失败: %w", err)
	}
	RecordIssued()

	if err := LogOperation(userID, model.ActionLicenseIssue, "license", record.PublicID, map[string]interface{}{
		"brand":       record.Brand,
		"expire_days": record.ExpireDays,
		"key_id":      record.KeyID,
	}); err != nil {
		logrus.WithError(err).Warn("记录操作日志失败")
	}
	return record, nil
}

// IssueFailureReason 把签发错误归类为指标标签
func IssueFailureReason(err error) string {
	switch {
	case errors.Is(err, license.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, license.ErrMetadataTooLong), errors.Is(err, license.ErrInvalidMetadata):
		return "invalid_metadata"
	case errors.Is(err, license.ErrInvalidFingerprint):
		return "invalid_fingerprint"
	case errors.Is(err, license.ErrSignerClosed):
		return "signer_closed"
	default:
		return "internal"
	}
}

// RevokeLicense 把注册码加入吊销列表并更新记录状态，重复调用无副作用
func RevokeLicense(ctx context.Context, store RevocationStore, lic *model.License, userID uint, reason string) error {
	now := time.Now()
	entry := &model.RevokedLicense{
		License:   lic.License,
		LicenseID: lic.ID,
		Reason:    reason,
		RevokedBy: userID,
		RevokedAt: now,
	}
	if err := store.Revoke(ctx, entry, lic.ExpiresAt); err != nil {
		return err
	}
	if lic.Status == model.LicenseStatusRevoked {
		return nil
	}

	lic.Status = model.LicenseStatusRevoked
	lic.RevokedAt = &now
	err := database.DB.WithContext(ctx).Model(lic).Updates(map[string]interface{}{
		"status":     lic.Status,
		"revoked_at": lic.RevokedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("更新注册码状态失败: %w", err)
	}
	RecordRevocation()

	if err := LogOperation(userID, model.ActionLicenseRevoke, "license", lic.PublicID, map[string]interface{}{
		"reason": reason,
	}); err != nil {
		logrus.WithError(err).Warn("记录操作日志失败")
	}
	return nil
}

// FindLicenseByToken 按注册码查找记录，输入可以是任意大小写或分组写法
func FindLicenseByToken(ctx context.Context, token string) (*model.License, error) {
	canonical, err := license.CanonicalLicense(token)
	if err != nil {
		return nil, err
	}
	var lic model.License
	if err := database.DB.WithContext(ctx).Where("license = ?", canonical).First(&lic).Error; err != nil {
		return nil, err
	}
	return &lic, nil
}

// RecordUsage 保存一次校验记录，licenseID 为 0 表示未匹配到已签发的注册码
func RecordUsage(ctx context.Context, licenseID uint, result license.Result, ip, userAgent string) error {
	RecordVerdict(result.Verdict)
	usage := &model.LicenseUsage{
		LicenseID: licenseID,
		Verdict:   result.Verdict.String(),
		KeyID:     result.KeyID,
		IPAddress: ip,
		UserAgent: userAgent,
		Timestamp: time.Now().UTC(),
	}
	return database.DB.WithContext(ctx).Create(usage).Error
}
