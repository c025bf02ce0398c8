package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	LicenseStatusActive  = "active"
	LicenseStatusRevoked = "revoked"
	// 只用于展示，数据库中不保存
	LicenseStatusExpired = "expired"
)

// License 控制台保存的注册码记录，只保存指纹摘要，不保存原始指纹
type License struct {
	gorm.Model
	PublicID        string     `json:"id" gorm:"uniqueIndex;not null"`
	FingerprintHash string     `json:"fingerprint_hash" gorm:"index;not null"`
	Brand           string     `json:"brand"`
	ExpireDays      int        `json:"expireDays"`
	License         string     `json:"license" gorm:"uniqueIndex;not null"`
	KeyID           string     `json:"key_id"`
	Status          string     `json:"status" gorm:"not null"`
	IssuedAt        time.Time  `json:"issued_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	CreatedBy       uint       `json:"created_by" gorm:"index"`
}

// Expired 按给定时间判断是否已过期
func (l *License) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
