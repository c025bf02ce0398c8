package model

import (
	"time"

	"gorm.io/gorm"
)

// LicenseUsage 注册码校验记录
type LicenseUsage struct {
	gorm.Model
	LicenseID uint      `json:"license_id" gorm:"index"`
	Verdict   string    `json:"verdict" gorm:"index"`
	KeyID     string    `json:"key_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Timestamp time.Time `json:"timestamp"`
}
