package model

import "time"

// RevokedLicense 吊销列表中的一项，以注册码的规范写法为键
type RevokedLicense struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	License   string    `json:"license" gorm:"uniqueIndex;not null"`
	LicenseID uint      `json:"license_id" gorm:"index"`
	Reason    string    `json:"reason"`
	RevokedBy uint      `json:"revoked_by"`
	RevokedAt time.Time `json:"revoked_at"`
}
