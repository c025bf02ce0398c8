package model

import "time"

const (
	LoginStatusSuccess = "success"
	LoginStatusFailed  = "failed"
)

// LoginLog 控制台登录记录
type LoginLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
