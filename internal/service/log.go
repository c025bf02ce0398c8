package service

import (
	"context"
	"encoding/json"
	"time"

	"machine-license/internal/database"
	"machine-license/internal/model"

	"gorm.io/gorm"
)

// LogOperation 记录一次控制台操作，details 以 JSON 保存
func LogOperation(userID uint, action string, target string, targetID string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	log := &model.OperationLog{
		UserID:    userID,
		Action:    action,
		Target:    target,
		TargetID:  targetID,
		Details:   string(detailsJSON),
		CreatedAt: time.Now(),
	}

	return database.DB.Create(log).Error
}

// OperationLogFilter 操作日志查询条件，零值表示不限
type OperationLogFilter struct {
	UserID   uint
	Action   string
	TargetID string
}

// QueryOperationLogs 按条件分页查询操作日志，最新的在前
func QueryOperationLogs(ctx context.Context, filter OperationLogFilter, page, pageSize int) ([]model.OperationLog, int64, error) {
	if page < 1 {
		page = 1
	}
	query := func() *gorm.DB {
		db := database.DB.WithContext(ctx).Model(&model.OperationLog{})
		if filter.UserID != 0 {
			db = db.Where("user_id = ?", filter.UserID)
		}
		if filter.Action != "" {
			db = db.Where("action = ?", filter.Action)
		}
		if filter.TargetID != "" {
			db = db.Where("target_id = ?", filter.TargetID)
		}
		return db
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []model.OperationLog
	offset := (page - 1) * pageSize
	if err := query().Order("created_at DESC").Order("id DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
