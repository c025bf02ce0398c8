package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"machine-license/internal/database"
	"machine-license/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserDisabled       = errors.New("user disabled")
	ErrUserExists         = errors.New("username or email already registered")
	ErrUserNotFound       = errors.New("user not found")
)

// UserStatusActive 可以登录的账户状态
const UserStatusActive = "active"

// PasswordCost bcrypt 代价，测试中调低
var PasswordCost = bcrypt.DefaultCost

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("密码加密失败: %w", err)
	}
	return string(hashed), nil
}

// RegisterUser 注册普通用户
func RegisterUser(ctx context.Context, username, password, email string) (*model.User, error) {
	db := database.DB.WithContext(ctx)

	var count int64
	if err := db.Model(&model.User{}).
		Where("username = ? OR email = ?", username, strings.ToLower(email)).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username: username,
		Password: hashed,
		Email:    strings.ToLower(email),
		Role:     model.RoleUser,
		Status:   UserStatusActive,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("用户创建失败: %w", err)
	}
	return user, nil
}

// Authenticate 校验用户名密码，成功和失败都写入登录记录
func Authenticate(ctx context.Context, username, password, ip, userAgent string) (*model.User, error) {
	db := database.DB.WithContext(ctx)

	var user model.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	record := func(status string) {
		entry := &model.LoginLog{
			UserID:    user.ID,
			IP:        ip,
			UserAgent: userAgent,
			Status:    status,
			CreatedAt: time.Now(),
		}
		if err := db.Create(entry).Error; err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Warn("写入登录记录失败")
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		record(model.LoginStatusFailed)
		logrus.WithFields(logrus.Fields{"username": user.Username, "ip": ip}).Warn("登录失败")
		return nil, ErrInvalidCredentials
	}
	if user.Status != UserStatusActive {
		record(model.LoginStatusFailed)
		return nil, ErrUserDisabled
	}

	record(model.LoginStatusSuccess)
	user.LastLogin = time.Now()
	if err := db.Model(&user).Update("last_login", user.LastLogin).Error; err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("更新最后登录时间失败")
	}
	return &user, nil
}

// ChangePassword 校验当前密码后更新
func ChangePassword(ctx context.Context, userID uint, current, next string) error {
	db := database.DB.WithContext(ctx)

	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hashed, err := hashPassword(next)
	if err != nil {
		return err
	}
	return db.Model(&user).Update("password", hashed).Error
}

// LoginLogs 分页获取用户自己的登录记录
func LoginLogs(ctx context.Context, userID uint, page, pageSize int) ([]model.LoginLog, int64, error) {
	db := database.DB.WithContext(ctx).Model(&model.LoginLog{}).Where("user_id = ?", userID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []model.LoginLog
	err := db.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&logs).Error
	return logs, total, err
}

// EnsureAdmin 没有管理员时创建 admin 账户。password 为空时生成随机密码并返回，
// 由调用方负责告知运维人员。
func EnsureAdmin(ctx context.Context, password string) (string, error) {
	db := database.DB.WithContext(ctx)

	var count int64
	if err := db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return "", fmt.Errorf("查询管理员账户失败: %w", err)
	}
	if count > 0 {
		return "", nil
	}

	generated := ""
	if password == "" {
		buf := make([]byte, 12)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		password = hex.EncodeToString(buf)
		generated = password
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return "", err
	}
	admin := &model.User{
		Username: "admin",
		Password: hashed,
		Email:    "admin@localhost",
		Role:     model.RoleAdmin,
		Status:   UserStatusActive,
	}
	if err := db.Create(admin).Error; err != nil {
		return "", fmt.Errorf("创建管理员账户失败: %w", err)
	}
	return generated, nil
}
