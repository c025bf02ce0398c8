package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"machine-license/internal/database"
	"machine-license/internal/license"
	"machine-license/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevocationStore 吊销列表。校验端通过 IsRevoked 查询，控制台通过 Revoke 写入。
type RevocationStore interface {
	license.RevocationChecker
	// Revoke 加入吊销列表，expiresAt 之后令牌本身已过期，存储可以据此淘汰
	Revoke(ctx context.Context, entry *model.RevokedLicense, expiresAt time.Time) error
}

// RevocationLister 可以列出全部吊销项的存储
type RevocationLister interface {
	Entries(ctx context.Context) ([]model.RevokedLicense, error)
}

// DBRevocationList 基于数据库的吊销列表
type DBRevocationList struct{}

func NewDBRevocationList() *DBRevocationList {
	return &DBRevocationList{}
}

func (l *DBRevocationList) IsRevoked(ctx context.Context, lic string) (bool, error) {
	var count int64
	err := database.DB.WithContext(ctx).Model(&model.RevokedLicense{}).
		Where("license = ?", lic).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询吊销列表失败: %w", err)
	}
	return count > 0, nil
}

func (l *DBRevocationList) Revoke(ctx context.Context, entry *model.RevokedLicense, _ time.Time) error {
	canonical, err := license.CanonicalLicense(entry.License)
	if err != nil {
		return err
	}
	entry.License = canonical
	if entry.RevokedAt.IsZero() {
		entry.RevokedAt = time.Now()
	}
	// 重复吊销不报错
	err = database.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "license"}}, DoNothing: true}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("写入吊销列表失败: %w", err)
	}
	return nil
}

// Entries 列出吊销列表
func (l *DBRevocationList) Entries(ctx context.Context) ([]model.RevokedLicense, error) {
	var entries []model.RevokedLicense
	if err := database.DB.WithContext(ctx).Order("revoked_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// revokedRow 吊销项和对应注册码的过期时间
type revokedRow struct {
	model.RevokedLicense
	ExpiresAt *time.Time
}

func (r *revokedRow) expiresAt() time.Time {
	if r.ExpiresAt == nil {
		return time.Time{}
	}
	return *r.ExpiresAt
}

func (l *DBRevocationList) rows(ctx context.Context, lic string) ([]revokedRow, error) {
	var rows []revokedRow
	db := database.DB.WithContext(ctx).
		Table("revoked_licenses").
		Select("revoked_licenses.*, licenses.expires_at").
		Joins("LEFT JOIN licenses ON licenses.id = revoked_licenses.license_id")
	if lic != "" {
		db = db.Where("revoked_licenses.license = ?", lic)
	}
	if err := db.Scan(&rows).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("读取吊销列表失败: %w", err)
	}
	return rows, nil
}

// CachedRevocationList 写入时同时落库和写缓存。查询先走缓存，
// 缓存未命中时以数据库为准并回填，缓存丢失数据不会放行已吊销的令牌。
type CachedRevocationList struct {
	store *DBRevocationList
	cache RevocationStore
}

func NewCachedRevocationList(store *DBRevocationList, cache RevocationStore) *CachedRevocationList {
	return &CachedRevocationList{store: store, cache: cache}
}

func (l *CachedRevocationList) IsRevoked(ctx context.Context, lic string) (bool, error) {
	revoked, err := l.cache.IsRevoked(ctx, lic)
	if err != nil || revoked {
		return revoked, err
	}
	revoked, err = l.store.IsRevoked(ctx, lic)
	if err != nil || !revoked {
		return revoked, err
	}

	rows, err := l.store.rows(ctx, lic)
	if err != nil {
		logrus.WithError(err).Warn("回填吊销缓存失败")
		return true, nil
	}
	for i := range rows {
		if err := l.cache.Revoke(ctx, &rows[i].RevokedLicense, rows[i].expiresAt()); err != nil {
			logrus.WithError(err).Warn("回填吊销缓存失败")
		}
	}
	return true, nil
}

func (l *CachedRevocationList) Revoke(ctx context.Context, entry *model.RevokedLicense, expiresAt time.Time) error {
	if err := l.store.Revoke(ctx, entry, expiresAt); err != nil {
		return err
	}
	return l.cache.Revoke(ctx, entry, expiresAt)
}

// Entries 列出吊销列表，以数据库为准
func (l *CachedRevocationList) Entries(ctx context.Context) ([]model.RevokedLicense, error) {
	return l.store.Entries(ctx)
}

// Warm 启动时把数据库中仍未过期的吊销项写入缓存
func (l *CachedRevocationList) Warm(ctx context.Context, now time.Time) error {
	rows, err := l.store.rows(ctx, "")
	if err != nil {
		return err
	}

	warmed := 0
	for i := range rows {
		expiresAt := rows[i].expiresAt()
		if !expiresAt.IsZero() && !now.Before(expiresAt) {
			continue
		}
		if err := l.cache.Revoke(ctx, &rows[i].RevokedLicense, expiresAt); err != nil {
			return err
		}
		warmed++
	}
	logrus.WithField("entries", warmed).Info("吊销列表缓存已加载")
	return nil
}
