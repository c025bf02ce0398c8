package handler

import (
	"time"

	"machine-license/internal/database"
	"machine-license/internal/license"
	"machine-license/internal/middleware"
	"machine-license/internal/model"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HandleLicenseStatistics 处理注册码统计信息请求
func HandleLicenseStatistics(c *fiber.Ctx) error {
	// 获取查询参数
	startDate := c.Query("start_date")
	endDate := c.Query("end_date")

	now := time.Now().UTC()
	var start, end time.Time
	var err error

	if startDate != "" {
		start, err = time.Parse("2006-01-02", startDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"code":    400,
				"message": "开始日期格式错误",
				"errors": []fiber.Map{
					{"field": "start_date", "message": "日期格式应为 YYYY-MM-DD"},
				},
			})
		}
	} else {
		// 默认为30天前
		start = now.AddDate(0, 0, -30)
	}

	if endDate != "" {
		end, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"code":    400,
				"message": "结束日期格式错误",
				"errors": []fiber.Map{
					{"field": "end_date", "message": "日期格式应为 YYYY-MM-DD"},
				},
			})
		}
		// 包含结束当天
		end = end.AddDate(0, 0, 1)
	} else {
		end = now
	}

	// 非管理员只统计自己签发的注册码
	licenses := func() *gorm.DB {
		db := database.DB.Model(&model.License{})
		if !middleware.IsAdmin(c) {
			db = db.Where("created_by = ?", c.Locals("userID").(uint))
		}
		return db
	}

	stats := &model.LicenseStatistics{
		LicensesByBrand: make(map[string]int),
		VerdictCounts:   make(map[string]int64),
		DailyUsage:      make([]model.DailyUsage, 0),
	}

	counts := []struct {
		target  *int64
		query   func() *gorm.DB
		message string
	}{
		{&stats.TotalLicenses, licenses, "获取注册码总数失败"},
		{&stats.ActiveLicenses, func() *gorm.DB {
			return licenses().Where("status = ? AND expires_at > ?", model.LicenseStatusActive, now)
		}, "获取有效注册码数失败"},
		{&stats.ExpiredLicenses, func() *gorm.DB {
			return licenses().Where("status = ? AND expires_at <= ?", model.LicenseStatusActive, now)
		}, "获取过期注册码数失败"},
		{&stats.ExpiringLicenses, func() *gorm.DB {
			// 30天内到期
			return licenses().Where("status = ? AND expires_at > ? AND expires_at <= ?",
				model.LicenseStatusActive, now, now.AddDate(0, 0, 30))
		}, "获取即将过期注册码数失败"},
		{&stats.RevokedLicenses, func() *gorm.DB {
			return licenses().Where("status = ?", model.LicenseStatusRevoked)
		}, "获取已吊销注册码数失败"},
	}
	for _, cnt := range counts {
		if err := cnt.query().Count(cnt.target).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"code":    500,
				"message": cnt.message,
			})
		}
	}

	// 按品牌统计
	var brandStats []struct {
		Brand string
		Count int
	}
	if err := licenses().
		Select("brand, count(*) as count").
		Group("brand").
		Scan(&brandStats).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取品牌统计失败",
		})
	}
	for _, bs := range brandStats {
		stats.LicensesByBrand[bs.Brand] = bs.Count
	}

	// 校验记录，按日期和结果汇总
	usages := database.DB.Model(&model.LicenseUsage{}).Where("timestamp >= ? AND timestamp < ?", start, end)
	if !middleware.IsAdmin(c) {
		usages = usages.Where("license_id IN (?)", licenses().Select("id"))
	}
	var rows []struct {
		Verdict   string
		Timestamp time.Time
	}
	if err := usages.Select("verdict, timestamp").Order("timestamp ASC").Scan(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "获取每日校验统计失败",
		})
	}

	daily := make(map[string]int)
	for _, r := range rows {
		stats.TotalChecks++
		stats.VerdictCounts[r.Verdict]++
		valid := r.Verdict == license.VerdictValid.String()
		if !valid {
			stats.FailedChecks++
		}

		day := r.Timestamp.UTC().Format("2006-01-02")
		idx, ok := daily[day]
		if !ok {
			idx = len(stats.DailyUsage)
			daily[day] = idx
			stats.DailyUsage = append(stats.DailyUsage, model.DailyUsage{Date: day})
		}
		stats.DailyUsage[idx].TotalChecks++
		if valid {
			stats.DailyUsage[idx].ValidChecks++
		}
	}

	return c.JSON(fiber.Map{
		"code":         200,
		"message":      "success",
		"data":         stats,
		"success_rate": stats.GetSuccessRate(),
	})
}
