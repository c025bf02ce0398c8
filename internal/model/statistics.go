package model

// DailyUsage 每日校验统计
type DailyUsage struct {
	Date        string `json:"date"`
	TotalChecks int    `json:"total_checks"`
	ValidChecks int    `json:"valid_checks"`
}

// LicenseStatistics 注册码统计信息
type LicenseStatistics struct {
	TotalLicenses    int64            `json:"total_licenses"`
	ActiveLicenses   int64            `json:"active_licenses"`
	ExpiredLicenses  int64            `json:"expired_licenses"`
	ExpiringLicenses int64            `json:"expiring_licenses"`
	RevokedLicenses  int64            `json:"revoked_licenses"`
	LicensesByBrand  map[string]int   `json:"licenses_by_brand"`
	VerdictCounts    map[string]int64 `json:"verdict_counts"`
	DailyUsage       []DailyUsage     `json:"daily_usage"`
	TotalChecks      int64            `json:"total_checks"`
	FailedChecks     int64            `json:"failed_checks"`
}

// GetSuccessRate 计算校验成功率
func (ls *LicenseStatistics) GetSuccessRate() float64 {
	if ls.TotalChecks == 0 {
		return 0
	}
	return float64(ls.TotalChecks-ls.FailedChecks) / float64(ls.TotalChecks)
}
