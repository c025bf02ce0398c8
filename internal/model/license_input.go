package model

// CreateLicenseInput 创建注册码的请求，在进入签发流程前完成校验
type CreateLicenseInput struct {
	Fingerprint string `json:"fingerprint" validate:"required,max=512"`
	Brand       string `json:"brand" validate:"max=255"`
	// 只检查是否提供，超出范围按签发策略截断或拒绝
	ExpireDays  *int   `json:"expireDays" validate:"required"`
}

// Days 请求的有效天数
func (in *CreateLicenseInput) Days() int {
	if in.ExpireDays == nil {
		return 0
	}
	return *in.ExpireDays
}

// VerifyLicenseInput 校验注册码的请求
type VerifyLicenseInput struct {
	License     string `json:"license" validate:"required,max=1024"`
	Fingerprint string `json:"fingerprint" validate:"required,max=512"`
}

// RevokeLicenseInput 吊销注册码的请求
type RevokeLicenseInput struct {
	Reason string `json:"reason" validate:"max=255"`
}
