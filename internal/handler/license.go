package handler

import (
	"context"
	"errors"

	"machine-license/internal/database"
	"machine-license/internal/license"
	"machine-license/internal/middleware"
	"machine-license/internal/model"
	"machine-license/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	sheetSync   *service.SheetSyncService
	authority   *license.Authority
	revocations service.RevocationStore
)

func InitSheetSync(enableSync bool, credentialPath, spreadsheetID, sheetName string) (*service.SheetSyncService, error) {
	var err error
	sheetSync, err = service.NewSheetSyncService(enableSync, credentialPath, spreadsheetID, sheetName)
	return sheetSync, err
}

// SetSheetSync 替换同步服务，传 nil 关闭同步
func SetSheetSync(s *service.SheetSyncService) {
	sheetSync = s
}

// InitLicenseService 设置签发入口和吊销列表
func InitLicenseService(a *license.Authority, store service.RevocationStore) {
	authority = a
	revocations = store
}

func syncLicense(rec *model.License) {
	if sheetSync == nil {
		return
	}
	l := *rec
	go func() {
		if err := sheetSync.SyncLicense(context.Background(), &l); err != nil {
			logrus.WithError(err).WithField("license_id", l.PublicID).Warn("同步到Google Sheet失败")
		}
	}()
}

// HandleLicenseCreate 签发注册码
func HandleLicenseCreate(c *fiber.Ctx) error {
	input := new(model.CreateLicenseInput)
	if ok, err := parseAndValidate(c, input); !ok {
		return err
	}
	userID := c.Locals("userID").(uint)

	rec, err := service.IssueLicense(c.UserContext(), authority, input, userID)
	if err != nil {
		var perr *license.PolicyError
		if errors.As(err, &perr) || errors.Is(err, license.ErrInvalidFingerprint) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "签发请求被拒绝",
				"reason": service.IssueFailureReason(err),
			})
		}
		logrus.WithError(err).Error("签发注册码失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "签发注册码失败",
		})
	}

	logrus.WithFields(logrus.Fields{
		"license_id":  rec.PublicID,
		"user_id":     userID,
		"expire_days": rec.ExpireDays,
		"key_id":      rec.KeyID,
	}).Info("已签发注册码")

	syncLicense(rec)
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// HandleGetLicenses 获取注册码列表，管理员可以看到全部
func HandleGetLicenses(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	page, pageSize, ok, err := parsePage(c)
	if !ok {
		return err
	}

	query := func() *gorm.DB {
		db := database.DB.Model(&model.License{})
		if !middleware.IsAdmin(c) {
			db = db.Where("created_by = ?", userID)
		}
		if brand := c.Query("brand"); brand != "" {
			db = db.Where("brand = ?", brand)
		}
		if status := c.Query("status"); status != "" {
			db = db.Where("status = ?", status)
		}
		return db
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取注册码总数失败",
		})
	}

	var licenses []model.License
	offset := (page - 1) * pageSize
	if err := query().Order("id DESC").Offset(offset).Limit(pageSize).Find(&licenses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取注册码数据失败",
		})
	}

	return c.JSON(fiber.Map{
		"licenses": licenses,
		"total":    total,
		"page":     page,
		"size":     pageSize,
	})
}

// findOwnedLicense 按编号查找，非管理员只能访问自己签发的注册码
func findOwnedLicense(c *fiber.Ctx) (*model.License, error) {
	var rec model.License
	if err := database.DB.Where("public_id = ?", c.Params("id")).First(&rec).Error; err != nil {
		return nil, err
	}
	if !middleware.IsAdmin(c) && rec.CreatedBy != c.Locals("userID").(uint) {
		return nil, gorm.ErrRecordNotFound
	}
	return &rec, nil
}

func licenseLookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "注册码不存在",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "查询注册码失败",
	})
}

// HandleGetLicense 获取单个注册码详情
func HandleGetLicense(c *fiber.Ctx) error {
	rec, err := findOwnedLicense(c)
	if err != nil {
		return licenseLookupError(c, err)
	}
	return c.JSON(rec)
}

// HandleLicenseRevoke 吊销注册码，记录保留
func HandleLicenseRevoke(c *fiber.Ctx) error {
	input := new(model.RevokeLicenseInput)
	if len(c.Body()) > 0 {
		if ok, err := parseAndValidate(c, input); !ok {
			return err
		}
	}

	rec, err := findOwnedLicense(c)
	if err != nil {
		return licenseLookupError(c, err)
	}

	userID := c.Locals("userID").(uint)
	if err := service.RevokeLicense(c.UserContext(), revocations, rec, userID, input.Reason); err != nil {
		logrus.WithError(err).WithField("license_id", rec.PublicID).Error("吊销注册码失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "吊销注册码失败",
		})
	}

	logrus.WithFields(logrus.Fields{
		"license_id": rec.PublicID,
		"user_id":    userID,
	}).Info("已吊销注册码")

	syncLicense(rec)
	return c.JSON(fiber.Map{
		"message": "注册码已吊销",
		"license": rec,
	})
}

// HandleLicenseDelete 删除注册码。删除前先吊销，已发出的注册码随之失效。
func HandleLicenseDelete(c *fiber.Ctx) error {
	rec, err := findOwnedLicense(c)
	if err != nil {
		return licenseLookupError(c, err)
	}

	userID := c.Locals("userID").(uint)
	if err := service.RevokeLicense(c.UserContext(), revocations, rec, userID, "deleted"); err != nil {
		logrus.WithError(err).WithField("license_id", rec.PublicID).Error("吊销注册码失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "删除注册码失败",
		})
	}

	if err := database.DB.Delete(rec).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "删除注册码失败",
		})
	}
	if err := service.LogOperation(userID, model.ActionLicenseDelete, "license", rec.PublicID, nil); err != nil {
		logrus.WithError(err).Warn("记录操作日志失败")
	}

	syncLicense(rec)
	return c.JSON(fiber.Map{
		"message": "注册码删除成功",
	})
}

// HandleLicenseVerify 校验注册码与机器指纹
func HandleLicenseVerify(c *fiber.Ctx) error {
	input := new(model.VerifyLicenseInput)
	if ok, err := parseAndValidate(c, input); !ok {
		return err
	}

	ctx := c.UserContext()
	result := authority.Verify(ctx, input.License, input.Fingerprint)

	var licenseID uint
	if result.Payload != nil {
		// 签名有效时才去查记录
		if rec, err := service.FindLicenseByToken(ctx, input.License); err == nil {
			licenseID = rec.ID
		}
	}
	if err := service.RecordUsage(ctx, licenseID, result, c.IP(), c.Get("User-Agent")); err != nil {
		logrus.WithError(err).Warn("记录校验日志失败")
	}

	resp := fiber.Map{
		"valid":   result.Verdict.Valid(),
		"verdict": result.Verdict,
	}
	if result.Verdict.Valid() {
		resp["issued_at"] = result.Payload.IssuedTime()
		resp["expires_at"] = result.Payload.ExpiresTime()
		resp["metadata"] = result.Payload.Metadata
		resp["key_id"] = result.KeyID
	}
	return c.JSON(resp)
}

// HandleLicenseUsage 查询注册码的校验记录
func HandleLicenseUsage(c *fiber.Ctx) error {
	rec, err := findOwnedLicense(c)
	if err != nil {
		return licenseLookupError(c, err)
	}

	var usages []model.LicenseUsage
	result := database.DB.Where("license_id = ?", rec.ID).Order("timestamp desc").Limit(20).Find(&usages)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "查询使用记录失败",
		})
	}

	return c.JSON(fiber.Map{
		"usages": usages,
	})
}

// HandleListRevocations 管理员查看吊销列表
func HandleListRevocations(c *fiber.Ctx) error {
	lister, ok := revocations.(service.RevocationLister)
	if !ok {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "当前吊销存储不支持列出",
		})
	}
	entries, err := lister.Entries(c.UserContext())
	if err != nil {
		logrus.WithError(err).Error("读取吊销列表失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "读取吊销列表失败",
		})
	}
	return c.JSON(fiber.Map{
		"revocations": entries,
		"total":       len(entries),
	})
}

// HandlePublicKeys 列出受信任的公钥，供受保护软件内置
func HandlePublicKeys(c *fiber.Ctx) error {
	keys := authority.Verifier().PublicKeys()
	out := make([]fiber.Map, 0, len(keys))
	for _, k := range keys {
		pemBytes, err := license.MarshalPublicKey(k)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "导出公钥失败",
			})
		}
		out = append(out, fiber.Map{
			"key_id":  license.KeyID(k),
			"pem":     string(pemBytes),
			"current": license.KeyID(k) == authority.KeyID(),
		})
	}
	return c.JSON(fiber.Map{
		"keys": out,
	})
}
