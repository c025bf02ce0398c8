package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"machine-license/internal/database"
	"machine-license/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"gorm.io/gorm"
)

// 工作表列：编号 注册码 指纹摘要 品牌 状态 有效天数 签发时间 到期时间 吊销时间
const sheetColumns = "A%d:I%d"

type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

func NewSheetSyncService(enableSync bool, credentialPath, spreadsheetID, sheetName string) (*SheetSyncService, error) {
	if !enableSync {
		return nil, nil
	}

	ctx := context.Background()

	// 读取凭证文件
	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, err
	}

	// 使用服务账号授权
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("无法加载凭证: %w", err)
	}

	return NewSheetSyncServiceWithOptions(ctx, spreadsheetID, sheetName, option.WithCredentials(creds))
}

// NewSheetSyncServiceWithOptions 使用自定义的客户端选项，例如指向其他地址
func NewSheetSyncServiceWithOptions(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*SheetSyncService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &SheetSyncService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// licenseRow 工作表中的一行，已过期的有效注册码显示为 expired
func licenseRow(l *model.License, now time.Time) []interface{} {
	status := l.Status
	if status == model.LicenseStatusActive && l.Expired(now) {
		status = model.LicenseStatusExpired
	}
	revokedAt := ""
	if l.RevokedAt != nil {
		revokedAt = l.RevokedAt.Format(time.RFC3339)
	}
	return []interface{}{
		l.PublicID,
		l.License,
		l.FingerprintHash,
		l.Brand,
		status,
		strconv.Itoa(l.ExpireDays),
		l.IssuedAt.Format(time.RFC3339),
		l.ExpiresAt.Format(time.RFC3339),
		revokedAt,
	}
}

// SyncLicense 把一条注册码写入工作表，已存在则更新该行
func (s *SheetSyncService) SyncLicense(ctx context.Context, l *model.License) error {
	if s == nil {
		return nil
	}

	rows, err := s.rowIndex(ctx)
	if err != nil {
		return err
	}
	rowIndex := rows[l.PublicID]

	values := [][]interface{}{licenseRow(l, time.Now())}
	if rowIndex > 0 {
		rangeData := fmt.Sprintf("%s!"+sheetColumns, s.sheetName, rowIndex, rowIndex)
		_, err = s.service.Spreadsheets.Values.Update(
			s.spreadsheetID,
			rangeData,
			&sheets.ValueRange{Values: values},
		).ValueInputOption("RAW").Context(ctx).Do()
	} else {
		_, err = s.service.Spreadsheets.Values.Append(
			s.spreadsheetID,
			s.sheetName+"!A2:I",
			&sheets.ValueRange{Values: values},
		).ValueInputOption("RAW").Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("同步到Google Sheet失败: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"license_id": l.PublicID,
		"status":     l.Status,
	}).Debug("已同步注册码到Google Sheet")
	return nil
}

// rowIndex 按编号索引工作表中已有的行号，A2 开始
func (s *SheetSyncService) rowIndex(ctx context.Context) (map[string]int, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A2:A").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("查询Sheet数据失败: %w", err)
	}
	rows := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" {
			rows[id] = i + 2
		}
	}
	return rows, nil
}

// BatchSyncLicenses 一次追加多行
func (s *SheetSyncService) BatchSyncLicenses(ctx context.Context, licenses []*model.License) error {
	if s == nil || len(licenses) == 0 {
		return nil
	}

	now := time.Now()
	values := make([][]interface{}, 0, len(licenses))
	for _, l := range licenses {
		values = append(values, licenseRow(l, now))
	}

	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.sheetName+"!A2:I",
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("批量同步失败: %w", err)
	}
	return nil
}

// SyncAll 把工作表中还没有的注册码一次性追加进去，返回追加的数量
func (s *SheetSyncService) SyncAll(ctx context.Context) (int, error) {
	if s == nil {
		return 0, nil
	}
	rows, err := s.rowIndex(ctx)
	if err != nil {
		return 0, err
	}

	var all []*model.License
	if err := database.DB.WithContext(ctx).Order("id").Find(&all).Error; err != nil {
		return 0, fmt.Errorf("读取注册码失败: %w", err)
	}
	missing := make([]*model.License, 0, len(all))
	for _, l := range all {
		if _, ok := rows[l.PublicID]; !ok {
			missing = append(missing, l)
		}
	}
	if err := s.BatchSyncLicenses(ctx, missing); err != nil {
		return 0, err
	}
	return len(missing), nil
}

// ImportRevocations 读取工作表中状态为 revoked 的行并加入吊销列表，返回新吊销的数量
func (s *SheetSyncService) ImportRevocations(ctx context.Context, store RevocationStore, revokedBy uint) (int, error) {
	if s == nil {
		return 0, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A2:I").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("读取工作表失败: %w", err)
	}

	imported := 0
	for i, row := range resp.Values {
		if len(row) < 5 {
			logrus.WithField("row", i+2).Warn("工作表数据不完整，跳过")
			continue
		}
		status, _ := row[4].(string)
		if status != model.LicenseStatusRevoked {
			continue
		}
		publicID, _ := row[0].(string)

		var lic model.License
		err := database.DB.WithContext(ctx).Where("public_id = ?", publicID).First(&lic).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithFields(logrus.Fields{"row": i + 2, "license_id": publicID}).Warn("工作表中的注册码不存在，跳过")
			continue
		}
		if err != nil {
			return imported, fmt.Errorf("查询注册码失败: %w", err)
		}
		if lic.Status == model.LicenseStatusRevoked {
			continue
		}

		if err := RevokeLicense(ctx, store, &lic, revokedBy, "imported from sheet"); err != nil {
			return imported, err
		}
		imported++
	}

	logrus.WithField("count", imported).Info("已从Google Sheet导入吊销项")
	return imported, nil
}
