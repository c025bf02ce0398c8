package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"machine-license/internal/license"
)

// Config 控制台后端配置，全部来自 LICENSE_ 前缀的环境变量
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":80"`
	DataDir    string `envconfig:"DATA_DIR" default:"data"`
	DBFile     string `envconfig:"DB_FILE" default:"license.db"`

	// 会话签名密钥，没有默认值
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	// 首次启动创建的管理员密码，为空时随机生成并打印到日志
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	Signing    SigningConfig
	Policy     PolicyConfig
	Revocation RevocationConfig
	Sheets     SheetsConfig
	Log        LogConfig

	VerifyRateLimit int           `envconfig:"VERIFY_RATE_LIMIT" default:"30"`
	VerifyWindow    time.Duration `envconfig:"VERIFY_WINDOW" default:"1m"`
}

type SigningConfig struct {
	// 签发私钥（PKCS#8 PEM）
	KeyFile string `envconfig:"KEY_FILE" default:"data/signing.pem"`
	// 轮换前的旧公钥，逗号分隔
	TrustedKeyFiles []string `envconfig:"TRUSTED_KEY_FILES"`
	// 私钥不存在时自动生成
	Generate bool `envconfig:"GENERATE" default:"false"`
}

type PolicyConfig struct {
	MinDays        int  `envconfig:"MIN_DAYS" default:"1"`
	MaxDays        int  `envconfig:"MAX_DAYS" default:"3650"`
	MaxMetadataLen int  `envconfig:"MAX_METADATA_LEN" default:"64"`
	Strict         bool `envconfig:"STRICT" default:"false"`
}

type RevocationConfig struct {
	// db 或 redis
	Backend       string `envconfig:"BACKEND" default:"db"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"license:revoked:"`
}

type SheetsConfig struct {
	Enable         bool   `envconfig:"ENABLE" default:"false"`
	CredentialFile string `envconfig:"CREDENTIAL_FILE"`
	SpreadsheetID  string `envconfig:"SPREADSHEET_ID"`
	SheetName      string `envconfig:"SHEET_NAME" default:"Licenses"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

// Load 读取环境变量并校验
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LICENSE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置
func (c *Config) Validate() error {
	if err := checkJWTSecret(c.JWTSecret); err != nil {
		return err
	}
	if c.Signing.KeyFile == "" {
		return fmt.Errorf("config: signing key file is required")
	}
	if err := c.LicensePolicy().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Revocation.Backend {
	case "db":
	case "redis":
		if c.Revocation.RedisAddr == "" {
			return fmt.Errorf("config: redis revocation backend requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown revocation backend %q", c.Revocation.Backend)
	}
	if c.Sheets.Enable && (c.Sheets.CredentialFile == "" || c.Sheets.SpreadsheetID == "") {
		return fmt.Errorf("config: sheets sync requires credential file and spreadsheet id")
	}
	if c.VerifyRateLimit < 0 {
		return fmt.Errorf("config: verify rate limit must not be negative")
	}
	return nil
}

// minJWTSecretLen HS256 密钥的最小长度
const minJWTSecretLen = 16

var placeholderSecrets = map[string]bool{
	"change-me": true,
	"changeme":  true,
	"secret":    true,
}

func checkJWTSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("config: JWT secret is required")
	}
	if placeholderSecrets[strings.ToLower(secret)] {
		return fmt.Errorf("config: JWT secret is a placeholder value")
	}
	if len(secret) < minJWTSecretLen {
		return fmt.Errorf("config: JWT secret must be at least %d bytes", minJWTSecretLen)
	}
	return nil
}

// DBPath 数据库文件路径
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.DBFile) {
		return c.DBFile
	}
	return filepath.Join(c.DataDir, c.DBFile)
}

// LicensePolicy 转换为签发策略
func (c *Config) LicensePolicy() license.Policy {
	return license.Policy{
		MinDays:        c.Policy.MinDays,
		MaxDays:        c.Policy.MaxDays,
		MaxMetadataLen: c.Policy.MaxMetadataLen,
		Strict:         c.Policy.Strict,
	}
}
