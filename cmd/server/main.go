package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"machine-license/internal/config"
	"machine-license/internal/database"
	"machine-license/internal/handler"
	"machine-license/internal/license"
	"machine-license/internal/service"
	"machine-license/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("加载配置失败")
	}
	setupLogging(cfg.Log)

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("服务退出")
	}
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("未知的日志级别，使用 info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func run(cfg *config.Config) error {
	util.InitJWT(cfg.JWTSecret, cfg.JWTTTL)

	// 初始化数据库
	if err := database.InitDB(cfg.DBPath()); err != nil {
		return err
	}
	defer database.Close()

	generated, err := service.EnsureAdmin(context.Background(), cfg.AdminPassword)
	if err != nil {
		return err
	}
	if generated != "" {
		log.WithField("password", generated).Warn("已创建管理员账户 admin，请登录后修改密码")
	}

	signer, err := loadSigner(cfg.Signing)
	if err != nil {
		return err
	}
	trusted, err := license.LoadPublicKeys(cfg.Signing.TrustedKeyFiles...)
	if err != nil {
		signer.Close()
		return err
	}

	ctx := context.Background()
	store, closeStore, err := newRevocationStore(ctx, cfg.Revocation)
	if err != nil {
		signer.Close()
		return err
	}
	defer closeStore()

	authority, err := license.NewAuthority(cfg.LicensePolicy(), signer,
		license.WithTrustedKeys(trusted...),
		license.WithRevocationChecker(store),
	)
	if err != nil {
		signer.Close()
		return err
	}
	// 退出时清零私钥
	defer authority.Close()
	handler.InitLicenseService(authority, store)

	log.WithFields(log.Fields{
		"key_id":       authority.KeyID(),
		"trusted_keys": len(trusted),
		"revocation":   cfg.Revocation.Backend,
	}).Info("签发服务已就绪")

	// 初始化 Google Sheet 同步
	sheetSync, err := handler.InitSheetSync(cfg.Sheets.Enable, cfg.Sheets.CredentialFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
	if err != nil {
		return err
	}
	if sheetSync != nil {
		if n, err := sheetSync.ImportRevocations(ctx, store, 0); err != nil {
			log.WithError(err).Warn("从Google Sheet导入吊销项失败")
		} else if n > 0 {
			log.WithField("count", n).Info("已从Google Sheet导入吊销项")
		}
		// 全量同步放在后台，不阻塞启动
		go func() {
			if n, err := sheetSync.SyncAll(ctx); err != nil {
				log.WithError(err).Warn("全量同步到Google Sheet失败")
			} else {
				log.WithField("count", n).Info("已全量同步到Google Sheet")
			}
		}()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// 中间件
	app.Use(logger.New())
	app.Use(cors.New())

	handler.SetupRoutes(app, handler.RouteOptions{
		VerifyRateLimit: cfg.VerifyRateLimit,
		VerifyWindow:    cfg.VerifyWindow,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("正在关闭服务")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Warn("关闭服务失败")
		}
	}()

	return app.Listen(cfg.ListenAddr)
}

// loadSigner 加载签发私钥，配置允许时在文件不存在的情况下生成新密钥
func loadSigner(cfg config.SigningConfig) (*license.Signer, error) {
	signer, err := license.LoadSigner(cfg.KeyFile)
	if err == nil {
		return signer, nil
	}
	if !errors.Is(err, os.ErrNotExist) || !cfg.Generate {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.KeyFile), 0o700); err != nil {
		return nil, err
	}
	pubPath := license.PublicKeyPath(cfg.KeyFile)
	signer, err = license.GenerateKeyFiles(cfg.KeyFile, pubPath)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"key_file":   cfg.KeyFile,
		"public_key": pubPath,
		"key_id":     license.KeyID(signer.Public()),
	}).Warn("已生成新的签发密钥")
	return signer, nil
}

func newRevocationStore(ctx context.Context, cfg config.RevocationConfig) (service.RevocationStore, func(), error) {
	db := service.NewDBRevocationList()
	if cfg.Backend != "redis" {
		return db, func() {}, nil
	}

	rdb, err := service.NewRedisRevocationList(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	if err != nil {
		return nil, nil, err
	}
	if err := rdb.Ping(ctx); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	cached := service.NewCachedRevocationList(db, rdb)
	if err := cached.Warm(ctx, time.Now()); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	return cached, func() { rdb.Close() }, nil
}
