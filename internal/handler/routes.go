package handler

import (
	"time"

	"machine-license/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteOptions 路由相关配置
type RouteOptions struct {
	// 每个 IP 在窗口内允许的校验次数，0 表示不限制
	VerifyRateLimit int
	VerifyWindow    time.Duration
}

// SetupRoutes 注册所有路由
func SetupRoutes(app *fiber.App, opts RouteOptions) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	// 用户路由
	users := api.Group("/users")
	users.Post("/register", HandleUserRegister)
	users.Post("/login", HandleUserLogin)
	users.Get("/info", middleware.Auth(), HandleUserInfo)
	users.Post("/change-password", middleware.Auth(), HandleChangePassword)
	users.Get("/login-logs", middleware.Auth(), HandleGetLoginLogs)

	// 操作日志
	logs := api.Group("/logs", middleware.Auth())
	logs.Get("/", middleware.AdminOnly(), HandleGetLogs)
	logs.Get("/me", HandleGetUserLogs)

	api.Get("/public-keys", HandlePublicKeys)
	api.Get("/revocations", middleware.Auth(), middleware.AdminOnly(), HandleListRevocations)

	// 注册码路由。校验接口不需要登录，按 IP 限流。
	licenses := api.Group("/licenses")
	verify := []fiber.Handler{}
	if opts.VerifyRateLimit > 0 {
		verify = append(verify, limiter.New(limiter.Config{
			Max:        opts.VerifyRateLimit,
			Expiration: opts.VerifyWindow,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "请求过于频繁",
				})
			},
		}))
	}
	licenses.Post("/verify", append(verify, HandleLicenseVerify)...)

	licenses.Post("/", middleware.Auth(), HandleLicenseCreate)
	licenses.Get("/", middleware.Auth(), HandleGetLicenses)
	licenses.Get("/statistics", middleware.Auth(), HandleLicenseStatistics)
	licenses.Get("/:id", middleware.Auth(), HandleGetLicense)
	licenses.Get("/:id/usage", middleware.Auth(), HandleLicenseUsage)
	licenses.Post("/:id/revoke", middleware.Auth(), HandleLicenseRevoke)
	licenses.Delete("/:id", middleware.Auth(), HandleLicenseDelete)
}
