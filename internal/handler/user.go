package handler

import (
	"errors"

	"machine-license/internal/database"
	"machine-license/internal/model"
	"machine-license/internal/service"
	"machine-license/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" validate:"required,email,max=255"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=72"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// HandleUserRegister 注册控制台用户，新用户只能管理自己签发的注册码
func HandleUserRegister(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if ok, err := parseAndValidate(c, input); !ok {
		return err
	}

	user, err := service.RegisterUser(c.UserContext(), input.Username, input.Password, input.Email)
	if errors.Is(err, service.ErrUserExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "用户名或邮箱已被注册",
		})
	}
	if err != nil {
		logrus.WithError(err).Error("用户注册失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "用户创建失败",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// HandleUserLogin 登录并返回会话令牌
func HandleUserLogin(c *fiber.Ctx) error {
	input := new(LoginInput)
	if ok, err := parseAndValidate(c, input); !ok {
		return err
	}

	user, err := service.Authenticate(c.UserContext(), input.Username, input.Password, c.IP(), c.Get("User-Agent"))
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "用户名或密码错误",
		})
	case errors.Is(err, service.ErrUserDisabled):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "账户已停用",
		})
	case err != nil:
		logrus.WithError(err).Error("登录失败")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "登录失败",
		})
	}

	token, err := util.GenerateToken(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "令牌生成失败",
		})
	}
	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// HandleUserInfo 当前登录用户
func HandleUserInfo(c *fiber.Ctx) error {
	var user model.User
	if err := database.DB.First(&user, c.Locals("userID").(uint)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "用户不存在",
		})
	}
	return c.JSON(user)
}

// HandleChangePassword 修改当前用户的密码
func HandleChangePassword(c *fiber.Ctx) error {
	input := new(ChangePasswordInput)
	if ok, err := parseAndValidate(c, input); !ok {
		return err
	}

	err := service.ChangePassword(c.UserContext(), c.Locals("userID").(uint), input.CurrentPassword, input.NewPassword)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "当前密码错误",
		})
	case errors.Is(err, service.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "用户不存在",
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "密码更新失败",
		})
	}
	return c.JSON(fiber.Map{
		"message": "密码更新成功",
	})
}

// HandleGetLoginLogs 当前用户的登录记录
func HandleGetLoginLogs(c *fiber.Ctx) error {
	page, size, ok, err := parsePage(c)
	if !ok {
		return err
	}
	logs, total, err := service.LoginLogs(c.UserContext(), c.Locals("userID").(uint), page, size)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取登录日志失败",
		})
	}
	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
		"size":  size,
	})
}
