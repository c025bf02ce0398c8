package handler

import (
	"machine-license/internal/service"

	"github.com/gofiber/fiber/v2"
)

type logQuery struct {
	UserID   uint   `query:"user_id" json:"user_id"`
	Action   string `query:"action" json:"action" validate:"omitempty,oneof=license.issue license.revoke license.delete"`
	TargetID string `query:"target_id" json:"target_id" validate:"omitempty,max=64"`
}

// HandleGetLogs 管理员查看操作日志，可按用户、动作和注册码编号筛选
func HandleGetLogs(c *fiber.Ctx) error {
	q := new(logQuery)
	if ok, err := parseQuery(c, q); !ok {
		return err
	}
	return respondLogs(c, service.OperationLogFilter{
		UserID:   q.UserID,
		Action:   q.Action,
		TargetID: q.TargetID,
	})
}

// HandleGetUserLogs 当前用户自己的操作日志
func HandleGetUserLogs(c *fiber.Ctx) error {
	q := new(logQuery)
	if ok, err := parseQuery(c, q); !ok {
		return err
	}
	return respondLogs(c, service.OperationLogFilter{
		UserID:   c.Locals("userID").(uint),
		Action:   q.Action,
		TargetID: q.TargetID,
	})
}

func respondLogs(c *fiber.Ctx, filter service.OperationLogFilter) error {
	page, size, ok, err := parsePage(c)
	if !ok {
		return err
	}
	logs, total, err := service.QueryOperationLogs(c.UserContext(), filter, page, size)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取日志失败",
		})
	}
	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
		"size":  size,
	})
}
