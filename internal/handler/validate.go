package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误信息使用 JSON 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseAndValidate 解析请求体并校验，失败时已写入 400 响应
func parseAndValidate(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "无效的输入数据",
		})
	}
	return validateInput(c, out)
}

// parseQuery 解析查询参数并校验
func parseQuery(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.QueryParser(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "无效的查询参数",
		})
	}
	return validateInput(c, out)
}

// pageQuery 列表接口的分页参数
type pageQuery struct {
	Page     int `query:"page" json:"page" validate:"omitempty,gte=1"`
	PageSize int `query:"page_size" json:"page_size" validate:"omitempty,gte=1,lte=100"`
}

func (q *pageQuery) page() int {
	if q.Page < 1 {
		return 1
	}
	return q.Page
}

func (q *pageQuery) size() int {
	if q.PageSize < 1 {
		return 10
	}
	return q.PageSize
}

// parsePage 读取分页参数，未提供时第 1 页每页 10 条
func parsePage(c *fiber.Ctx) (page, size int, ok bool, err error) {
	q := new(pageQuery)
	if ok, err := parseQuery(c, q); !ok {
		return 0, 0, false, err
	}
	return q.page(), q.size(), true, nil
}

func validateInput(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "无效的输入数据",
			})
		}
		fields := make([]fiber.Map, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fiber.Map{
				"field":   fe.Field(),
				"message": formatValidationError(fe),
			})
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "输入数据校验失败",
			"errors": fields,
		})
	}
	return true, nil
}

func formatValidationError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
