package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"marketplace/internal/apperror"
	"marketplace/internal/pagination"
)

// Response is the envelope of every JSON answer.
type Response struct {
	Success  bool                 `json:"success"`
	Message  string               `json:"message,omitempty"`
	Data     any                  `json:"data,omitempty"`
	Metadata *pagination.Metadata `json:"metadata,omitempty"`
}

func respond(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Success: true, Message: message, Data: data})
}

func respondPage(c *fiber.Ctx, message string, data any, meta pagination.Metadata) error {
	return c.Status(fiber.StatusOK).JSON(Response{Success: true, Message: message, Data: data, Metadata: &meta})
}

// bind parses the JSON body into dst and runs its validate tags.
func bind(c *fiber.Ctx, v *validator.Validate, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Invalid("Invalid request body")
	}
	return validate(v, dst)
}

func validate(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	details := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		details[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return apperror.Validation(details)
}

func pageParams(c *fiber.Ctx, defaultLimit int) pagination.Params {
	return pagination.Parse(c.Query("page"), c.Query("limit"), pagination.Options{
		DefaultLimit: defaultLimit,
		MaxLimit:     pagination.MaxLimit,
	})
}
