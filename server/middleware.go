package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/high-horse/fingerprint-server/logging"
	"github.com/high-horse/fingerprint-server/ratelimit"
	"github.com/high-horse/fingerprint-server/service"
)

const requestIDLocal = "request_id"

var ErrTooManyRequests = fiber.NewError(fiber.StatusTooManyRequests, "too many requests")

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func errorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var se *service.Error
		var fe *fiber.Error
		switch {
		case errors.As(err, &se):
			code = se.Code
		case errors.As(err, &fe):
			code = fe.Code
		}
		msg := err.Error()
		if code == fiber.StatusInternalServerError {
			logging.Entry(c.UserContext(), log).WithFields(logging.Fields{
				"path":  c.Path(),
				"error": err.Error(),
			}).Error("request failed")
			msg = "internal server error"
		}
		return c.Status(code).JSON(ErrorResponse{Error: msg})
	}
}

// requestID reuses the caller's X-Request-ID or generates one, echoes it back
// and stores it in the request context for logging.
func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(requestIDLocal, id)
		c.Set(fiber.HeaderXRequestID, id)
		c.SetUserContext(logging.WithRequestID(c.UserContext(), id))
		return c.Next()
	}
}

// accessLog logs one line per request. Request bodies carry templates and
// images and are never logged.
func accessLog(log *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Resolve the error here so the logged status is the one sent.
		if err := c.Next(); err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		id, _ := c.Locals(requestIDLocal).(string)
		entry := log.WithFields(logging.Fields{
			"request_id":    id,
			"method":        c.Method(),
			"path":          c.Path(),
			"status":        status,
			"latency_ms":    time.Since(start).Milliseconds(),
			"ip":            c.IP(),
			"response_size": len(c.Response().Body()),
		})
		switch {
		case status >= 500:
			entry.Error("server error")
		case status >= 400:
			entry.Warn("client error")
		default:
			entry.Info("success")
		}
		return nil
	}
}

func rateLimit(l *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.IP()) {
			return ErrTooManyRequests
		}
		return c.Next()
	}
}
