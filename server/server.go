// Package server is the HTTP transport for the matching service.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/config"
	"github.com/high-horse/fingerprint-server/ratelimit"
	"github.com/high-horse/fingerprint-server/service"
)

type Option func(*Server)

// WithLimiter enables per client rate limiting.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

type Server struct {
	app     *fiber.App
	cfg     config.Server
	log     *logrus.Logger
	svc     *service.Service
	limiter *ratelimit.Limiter
	now     func() time.Time
}

func New(cfg config.Server, log *logrus.Logger, svc *service.Service, opts ...Option) *Server {
	s := &Server{
		cfg: cfg,
		log: log,
		svc: svc,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "fingerprint-server",
		BodyLimit:             cfg.BodyLimitMB * 1024 * 1024,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		StrictRouting:         true,
		CaseSensitive:         true,
		DisableStartupMessage: true,
		JSONEncoder:           jsoniter.Marshal,
		JSONDecoder:           jsoniter.Unmarshal,
		ErrorHandler:          errorHandler(log),
	})

	s.app.Use(requestID())
	s.app.Use(accessLog(log))
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))
	if s.limiter != nil {
		s.app.Use(rateLimit(s.limiter))
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Post("/match", bind(s.svc.Match))
	s.app.Post("/verify", bind(s.svc.Verify))
	s.app.Post("/verify-quality", bind(s.svc.VerifyQuality))
	s.app.Post("/extract-features", bind(s.svc.Features))
	s.app.Post("/extract", bind(s.svc.Extract))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":           "ok",
		"time":             s.now().UTC(),
		"template_version": fingerprint.TemplateVersion,
	})
}

// App exposes the underlying fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	s.log.WithField("addr", s.cfg.Addr).Info("server starting")
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// bind decodes the JSON body into Req, runs fn with the request context and
// writes its result.
func bind[Req, Resp any](fn func(context.Context, Req) (Resp, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
		}
		resp, err := fn(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}
