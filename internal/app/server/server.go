package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerForm/internal/app/service"
	inthttp "github.com/sifan077/PowerForm/internal/http/handler"
	"github.com/sifan077/PowerForm/internal/http/middleware"
	"go.uber.org/zap"
)

const (
	bodyLimit    = 256 << 10
	readTimeout  = 10 * time.Second
	writeTimeout = 15 * time.Second
)

// Dependencies bundles the services and infrastructure the HTTP server routes to.
type Dependencies struct {
	Logger   *zap.Logger
	Issuer   service.TokenIssuer
	Resolver service.LinkResolver
	Recorder service.ResponseRecorder
	Health   inthttp.Pinger

	// RateLimiter throttles the public token routes. Nil disables throttling.
	RateLimiter middleware.RateLimitStore
	RateLimit   middleware.RateLimitConfig

	// AdminSecret signs operator tokens. The /api routes are not mounted when empty.
	AdminSecret []byte
	AllowOrigin string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "PowerForm",
		BodyLimit:             bodyLimit,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(deps.Logger),
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS(s.deps.AllowOrigin))

	formHandler := inthttp.NewFormHandler(inthttp.FormDeps{
		Logger:   s.deps.Logger,
		Resolver: s.deps.Resolver,
		Recorder: s.deps.Recorder,
		Health:   s.deps.Health,
	})
	formHandler.RegisterHealth(s.app)

	if s.deps.RateLimiter != nil {
		s.app.Use("/q", middleware.RateLimit(s.deps.RateLimiter, s.deps.RateLimit, s.deps.Logger))
	}
	formHandler.Register(s.app)

	if len(s.deps.AdminSecret) == 0 {
		s.deps.Logger.Warn("admin secret not configured; operator API disabled")
		return
	}
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:   s.deps.Logger,
		Issuer:   s.deps.Issuer,
		Recorder: s.deps.Recorder,
	})
	apiHandler.Register(s.app, middleware.AdminAuth(s.deps.AdminSecret))
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("unhandled request error",
				zap.Error(err),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
			)
			return c.Status(code).JSON(fiber.Map{"error": "internal server error"})
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
