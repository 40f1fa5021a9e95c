package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"

	detectionHandler "VisionStream/internal/api/detection/handler"
	detectionService "VisionStream/internal/api/detection/service"
	"VisionStream/internal/middleware"
	"VisionStream/pkg/utils"
)

const healthMessage = "Detection stream server is running"

type ServerOption func(*Server) error

type Server struct {
	engine     *fiber.App
	log        *logrus.Logger
	middleware middleware.Middleware
	validator  *validator.Validate
	utils      utils.IUtils
	appConfig  *AppConfig
	detector   detectionService.Inferer
	handlers   []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.appConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if server.detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.utils == nil {
		server.utils = utils.New()
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithAppConfig(cfg *AppConfig) ServerOption {
	return func(s *Server) error {
		if cfg == nil {
			return fmt.Errorf("app config is nil")
		}
		s.appConfig = cfg
		return nil
	}
}

func WithDetector(detector detectionService.Inferer) ServerOption {
	return func(s *Server) error {
		s.detector = detector
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

// RegisterHandler mounts middleware, the liveness route and the stream routes.
func (s *Server) RegisterHandler() {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins: s.appConfig.CORSAllowOrigins,
	}))

	s.setupHealthCheck()

	// Detection
	detectionServices := detectionService.NewDetectionService(s.log, s.detector,
		detectionService.WithMaxImagePixels(s.appConfig.MaxImagePixels),
	)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.utils, detectionHandler.StreamConfig{
		ReadTimeout:     s.appConfig.ReadTimeout,
		MaxMessageBytes: s.appConfig.MaxMessageBytes,
		AllowOrigins:    s.appConfig.CORSAllowOrigins,
	})
	detectionHandlers.StartAlias(s.engine)

	s.handlers = append(s.handlers, detectionHandlers)

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}
}

func (s *Server) Run() error {
	addr := s.appConfig.Address()
	s.log.WithField("addr", addr).Info("Listening for stream clients")

	return s.engine.Listen(addr)
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.engine.ShutdownWithTimeout(timeout)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.SendString(healthMessage)
	})
}
