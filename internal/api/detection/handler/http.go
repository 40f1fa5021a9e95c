package detectionHandler

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"VisionStream/internal/api/detection"
	detectionService "VisionStream/internal/api/detection/service"
	"VisionStream/internal/middleware"
	contextPkg "VisionStream/pkg/context"
	"VisionStream/pkg/utils"
)

const (
	sessionIDLocal = "session_id"
	requestIDLocal = "request_id"
	streamCtxLocal = "stream_ctx"
)

type StreamConfig struct {
	ReadTimeout     time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	// Comma separated; "*" accepts any Origin.
	AllowOrigins string
}

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	utils            utils.IUtils
	cfg              StreamConfig
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	utils utils.IUtils,
	cfg StreamConfig,
) *DetectionHandler {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 8 << 20
	}
	if cfg.AllowOrigins == "" {
		cfg.AllowOrigins = "*"
	}

	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		utils:            utils,
		cfg:              cfg,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	stream := srv.Group("/detection")
	stream.Use("/ws", h.middleware.NewRateLimiter, h.wsMiddleware)
	stream.Get("/ws", h.streamHandler())
}

// StartAlias mounts the stream on the short /ws path used by existing clients.
func (h *DetectionHandler) StartAlias(root fiber.Router) {
	root.Use("/ws", h.middleware.NewRateLimiter, h.wsMiddleware)
	root.Get("/ws", h.streamHandler())
}

func (h *DetectionHandler) wsMiddleware(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return detection.ErrUpgradeRequired
	}

	c.Locals(sessionIDLocal, h.utils.NewSessionID())
	c.Locals(requestIDLocal, h.middleware.GetRequestID(c))
	c.Locals(streamCtxLocal, contextPkg.FromFiberCtx(c))

	return c.Next()
}

func (h *DetectionHandler) streamHandler() fiber.Handler {
	return websocket.New(h.handleStream, websocket.Config{
		Origins:          h.origins(),
		HandshakeTimeout: 10 * time.Second,
	})
}

func (h *DetectionHandler) origins() []string {
	var origins []string
	for _, origin := range strings.Split(h.cfg.AllowOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
