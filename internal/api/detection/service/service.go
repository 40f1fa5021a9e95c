package detectionService

import (
	"context"

	"github.com/sirupsen/logrus"

	"VisionStream/internal/entity"
	"VisionStream/pkg/imagecodec"
)

// Emitter is where a frame's single outcome event goes.
type Emitter interface {
	Emit(event string, data interface{}) error
}

// Inferer runs the detection model on one decoded image.
type Inferer interface {
	Infer(ctx context.Context, img *imagecodec.Image) ([]entity.Detection, error)
}

type IDetectionService interface {
	HandleFrame(ctx context.Context, emitter Emitter, payload string)
}

type detectionService struct {
	log            *logrus.Logger
	detector       Inferer
	maxImagePixels int
}

type Option func(*detectionService)

// WithMaxImagePixels bounds the declared size of decoded frames.
func WithMaxImagePixels(n int) Option {
	return func(s *detectionService) {
		s.maxImagePixels = n
	}
}

func NewDetectionService(
	log *logrus.Logger,
	detector Inferer,
	opts ...Option,
) IDetectionService {
	s := &detectionService{
		log:            log,
		detector:       detector,
		maxImagePixels: imagecodec.DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
