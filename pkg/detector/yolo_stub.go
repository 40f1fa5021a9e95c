//go:build !gocv
// +build !gocv

package detector

import (
	"context"
	"errors"

	"VisionStream/internal/entity"
	"VisionStream/pkg/imagecodec"
)

var errNoGoCV = errors.New("gocv build tag is not enabled")

// YOLODetector is unavailable without OpenCV; build with -tags gocv.
type YOLODetector struct{}

// NewYOLODetector always fails so that startup aborts instead of serving without a model.
func NewYOLODetector(cfg YOLOConfig) (*YOLODetector, error) {
	return nil, errNoGoCV
}

func (d *YOLODetector) Detect(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
	return nil, errNoGoCV
}

func (d *YOLODetector) Close() error {
	return nil
}
