package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"VisionStream/pkg/detector"
	websocketPkg "VisionStream/pkg/websocket"
)

// NewCapability builds the detection backend selected by cfg. The returned func
// releases whatever the backend holds and is never nil on success.
func NewCapability(logger *logrus.Logger, cfg *AppConfig) (detector.Capability, func(), error) {
	switch cfg.DetectorBackend {
	case BackendSimple:
		return detector.NewSimpleDetector(cfg.LuminanceThreshold, cfg.SimpleMinArea), func() {}, nil

	case BackendYOLO:
		yolo, err := detector.NewYOLODetector(detector.YOLOConfig{
			ModelPath:           cfg.ModelPath,
			InputSize:           cfg.InputSize,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			IoUThreshold:        cfg.IoUThreshold,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load yolo model: %w", err)
		}
		return yolo, func() { _ = yolo.Close() }, nil

	case BackendRemote:
		client, err := websocketPkg.NewInferenceClient(logger, websocketPkg.Options{
			URL:         cfg.InferenceURL,
			ReadTimeout: remoteReadTimeout(cfg),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reach inference service: %w", err)
		}
		return client, client.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown detector backend %q", cfg.DetectorBackend)
}

func remoteReadTimeout(cfg *AppConfig) time.Duration {
	if cfg.InferenceTimeout > 0 {
		return cfg.InferenceTimeout
	}
	return 10 * time.Second
}

// NewDetector wires the capability to its label table.
func NewDetector(logger *logrus.Logger, capability detector.Capability, cfg *AppConfig) (*detector.Adapter, error) {
	labels, err := detector.ResolveLabels(capability, cfg.LabelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"backend": cfg.DetectorBackend,
		"classes": labels.Names(),
	}).Info("Model loaded with classes")

	return detector.NewAdapter(capability, labels, detector.Options{
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.InferenceTimeout,
	})
}
