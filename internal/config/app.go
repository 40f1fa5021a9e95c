package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"VisionStream/pkg/imagecodec"
)

const (
	BackendSimple = "simple"
	BackendYOLO   = "yolo"
	BackendRemote = "remote"
)

// AppConfig is everything the process reads from its environment.
type AppConfig struct {
	Host             string `validate:"required"`
	Port             int    `validate:"min=1,max=65535"`
	CORSAllowOrigins string `validate:"required"`

	DetectorBackend     string        `validate:"oneof=simple yolo remote"`
	ModelPath           string        `validate:"required_if=DetectorBackend yolo"`
	LabelsPath          string        `validate:"omitempty,file"`
	InferenceURL        string        `validate:"required_if=DetectorBackend remote,omitempty,url"`
	InputSize           int           `validate:"min=32,max=4096"`
	ConfidenceThreshold float64       `validate:"gt=0,lte=1"`
	IoUThreshold        float64       `validate:"gt=0,lte=1"`
	LuminanceThreshold  float64       `validate:"gte=0,lte=256"`
	SimpleMinArea       int           `validate:"min=1"`
	MaxConcurrent       int           `validate:"min=0"`
	InferenceTimeout    time.Duration `validate:"min=0"`

	ReadTimeout     time.Duration `validate:"min=1s"`
	MaxMessageBytes int64         `validate:"min=1024"`
	MaxImagePixels  int           `validate:"min=1"`
}

func (c *AppConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadAppConfig reads the environment, fills defaults and validates the result.
func LoadAppConfig(validate *validator.Validate) (*AppConfig, error) {
	var err error
	cfg := &AppConfig{
		Host:             getEnv("APP_HOST", "0.0.0.0"),
		CORSAllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
		DetectorBackend:  getEnv("DETECTOR_BACKEND", BackendSimple),
		ModelPath:        os.Getenv("MODEL_PATH"),
		LabelsPath:       os.Getenv("LABELS_PATH"),
		InferenceURL:     os.Getenv("INFERENCE_URL"),
	}

	if cfg.Port, err = getInt("APP_PORT", 5000); err != nil {
		return nil, err
	}
	if cfg.InputSize, err = getInt("INFERENCE_INPUT_SIZE", 640); err != nil {
		return nil, err
	}
	if cfg.ConfidenceThreshold, err = getFloat("INFERENCE_CONFIDENCE_THRESHOLD", 0.25); err != nil {
		return nil, err
	}
	if cfg.IoUThreshold, err = getFloat("INFERENCE_IOU_THRESHOLD", 0.45); err != nil {
		return nil, err
	}
	if cfg.LuminanceThreshold, err = getFloat("SIMPLE_LUMINANCE_THRESHOLD", 64); err != nil {
		return nil, err
	}
	if cfg.SimpleMinArea, err = getInt("SIMPLE_MIN_AREA", 16); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrent, err = getInt("INFERENCE_MAX_CONCURRENT", 0); err != nil {
		return nil, err
	}
	if cfg.InferenceTimeout, err = getDuration("INFERENCE_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout, err = getDuration("STREAM_READ_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	maxBytes, err := getInt("STREAM_MAX_MESSAGE_BYTES", 8<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxMessageBytes = int64(maxBytes)
	if cfg.MaxImagePixels, err = getInt("STREAM_MAX_IMAGE_PIXELS", imagecodec.DefaultMaxPixels); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
