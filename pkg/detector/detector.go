// Package detector wraps an opaque object-detection capability and converts what it
// reports into wire-level detections.
//
// The capability is built once at startup and shared read-only by every stream
// session. The Adapter resolves class indices through a fixed label table, rounds
// confidences for transmission and leaves bounding boxes exactly as reported.
package detector

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"VisionStream/internal/entity"
	"VisionStream/pkg/imagecodec"
)

// Capability is the black-box model: given an image, return raw detections.
type Capability interface {
	Detect(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error)
}

// CapabilityFunc adapts a plain function to Capability.
type CapabilityFunc func(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error)

func (f CapabilityFunc) Detect(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
	return f(ctx, img)
}

// Named is implemented by capabilities that carry their own class names.
type Named interface {
	Names() []string
}

// InferError wraps any failure of the capability call.
type InferError struct {
	Cause error
}

func (e *InferError) Error() string {
	return "inference failed: " + e.Cause.Error()
}

func (e *InferError) Unwrap() error {
	return e.Cause
}

// Options tune how the Adapter calls the capability. Zero values disable both limits.
type Options struct {
	// MaxConcurrent bounds simultaneous capability calls across all sessions.
	MaxConcurrent int
	// Timeout abandons a pending result; the capability call itself is not interrupted
	// unless it honours ctx.
	Timeout time.Duration
}

type Adapter struct {
	capability Capability
	labels     Labels
	sem        *semaphore.Weighted
	timeout    time.Duration
}

func NewAdapter(capability Capability, labels Labels, opts Options) (*Adapter, error) {
	if capability == nil {
		return nil, errors.New("adapter must have a detection capability")
	}

	a := &Adapter{
		capability: capability,
		labels:     labels,
		timeout:    opts.Timeout,
	}
	if opts.MaxConcurrent > 0 {
		a.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return a, nil
}

func (a *Adapter) Labels() Labels {
	return a.labels
}

// Infer runs the capability once and returns detections in the order it reported
// them. The result is never nil on success.
func (a *Adapter) Infer(ctx context.Context, img *imagecodec.Image) ([]entity.Detection, error) {
	if img == nil || len(img.Pix) != img.Width*img.Height*3 {
		return nil, &InferError{Cause: errors.New("invalid image buffer shape")}
	}

	raw, err := a.detect(ctx, img)
	if err != nil {
		return nil, &InferError{Cause: err}
	}

	detections := make([]entity.Detection, 0, len(raw))
	for _, r := range raw {
		label, err := a.labels.Name(r.ClassIndex)
		if err != nil {
			return nil, &InferError{Cause: err}
		}
		detections = append(detections, entity.Detection{
			Class:      label,
			Confidence: RoundConfidence(r.Confidence),
			BBox:       r.BBox,
		})
	}

	return detections, nil
}

type detectResult struct {
	raw []entity.RawDetection
	err error
}

func (a *Adapter) detect(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
	if a.sem != nil {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Wrap(err, "waiting for inference slot")
		}
	}

	if a.timeout <= 0 {
		defer a.release()
		return a.call(ctx, img)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan detectResult, 1)
	go func() {
		defer a.release()
		raw, err := a.call(ctx, img)
		done <- detectResult{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "no result within %s", a.timeout)
	}
}

func (a *Adapter) release() {
	if a.sem != nil {
		a.sem.Release(1)
	}
}

func (a *Adapter) call(ctx context.Context, img *imagecodec.Image) (raw []entity.RawDetection, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = errors.Errorf("detection capability panicked: %v", r)
		}
	}()
	return a.capability.Detect(ctx, img)
}

// RoundConfidence rounds to 3 decimal places, going by the exact binary value:
// 0.1235 is stored just below the tie and becomes 0.123.
func RoundConfidence(c float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(c, 'f', 3, 64), 64)
	if err != nil {
		return c
	}
	return r
}
