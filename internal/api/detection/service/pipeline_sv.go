package detectionService

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"VisionStream/internal/api/detection"
	"VisionStream/internal/entity"
	contextPkg "VisionStream/pkg/context"
	"VisionStream/pkg/detector"
	"VisionStream/pkg/imagecodec"
	"VisionStream/pkg/log"
)

// HandleFrame decodes, infers and emits exactly one event for payload: either
// detections or error. Nothing it encounters closes the session.
func (s *detectionService) HandleFrame(ctx context.Context, emitter Emitter, payload string) {
	sessionID := contextPkg.GetSessionID(ctx)
	entry := log.WithSession(s.log, sessionID).WithField(log.RequestIDKey, contextPkg.GetRequestID(ctx))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			fault := fmt.Sprint(r)
			log.ErrorWithTraceID(entry, log.Fields{
				log.SessionIDKey: sessionID,
				log.RequestIDKey: contextPkg.GetRequestID(ctx),
				"fault":          fault,
				"stack":          string(debug.Stack()),
			}, "Recovered fault in frame pipeline")
			s.emit(ctx, entry, emitter, detection.EventError, detection.ErrorPayload{
				Message: "Internal error: " + fault,
			})
		}
	}()

	img, err := imagecodec.DecodeLimited(payload, s.maxImagePixels)
	if err != nil {
		entry.WithError(err).Warn("Frame decode failed")
		s.emit(ctx, entry, emitter, detection.EventError, detection.ErrorPayload{
			Message: "Invalid image data: " + err.Error(),
		})
		return
	}

	detections, err := s.detector.Infer(ctx, img)
	if err != nil {
		entry.WithError(err).Warn("Inference failed")
		s.emit(ctx, entry, emitter, detection.EventError, detection.ErrorPayload{
			Message: "Inference failed: " + inferCause(err),
		})
		return
	}

	if detections == nil {
		detections = []entity.Detection{}
	}
	s.emit(ctx, entry, emitter, detection.EventDetections, detection.DetectionsPayload{
		Detections: detections,
	})

	elapsed := time.Since(start)
	entry.WithFields(logrus.Fields{
		"latency_ms": elapsed.Milliseconds(),
		"count":      len(detections),
		"width":      img.Width,
		"height":     img.Height,
	}).Infof("Processed frame in %.3fs, %d detections", elapsed.Seconds(), len(detections))
}

func (s *detectionService) emit(ctx context.Context, entry *logrus.Entry, emitter Emitter, event string, data interface{}) {
	if ctx.Err() != nil {
		entry.WithField("event", event).Debug("Session gone, result discarded")
		return
	}

	if err := emitter.Emit(event, data); err != nil {
		entry.WithError(err).WithField("event", event).Warn("Could not emit event")
	}
}

func inferCause(err error) string {
	var inferErr *detector.InferError
	if errors.As(err, &inferErr) && inferErr.Cause != nil {
		return inferErr.Cause.Error()
	}
	return err.Error()
}
