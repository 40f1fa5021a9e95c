package detector

import (
	"image"

	"VisionStream/internal/entity"
)

// YOLOConfig holds the knobs of the gocv-backed YOLO capability.
type YOLOConfig struct {
	ModelPath           string
	InputSize           int
	ConfidenceThreshold float64
	IoUThreshold        float64
}

func (c YOLOConfig) withDefaults() YOLOConfig {
	if c.InputSize <= 0 {
		c.InputSize = 640
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.25
	}
	if c.IoUThreshold <= 0 {
		c.IoUThreshold = 0.45
	}
	return c
}

// decodeYOLOOutput reads a YOLOv8 head laid out as [4+classes][count] (cx, cy, w, h
// then one score per class, candidate-major within each row). Candidates whose best
// class score is below conf are skipped; boxes are scaled by sx, sy back to source
// pixels. boxes and scores are the NMS inputs for the parallel candidates slice.
func decodeYOLOOutput(data []float32, attrs, count int, sx, sy float64, conf float32) ([]image.Rectangle, []float32, []entity.RawDetection) {
	boxes := make([]image.Rectangle, 0, 64)
	scores := make([]float32, 0, 64)
	candidates := make([]entity.RawDetection, 0, 64)

	for i := 0; i < count; i++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < attrs; c++ {
			if s := data[c*count+i]; s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 || bestScore < conf {
			continue
		}

		cx, cy := float64(data[i]), float64(data[count+i])
		w, h := float64(data[2*count+i]), float64(data[3*count+i])
		x1, y1 := (cx-w/2)*sx, (cy-h/2)*sy
		x2, y2 := (cx+w/2)*sx, (cy+h/2)*sy

		boxes = append(boxes, image.Rect(int(x1), int(y1), int(x2), int(y2)))
		scores = append(scores, bestScore)
		candidates = append(candidates, entity.RawDetection{
			ClassIndex: best,
			Confidence: float64(bestScore),
			BBox:       [4]float64{x1, y1, x2, y2},
		})
	}

	return boxes, scores, candidates
}
