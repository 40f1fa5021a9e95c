package detector

import (
	"context"

	"github.com/disintegration/imaging"

	"VisionStream/internal/entity"
	"VisionStream/pkg/imagecodec"
)

// SimpleDetector finds dark objects: connected components (4-neighbour) of pixels
// whose luminance is below threshold. threshold is between 0 and 256, 256 being
// white. It needs no model file, which makes it the default local backend.
type SimpleDetector struct {
	threshold float64
	minArea   int
}

func NewSimpleDetector(threshold float64, minArea int) *SimpleDetector {
	if minArea < 1 {
		minArea = 1
	}
	return &SimpleDetector{threshold: threshold, minArea: minArea}
}

func (d *SimpleDetector) Names() []string {
	return []string{"object"}
}

// Detect scans row-major, so components are reported top to bottom by their first
// pixel. Confidence is the fraction of the bounding box the component fills.
func (d *SimpleDetector) Detect(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
	gray := imaging.Grayscale(img.ToNRGBA())
	w, h := img.Width, img.Height

	dark := func(x, y int) bool {
		return float64(gray.Pix[y*gray.Stride+x*4]) < d.threshold
	}

	seen := make([]bool, w*h)
	queue := make([]int, 0, 64)
	detections := []entity.RawDetection{}

	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < w; x++ {
			idx := y*w + x
			if seen[idx] {
				continue
			}
			seen[idx] = true
			if !dark(x, y) {
				continue
			}

			x0, y0, x1, y1 := x, y, x, y
			area := 0
			queue = append(queue[:0], idx)
			for head := 0; head < len(queue); head++ {
				px, py := queue[head]%w, queue[head]/w
				area++
				if px < x0 {
					x0 = px
				}
				if px > x1 {
					x1 = px
				}
				if py < y0 {
					y0 = py
				}
				if py > y1 {
					y1 = py
				}
				for _, n := range [4][2]int{{px, py - 1}, {px, py + 1}, {px - 1, py}, {px + 1, py}} {
					nx, ny := n[0], n[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nIdx := ny*w + nx
					if seen[nIdx] {
						continue
					}
					seen[nIdx] = true
					if dark(nx, ny) {
						queue = append(queue, nIdx)
					}
				}
			}

			if area < d.minArea {
				continue
			}
			boxArea := (x1 - x0 + 1) * (y1 - y0 + 1)
			detections = append(detections, entity.RawDetection{
				ClassIndex: 0,
				Confidence: float64(area) / float64(boxArea),
				BBox:       [4]float64{float64(x0), float64(y0), float64(x1 + 1), float64(y1 + 1)},
			})
		}
	}

	return detections, nil
}
