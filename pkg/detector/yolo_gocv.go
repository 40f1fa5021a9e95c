//go:build gocv
// +build gocv

package detector

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"VisionStream/internal/entity"
	"VisionStream/pkg/imagecodec"
)

// YOLODetector runs an ONNX YOLOv8 export through the OpenCV DNN module.
type YOLODetector struct {
	// guards SetInput, Forward and the read of the output blob.
	mu            sync.Mutex
	net           gocv.Net
	inputSize     int
	confThreshold float32
	iouThreshold  float32
}

// NewYOLODetector loads the model weights. Any failure here is fatal for startup.
func NewYOLODetector(cfg YOLOConfig) (*YOLODetector, error) {
	cfg = cfg.withDefaults()

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model weights %q", cfg.ModelPath)
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, errors.Errorf("could not load model from %q", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set dnn backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set dnn target")
	}

	return &YOLODetector{
		net:           net,
		inputSize:     cfg.InputSize,
		confThreshold: float32(cfg.ConfidenceThreshold),
		iouThreshold:  float32(cfg.IoUThreshold),
	}, nil
}

func (d *YOLODetector) Detect(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Pix)
	if err != nil {
		return nil, errors.Wrap(err, "image buffer to mat")
	}
	defer mat.Close()

	// The buffer is already RGB, which is what the exported model expects.
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sx := float64(img.Width) / float64(d.inputSize)
	sy := float64(img.Height) / float64(d.inputSize)

	boxes, scores, candidates, err := d.forward(blob, sx, sy)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return []entity.RawDetection{}, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, d.confThreshold, d.iouThreshold)
	detections := make([]entity.RawDetection, 0, len(keep))
	for _, k := range keep {
		detections = append(detections, candidates[k])
	}
	return detections, nil
}

// forward runs the net and decodes its output while still holding mu: the output
// Mat shares the net's internal blob, which the next Forward overwrites.
func (d *YOLODetector) forward(blob gocv.Mat, sx, sy float64) ([]image.Rectangle, []float32, []entity.RawDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// [1, 4+classes, candidates]
	sizes := out.Size()
	if len(sizes) != 3 || sizes[1] < 5 {
		return nil, nil, nil, errors.Errorf("unexpected model output shape %v", sizes)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "read model output")
	}

	boxes, scores, candidates := decodeYOLOOutput(data, sizes[1], sizes[2], sx, sy, d.confThreshold)
	return boxes, scores, candidates, nil
}

func (d *YOLODetector) Close() error {
	return d.net.Close()
}
