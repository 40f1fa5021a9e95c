package detector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"VisionStream/internal/entity"
	"VisionStream/pkg/imagecodec"
)

func blankImage(w, h int) *imagecodec.Image {
	return &imagecodec.Image{Width: w, Height: h, Pix: make([]byte, w*h*3)}
}

func fixedCapability(raw []entity.RawDetection, err error) Capability {
	return CapabilityFunc(func(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
		return raw, err
	})
}

func TestInferKeepsOrderAndRoundsConfidence(t *testing.T) {
	raw := []entity.RawDetection{
		{ClassIndex: 1, Confidence: 0.87654, BBox: [4]float64{10.5, 20.25, 110.75, 220}},
		{ClassIndex: 0, Confidence: 0.12349, BBox: [4]float64{0, 0, 5, 5}},
		{ClassIndex: 1, Confidence: 0.5, BBox: [4]float64{1, 2, 3, 4}},
	}
	adapter, err := NewAdapter(fixedCapability(raw, nil), NewLabels([]string{"person", "dog"}), Options{})
	require.NoError(t, err)

	got, err := adapter.Infer(context.Background(), blankImage(4, 4))
	require.NoError(t, err)
	require.Equal(t, []entity.Detection{
		{Class: "dog", Confidence: 0.877, BBox: [4]float64{10.5, 20.25, 110.75, 220}},
		{Class: "person", Confidence: 0.123, BBox: [4]float64{0, 0, 5, 5}},
		{Class: "dog", Confidence: 0.5, BBox: [4]float64{1, 2, 3, 4}},
	}, got)
}

func TestInferPassesDegenerateBoxesThrough(t *testing.T) {
	raw := []entity.RawDetection{
		{ClassIndex: 0, Confidence: 1, BBox: [4]float64{50, 50, 10, 10}},
		{ClassIndex: 0, Confidence: 0, BBox: [4]float64{-5, -5, 9000, 9000}},
	}
	adapter, err := NewAdapter(fixedCapability(raw, nil), Labels{}, Options{})
	require.NoError(t, err)

	got, err := adapter.Infer(context.Background(), blankImage(2, 2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, [4]float64{50, 50, 10, 10}, got[0].BBox)
	require.Equal(t, [4]float64{-5, -5, 9000, 9000}, got[1].BBox)
	require.Equal(t, "0", got[0].Class)
}

func TestInferEmptyResultIsNotNil(t *testing.T) {
	adapter, err := NewAdapter(fixedCapability(nil, nil), Labels{}, Options{})
	require.NoError(t, err)

	got, err := adapter.Infer(context.Background(), blankImage(1, 1))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestInferErrors(t *testing.T) {
	tests := []struct {
		name       string
		capability Capability
		labels     Labels
		img        *imagecodec.Image
	}{
		{
			name:       "capability error",
			capability: fixedCapability(nil, errors.New("model exploded")),
			img:        blankImage(2, 2),
		},
		{
			name: "capability panic",
			capability: CapabilityFunc(func(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
				panic("boom")
			}),
			img: blankImage(2, 2),
		},
		{
			name:       "class index outside label table",
			capability: fixedCapability([]entity.RawDetection{{ClassIndex: 7}}, nil),
			labels:     NewLabels([]string{"person"}),
			img:        blankImage(2, 2),
		},
		{
			name:       "buffer shape mismatch",
			capability: fixedCapability(nil, nil),
			img:        &imagecodec.Image{Width: 2, Height: 2, Pix: make([]byte, 5)},
		},
		{
			name:       "nil image",
			capability: fixedCapability(nil, nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.capability, tt.labels, Options{})
			require.NoError(t, err)

			got, err := adapter.Infer(context.Background(), tt.img)
			require.Nil(t, got)

			var inferErr *InferError
			require.ErrorAs(t, err, &inferErr)
			require.Contains(t, err.Error(), "inference failed: ")
		})
	}
}

func TestNewAdapterRequiresCapability(t *testing.T) {
	_, err := NewAdapter(nil, Labels{}, Options{})
	require.Error(t, err)
}

func TestInferTimeoutAbandonsResult(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	capability := CapabilityFunc(func(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
		<-release
		return nil, nil
	})
	adapter, err := NewAdapter(capability, Labels{}, Options{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = adapter.Infer(context.Background(), blankImage(1, 1))
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestInferBoundsConcurrentCalls(t *testing.T) {
	var active, peak int32
	capability := CapabilityFunc(func(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	})
	adapter, err := NewAdapter(capability, Labels{}, Options{MaxConcurrent: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := adapter.Infer(context.Background(), blankImage(1, 1)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestRoundConfidence(t *testing.T) {
	require.Equal(t, 0.877, RoundConfidence(0.87654))
	require.Equal(t, 0.5, RoundConfidence(0.5))
	require.Equal(t, 1.0, RoundConfidence(0.9996))
	require.Equal(t, 0.0, RoundConfidence(0.0004))
	require.Equal(t, 0.123, RoundConfidence(0.1235))
	require.Equal(t, 0.888, RoundConfidence(0.8885))
	require.Equal(t, 0.877, RoundConfidence(0.8765000001))
}
