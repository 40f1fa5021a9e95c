package websocketPkg

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"VisionStream/internal/entity"
	"VisionStream/pkg/imagecodec"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// fakeInferenceServer replies to every binary frame with reply(width, height). When
// oneShot is set each connection is closed after its first reply.
func fakeInferenceServer(t *testing.T, oneShot bool, reply func(w, h int) string) (*httptest.Server, *int32) {
	t.Helper()
	var connections int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&connections, 1)

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"expected binary frame"}`))
				continue
			}
			cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
			if err != nil {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bad jpeg"}`))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply(cfg.Width, cfg.Height))); err != nil {
				return
			}
			if oneShot {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, &connections
}

func testImage() *imagecodec.Image {
	return &imagecodec.Image{Width: 20, Height: 10, Pix: make([]byte, 20*10*3)}
}

func TestDetectForwardsFrameAndParsesReply(t *testing.T) {
	var seenW, seenH int32
	srv, _ := fakeInferenceServer(t, false, func(w, h int) string {
		atomic.StoreInt32(&seenW, int32(w))
		atomic.StoreInt32(&seenH, int32(h))
		return `{"detections":[{"class_id":2,"confidence":0.91,"bbox":[1,2,3,4]},{"class_id":0,"confidence":0.5,"bbox":[5,6,7,8]}]}`
	})

	client, err := NewInferenceClient(quietLogger(), Options{URL: wsURL(srv)})
	require.NoError(t, err)
	defer client.Close()
	require.True(t, client.IsConnected())

	got, err := client.Detect(context.Background(), testImage())
	require.NoError(t, err)
	require.Equal(t, []entity.RawDetection{
		{ClassIndex: 2, Confidence: 0.91, BBox: [4]float64{1, 2, 3, 4}},
		{ClassIndex: 0, Confidence: 0.5, BBox: [4]float64{5, 6, 7, 8}},
	}, got)
	require.Equal(t, int32(20), atomic.LoadInt32(&seenW))
	require.Equal(t, int32(10), atomic.LoadInt32(&seenH))
}

func TestDetectEmptyReply(t *testing.T) {
	srv, _ := fakeInferenceServer(t, false, func(w, h int) string {
		return `{"detections":[]}`
	})

	client, err := NewInferenceClient(quietLogger(), Options{URL: wsURL(srv)})
	require.NoError(t, err)
	defer client.Close()

	got, err := client.Detect(context.Background(), testImage())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestDetectServiceError(t *testing.T) {
	srv, _ := fakeInferenceServer(t, false, func(w, h int) string {
		return `{"error":"model not ready"}`
	})

	client, err := NewInferenceClient(quietLogger(), Options{URL: wsURL(srv)})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Detect(context.Background(), testImage())
	require.Error(t, err)
	require.Contains(t, err.Error(), "model not ready")
}

func TestDetectReconnectsOnDemand(t *testing.T) {
	srv, connections := fakeInferenceServer(t, true, func(w, h int) string {
		return `{"detections":[]}`
	})

	client, err := NewInferenceClient(quietLogger(), Options{URL: wsURL(srv)})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Detect(context.Background(), testImage())
	require.NoError(t, err)

	// the server hung up after its reply
	_, err = client.Detect(context.Background(), testImage())
	require.Error(t, err)
	require.False(t, client.IsConnected())

	_, err = client.Detect(context.Background(), testImage())
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(connections))
}

func TestNewInferenceClientFailsWithoutService(t *testing.T) {
	_, err := NewInferenceClient(quietLogger(), Options{})
	require.Error(t, err)

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err = NewInferenceClient(quietLogger(), Options{URL: wsURL(srv)})
	require.Error(t, err)
}
