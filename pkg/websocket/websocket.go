package websocketPkg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"VisionStream/internal/entity"
	"VisionStream/pkg/imagecodec"
)

// IInferenceClient is a detection capability served by an external model process.
type IInferenceClient interface {
	Detect(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error)
	IsConnected() bool
	Reconnect() error
	Close()
}

type Options struct {
	URL          string
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JPEGQuality  int
}

type inferenceClient struct {
	log  *logrus.Logger
	url  string
	conn *websocket.Conn
	mu   sync.Mutex
	// held for a whole request/response round trip
	reqMu sync.Mutex

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	jpegQuality  int
}

type inferenceReply struct {
	Detections []struct {
		ClassID    int        `json:"class_id"`
		Confidence float64    `json:"confidence"`
		BBox       [4]float64 `json:"bbox"`
	} `json:"detections"`
	Error string `json:"error"`
}

// NewInferenceClient dials the inference service once. Unlike later reconnects, a
// failure here is returned so that startup can abort.
func NewInferenceClient(log *logrus.Logger, opts Options) (IInferenceClient, error) {
	client := &inferenceClient{
		log:          log,
		url:          opts.URL,
		pingInterval: opts.PingInterval,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		jpegQuality:  opts.JPEGQuality,
	}
	if client.pingInterval <= 0 {
		client.pingInterval = 30 * time.Second
	}
	if client.readTimeout <= 0 {
		client.readTimeout = 10 * time.Second
	}
	if client.writeTimeout <= 0 {
		client.writeTimeout = 5 * time.Second
	}
	if client.jpegQuality <= 0 {
		client.jpegQuality = 90
	}

	if err := client.Reconnect(); err != nil {
		return nil, err
	}
	client.log.WithField("url", client.url).Info("Connected to inference service")

	return client, nil
}

func (c *inferenceClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

func (c *inferenceClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.url == "" {
		return fmt.Errorf("inference service URL not configured")
	}

	c.log.WithField("url", c.url).Debug("Connecting to inference service")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.WithError(err).Warn("Error sending pong to inference service")
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

func (c *inferenceClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// keepAlive pings conn until it is replaced, closed or a ping fails.
func (c *inferenceClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.WithError(err).Warn("Ping to inference service failed, marking connection as dead")
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

func (c *inferenceClient) getConnection() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("not connected to inference service")
	}

	return c.conn, nil
}

func (c *inferenceClient) drop(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

// Detect forwards the frame as a JPEG binary message and waits for the reply.
// Round trips on the shared connection are serialized.
func (c *inferenceClient) Detect(ctx context.Context, img *imagecodec.Image) ([]entity.RawDetection, error) {
	frame, err := imagecodec.EncodeJPEG(img, c.jpegQuality)
	if err != nil {
		return nil, fmt.Errorf("error encoding frame: %w", err)
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := c.getConnection()
	if err != nil {
		if err := c.Reconnect(); err != nil {
			return nil, fmt.Errorf("cannot connect to inference service: %w", err)
		}
		conn, err = c.getConnection()
		if err != nil {
			return nil, err
		}
	}

	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	c.log.WithField("bytes", len(frame)).Debug("Sending frame to inference service")
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.drop(conn)
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	readDeadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(readDeadline) {
		readDeadline = d
	}
	conn.SetReadDeadline(readDeadline)

	_, message, err := conn.ReadMessage()
	if err != nil {
		c.drop(conn)
		return nil, fmt.Errorf("error reading inference reply: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	var reply inferenceReply
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(message, &reply); err != nil {
		return nil, fmt.Errorf("error unmarshaling inference reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("inference service: %s", reply.Error)
	}

	detections := make([]entity.RawDetection, 0, len(reply.Detections))
	for _, d := range reply.Detections {
		detections = append(detections, entity.RawDetection{
			ClassIndex: d.ClassID,
			Confidence: d.Confidence,
			BBox:       d.BBox,
		})
	}

	return detections, nil
}
