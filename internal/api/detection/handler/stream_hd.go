package detectionHandler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"VisionStream/internal/api/detection"
	"VisionStream/internal/session"
	contextPkg "VisionStream/pkg/context"
	"VisionStream/pkg/log"
)

// handleStream owns one client connection: the reader loop runs here and frames
// are handed to the session worker. Returning releases the connection, so the
// session is closed (and its worker drained) first.
func (h *DetectionHandler) handleStream(c *websocket.Conn) {
	sessionID, _ := c.Locals(sessionIDLocal).(string)
	if sessionID == "" {
		sessionID = h.utils.NewSessionID()
	}
	requestID, _ := c.Locals(requestIDLocal).(string)
	parent, ok := c.Locals(streamCtxLocal).(context.Context)
	if !ok {
		parent = contextPkg.WithRequestID(context.Background(), requestID)
	}

	entry := log.WithSession(h.log, sessionID).WithField(log.RequestIDKey, requestID)
	entry.Info("Client connected")

	sess := session.New(parent, sessionID, c, h.log, func(ctx context.Context, s *session.Session, payload string) {
		h.detectionService.HandleFrame(ctx, s, payload)
	}, session.Options{WriteWait: h.cfg.WriteWait})

	c.SetReadLimit(h.cfg.MaxMessageBytes)
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})
	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(h.cfg.WriteWait)); err != nil {
			entry.WithError(err).Debug("Error sending pong")
		}
		return c.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.keepAlive(c, stop, entry)
	}()

	defer func() {
		close(stop)
		wg.Wait()
		sess.Close()
		entry.Info("Client disconnected")
	}()

	for {
		if err := c.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
			entry.WithError(err).Error("Error setting read deadline")
			return
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				entry.WithError(err).Warn("Stream connection error")
			} else {
				entry.Debug("Stream connection closed")
			}
			return
		}

		if messageType != websocket.TextMessage {
			h.emitError(sess, entry, detection.ErrUnsupportedMessage)
			continue
		}

		if !h.dispatch(sess, entry, message) {
			return
		}
	}
}

// dispatch routes one inbound envelope. It reports false when the client asked
// to disconnect.
func (h *DetectionHandler) dispatch(sess *session.Session, entry *logrus.Entry, message []byte) bool {
	var envelope detection.InboundEnvelope
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(message, &envelope); err != nil {
		entry.WithError(err).Debug("Undecodable message")
		h.emitError(sess, entry, detection.ErrMalformedEnvelope)
		return true
	}
	if err := h.validator.Struct(envelope); err != nil {
		h.emitError(sess, entry, detection.ErrMalformedEnvelope)
		return true
	}

	switch envelope.Event {
	case detection.EventFrame:
		data := jsoniter.Get(envelope.Data)
		if data.ValueType() != jsoniter.StringValue {
			h.emitError(sess, entry, detection.ErrMalformedFrame)
			return true
		}
		sess.Submit(data.ToString())
	case detection.EventDisconnect:
		entry.Debug("Client requested disconnect")
		return false
	case detection.EventConnect:
		// the socket being open already is the connect
	default:
		entry.WithField("event", envelope.Event).Debug("Unknown event")
		h.emitError(sess, entry, detection.ErrUnknownEvent)
	}

	return true
}

func (h *DetectionHandler) emitError(sess *session.Session, entry *logrus.Entry, err error) {
	if emitErr := sess.Emit(detection.EventError, detection.ErrorPayload{Message: err.Error()}); emitErr != nil {
		entry.WithError(emitErr).Warn("Could not emit error event")
	}
}

// keepAlive pings at 9/10 of the read timeout so a healthy peer's pong always
// lands before the deadline.
func (h *DetectionHandler) keepAlive(c *websocket.Conn, stop <-chan struct{}, entry *logrus.Entry) {
	ticker := time.NewTicker(h.cfg.ReadTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				entry.WithError(err).Debug("Ping failed")
				return
			}
		}
	}
}
