// Package session owns the per-connection state of a detection stream: the
// Open/Closed lifecycle, a one-frame mailbox and the worker that drains it, and
// the serialized writer every outbound event goes through.
//
// Backlog policy: at most one frame waits while another is being processed. A
// newer frame replaces the waiting one, and the replaced frame is dropped without
// any emission. Frames that do run are handled one at a time, in arrival order,
// and each frame's event is fully written before the next frame starts.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"VisionStream/internal/api/detection"
	"VisionStream/internal/entity"
	contextPkg "VisionStream/pkg/context"
	"VisionStream/pkg/log"
)

var ErrSessionClosed = errors.New("session closed")

// Conn is the write half of the transport.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// ProcessFunc handles one frame. It runs on the session worker only.
type ProcessFunc func(ctx context.Context, s *Session, payload string)

type Options struct {
	// WriteWait bounds every outbound write. Zero disables the deadline.
	WriteWait time.Duration
}

type Session struct {
	id        string
	conn      Conn
	log       *logrus.Entry
	process   ProcessFunc
	writeWait time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	cond       *sync.Cond
	state      entity.SessionState
	pending    string
	hasPending bool
	stats      entity.SessionStats

	writeMu sync.Mutex
	done    chan struct{}
}

// New opens a session and starts its worker. parent only contributes values such
// as the request id; the session's lifetime is ended by Close alone.
func New(parent context.Context, id string, conn Conn, logger *logrus.Logger, process ProcessFunc, opts Options) *Session {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(contextPkg.WithSessionID(parent, id))

	s := &Session{
		id:        id,
		conn:      conn,
		log:       log.WithSession(logger, id),
		process:   process,
		writeWait: opts.WriteWait,
		ctx:       ctx,
		cancel:    cancel,
		state:     entity.SessionOpen,
		done:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.run()

	return s
}

func (s *Session) ID() string {
	return s.id
}

// Context carries the session id and is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) State() entity.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) Stats() entity.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// Submit hands a frame to the worker. It reports false once the session is closed.
func (s *Session) Submit(payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == entity.SessionClosed {
		return false
	}

	s.stats.FramesReceived++
	if s.hasPending {
		s.stats.FramesDropped++
		s.log.Debug("Pending frame replaced by a newer one")
	}
	s.pending = payload
	s.hasPending = true
	s.cond.Signal()

	return true
}

// Emit writes one {"event","data"} text message. Writes from the worker and from
// the transport reader never interleave.
func (s *Session) Emit(event string, data interface{}) error {
	if s.State() == entity.SessionClosed {
		return ErrSessionClosed
	}

	message, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(detection.Envelope{
		Event: event,
		Data:  data,
	})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeWait > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
			return err
		}
	}

	return s.conn.WriteMessage(websocket.TextMessage, message)
}

// Close moves the session to Closed, discards any waiting frame and blocks until
// the worker has returned. It is safe to call more than once.
func (s *Session) Close() entity.SessionStats {
	s.mu.Lock()
	if s.state == entity.SessionClosed {
		s.mu.Unlock()
		<-s.done
		return s.Stats()
	}

	s.state = entity.SessionClosed
	if s.hasPending {
		s.pending = ""
		s.hasPending = false
		s.stats.FramesDropped++
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	<-s.done

	stats := s.Stats()
	s.log.WithFields(logrus.Fields{
		"state":     entity.SessionClosed.String(),
		"received":  stats.FramesReceived,
		"processed": stats.FramesProcessed,
		"dropped":   stats.FramesDropped,
	}).Info("Session closed")

	return stats
}

func (s *Session) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.hasPending && s.state == entity.SessionOpen {
		s.cond.Wait()
	}
	if s.state == entity.SessionClosed {
		return "", false
	}

	payload := s.pending
	s.pending = ""
	s.hasPending = false

	return payload, true
}

func (s *Session) run() {
	defer close(s.done)

	for {
		payload, ok := s.next()
		if !ok {
			return
		}

		s.process(s.ctx, s, payload)

		s.mu.Lock()
		s.stats.FramesProcessed++
		s.mu.Unlock()
	}
}
