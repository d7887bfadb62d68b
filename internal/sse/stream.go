package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Stream writes events to a long-lived HTTP response. Safe for use from the
// emitting goroutine plus the internal heartbeat ticker; frames are never
// interleaved.
type Stream struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
	closed  bool

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// NewStream prepares a response for event streaming and starts the heartbeat
// loop. heartbeatInterval <= 0 disables heartbeats.
func NewStream(w http.ResponseWriter, heartbeatInterval time.Duration) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s := &Stream{
		writer:        w,
		flusher:       flusher,
		stopHeartbeat: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}

	if heartbeatInterval > 0 {
		go s.heartbeatLoop(heartbeatInterval)
	} else {
		close(s.heartbeatDone)
	}
	return s, nil
}

// Send writes one frame. After the client disconnects (or Close), Send
// becomes a no-op so detached stage work can keep emitting blindly.
func (s *Stream) Send(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", payload); err != nil {
		// Client went away; stop emitting but let the work finish.
		s.closed = true
		return
	}
	s.flusher.Flush()
}

// Close stops the heartbeat loop and marks the stream finished. It does not
// cancel any work feeding the stream.
func (s *Stream) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
	}
	s.mu.Unlock()

	select {
	case <-s.stopHeartbeat:
	default:
		close(s.stopHeartbeat)
	}
	<-s.heartbeatDone
}

func (s *Stream) heartbeatLoop(interval time.Duration) {
	defer close(s.heartbeatDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopHeartbeat:
			return
		case <-ticker.C:
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.Send(Heartbeat())
		}
	}
}
