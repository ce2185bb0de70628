package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/tutor-chat/internal/sse"
)

// EventType distinguishes stream events.
type EventType int

const (
	// EventDelta carries text to append to the assistant message.
	EventDelta EventType = iota + 1
	// EventError carries an error reported by the server inside the stream.
	EventError
)

// Event is one decoded stream event.
type Event struct {
	Type EventType
	Text string
}

type payload struct {
	Text  *string `json:"text"`
	Error *string `json:"error"`
}

const readSize = 4096

// Stream yields the events of one chat response. It is not safe for concurrent use.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	parser  sse.Parser
	pending []Event
	buf     []byte
	done    bool
	logger  *logrus.Logger
}

func newStream(ctx context.Context, body io.ReadCloser, logger *logrus.Logger) *Stream {
	return &Stream{
		ctx:    ctx,
		body:   body,
		buf:    make([]byte, readSize),
		logger: logger,
	}
}

// Next returns the next event. It returns io.EOF once the stream ended, either on the
// [DONE] sentinel or when the connection closed. If the request context is cancelled
// Next returns the context's error.
func (s *Stream) Next() (Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return Event{}, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			return Event{}, err
		}

		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.handle(s.parser.Feed(s.buf[:n]))
		}
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			if !errors.Is(err, io.EOF) {
				return Event{}, err
			}
			if f, ok := s.parser.Flush(); ok && !s.done {
				s.handle([]sse.Frame{f})
			}
			s.done = true
		}
	}
}

func (s *Stream) handle(frames []sse.Frame) {
	for _, f := range frames {
		if s.done {
			return
		}
		if f.Done {
			s.done = true
			return
		}

		var p payload
		if err := json.Unmarshal([]byte(f.Data), &p); err != nil {
			s.logger.WithError(err).WithField("frame", f.Data).Debug("skipping malformed stream frame")
			continue
		}
		switch {
		case p.Error != nil:
			s.pending = append(s.pending, Event{Type: EventError, Text: *p.Error})
		case p.Text != nil:
			s.pending = append(s.pending, Event{Type: EventDelta, Text: *p.Text})
		default:
			s.logger.WithField("frame", f.Data).Debug("skipping stream frame without text or error")
		}
	}
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}
