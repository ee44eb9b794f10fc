package chat

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"
)

// event is the payload of one SSE data line. Error is set instead of
// Content when the stream failed after it started.
type event struct {
	Chunk
	Error string `json:"error,omitempty"`
}

// sseWriter writes chat chunks as server-sent events. Headers are sent with
// the first event so errors before that can still use a status code.
type sseWriter struct {
	w       http.ResponseWriter
	started bool
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *sseWriter) send(v any) error {
	s.start()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "%s%s\n\n", dataPrefix, data); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (s *sseWriter) chunk(c Chunk) error { return s.send(c) }

func (s *sseWriter) fail(err error) error {
	return s.send(event{Error: err.Error()})
}

func (s *sseWriter) done() error {
	s.start()
	if _, err := io.WriteString(s.w, dataPrefix+doneMarker+"\n\n"); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// ErrStreamTruncated is returned when a stream ends without its done marker.
var ErrStreamTruncated = errors.New("stream ended before [DONE]")

// ReadStream parses a chat event stream, calling fn for each chunk until the
// done marker. An error event ends the stream with that error.
func ReadStream(r io.Reader, fn func(Chunk) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimPrefix(line, dataPrefix)
		if data == doneMarker {
			return nil
		}

		var ev event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("malformed stream event: %w", err)
		}
		if ev.Error != "" {
			return errors.New(ev.Error)
		}
		if err := fn(ev.Chunk); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrStreamTruncated
}
