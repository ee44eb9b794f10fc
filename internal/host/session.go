package host

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default readiness polling budget, about ten seconds.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxAttempts  = 100
)

// Loader brings up the host integration.
type Loader interface {
	// Available reports whether the host integration is present at all.
	Available() bool
	// Ready waits for the host's own ready signal and returns its workbook.
	Ready(ctx context.Context) (Workbook, error)
}

// Options tunes a Session.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	Logger       *log.Logger
}

// Session is the handle through which all host access goes. Create one at
// startup and pass it to readers and executors.
type Session struct {
	loader Loader
	opts   Options
	logger *log.Logger

	group singleflight.Group

	mu sync.Mutex
	wb Workbook

	// run serializes host round trips; the host is single-threaded.
	run sync.Mutex
}

// NewSession creates a session. Nothing is contacted until Connect or Run.
func NewSession(loader Loader, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{loader: loader, opts: opts, logger: logger}
}

// IsReady reports whether the session holds a connected workbook.
func (s *Session) IsReady() bool {
	return s.current() != nil
}

func (s *Session) current() Workbook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wb
}

// Connect waits for the host. Polling for availability is bounded by the
// session's retry budget; once available, the ready signal is awaited with no
// further timeout. A successful connection is kept for the session lifetime;
// a failed one is forgotten so a later call can retry. Concurrent callers
// share a single attempt.
func (s *Session) Connect(ctx context.Context) error {
	if s.IsReady() {
		return nil
	}

	_, err, _ := s.group.Do("connect", func() (any, error) {
		if wb := s.current(); wb != nil {
			return wb, nil
		}
		wb, err := s.connect(ctx)
		if err != nil {
			s.logger.Printf("connect failed: %v", err)
			return nil, err
		}
		s.mu.Lock()
		s.wb = wb
		s.mu.Unlock()
		s.logger.Printf("host ready")
		return wb, nil
	})
	return err
}

func (s *Session) connect(ctx context.Context) (Workbook, error) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; !s.loader.Available(); attempt++ {
		if attempt >= s.opts.MaxAttempts {
			return nil, fmt.Errorf("%w: not available after %d attempts", ErrHostUnavailable, attempt)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrHostUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}

	wb, err := s.loader.Ready(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostUnavailable, err)
	}
	return wb, nil
}

// Run connects if needed and calls fn with exclusive access to the workbook.
func (s *Session) Run(ctx context.Context, fn func(Workbook) error) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}

	s.run.Lock()
	defer s.run.Unlock()

	wb := s.current()
	if wb == nil {
		return ErrHostUnavailable
	}
	return fn(wb)
}

// Close releases the workbook. The next Run reconnects.
func (s *Session) Close() error {
	s.run.Lock()
	defer s.run.Unlock()

	s.mu.Lock()
	wb := s.wb
	s.wb = nil
	s.mu.Unlock()

	if wb == nil {
		return nil
	}
	return wb.Close()
}
