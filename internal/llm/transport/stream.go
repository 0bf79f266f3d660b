package transport

import (
	"errors"
	"io"
	"strings"
	"sync"
)

var (
	// ErrNotSupported is returned by Funcs when an operation has no implementation.
	ErrNotSupported = errors.New("operation not supported")

	// ErrStreamClosed is returned by Recv after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// TokenStream is a finite, pull-based sequence of text fragments.
// Recv returns io.EOF once the sequence has completed normally and any other
// error when it failed. A stream cannot be restarted. Close may be called at
// any point, including before the sequence is exhausted, and more than once.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// sliceStream replays a fixed fragment sequence.
type sliceStream struct {
	mu        sync.Mutex
	fragments []string
	pos       int
	closed    bool
}

// NewSliceStream returns a stream that yields fragments in order.
// The slice is copied so later mutation by the caller has no effect.
func NewSliceStream(fragments []string) TokenStream {
	cp := make([]string, len(fragments))
	copy(cp, fragments)
	return &sliceStream{fragments: cp}
}

func (s *sliceStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStreamClosed
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// funcStream adapts a receive function and an optional close hook.
type funcStream struct {
	recv    func() (string, error)
	closeFn func() error

	once     sync.Once
	closeErr error
	closed   bool
	mu       sync.Mutex
}

// NewFuncStream builds a TokenStream from recv, which must follow the Recv
// contract. closeFn may be nil and runs at most once.
func NewFuncStream(recv func() (string, error), closeFn func() error) TokenStream {
	return &funcStream{recv: recv, closeFn: closeFn}
}

func (s *funcStream) Recv() (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrStreamClosed
	}
	return s.recv()
}

func (s *funcStream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
	return s.closeErr
}

// Collect drains stream and closes it. It returns the fragments received
// before any error together with that error; io.EOF is not an error.
func Collect(stream TokenStream) ([]string, error) {
	defer stream.Close() //nolint:errcheck // Close errors carry no data for the caller

	var fragments []string
	for {
		f, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return fragments, nil
		}
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, f)
	}
}

// Text concatenates fragments.
func Text(fragments []string) string {
	return strings.Join(fragments, "")
}
