package providers

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	llmerrors "github.com/ahrav/go-llmware/internal/llm/errors"
	"github.com/ahrav/go-llmware/internal/llm/transport"
)

// maxLineSize bounds a single NDJSON or SSE line.
const maxLineSize = 1 << 20

// lineParser interprets one line of a streaming body. ok reports whether
// text is a fragment to yield; done reports the backend's end marker; err
// reports an error the backend sent in-band. Malformed lines return
// ok=false and done=false and are skipped.
type lineParser func(line []byte) (text string, ok, done bool, err error)

// lineStream turns a line-delimited HTTP body into a TokenStream.
// A body that ends without the end marker, or fails to read, is reported
// as a StreamIntegrityError.
type lineStream struct {
	provider string
	body     io.ReadCloser
	scanner  *bufio.Scanner
	parse    lineParser

	mu        sync.Mutex // serializes Recv
	fragments int
	finished  bool
	err       error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ transport.TokenStream = (*lineStream)(nil)

func newLineStream(provider string, body io.ReadCloser, parse lineParser) *lineStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &lineStream{provider: provider, body: body, scanner: scanner, parse: parse}
}

func (s *lineStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.closed.Load() {
			return "", transport.ErrStreamClosed
		}
		if s.err != nil {
			return "", s.err
		}
		if s.finished {
			return "", io.EOF
		}

		if !s.scanner.Scan() {
			if s.closed.Load() {
				return "", transport.ErrStreamClosed
			}
			cause := s.scanner.Err()
			if cause == nil {
				cause = io.ErrUnexpectedEOF
			}
			s.err = &llmerrors.StreamIntegrityError{Provider: s.provider, Fragments: s.fragments, Cause: cause}
			s.closeBody()
			return "", s.err
		}

		text, ok, done, perr := s.parse(s.scanner.Bytes())
		if perr != nil {
			s.err = &llmerrors.StreamIntegrityError{Provider: s.provider, Fragments: s.fragments, Cause: perr}
			s.closeBody()
			return "", s.err
		}
		if done {
			s.finished = true
			s.closeBody()
		}
		if ok && text != "" {
			s.fragments++
			return text, nil
		}
	}
}

// Close releases the response body. Safe to call at any point, including
// while a Recv is blocked reading, which it unblocks.
func (s *lineStream) Close() error {
	s.closed.Store(true)
	s.closeBody()
	return s.closeErr
}

func (s *lineStream) closeBody() {
	s.closeOnce.Do(func() { s.closeErr = s.body.Close() })
}
