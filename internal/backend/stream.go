package backend

import (
	"errors"
	"io"
	"sync"
)

const readChunkSize = 4 * 1024

// Stream is the answer body of one /stream request. Each Next call performs
// one read on the body and returns its bytes decoded as a single fragment.
// Next returns io.EOF once the server has closed the connection. A Stream
// cannot be restarted.
type Stream struct {
	body    io.ReadCloser
	decoder Decoder
	buf     []byte
	done    bool

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an answer body. The caller gives up ownership of body.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, buf: make([]byte, readChunkSize)}
}

func (s *Stream) Next() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		n, err := s.body.Read(s.buf)
		if err != nil {
			s.done = true
			_ = s.Close()
			if !errors.Is(err, io.EOF) {
				return s.fragment(n), err
			}
		}
		if n > 0 {
			return s.fragment(n), nil
		}
	}
}

func (s *Stream) fragment(n int) string {
	if n <= 0 {
		return ""
	}
	return s.decoder.Decode(s.buf[:n])
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
