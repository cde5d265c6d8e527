package stream

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/sse"
)

// Stream is an open chat stream. It is consumed once and cannot be restarted.
type Stream struct {
	body   io.ReadCloser
	reader *sse.Reader
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Next returns the next record that carries a non-empty data field. Records
// without data are skipped. Next returns nil, nil once the backend closes the
// stream. Read failures match ErrConnection.
func (s *Stream) Next() (*sse.Event, error) {
	for {
		ev, err := s.reader.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: reading stream: %w", ErrConnection, err)
		}
		if ev == nil {
			return nil, nil
		}
		if !ev.HasData || ev.Data == "" {
			s.logger.Debug("skipping record without data", "event", ev.Type, "id", ev.ID)
			continue
		}
		return ev, nil
	}
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
