package smb

import (
	"context"
	"fmt"
	"sync"

	"github.com/muselink/muselink/internal/config"
)

// Session is one connect/authenticate/attach lifecycle against a share
// endpoint. It serves exactly one operation and must be closed by the code
// that opened it, on every exit path.
type Session struct {
	endpoint config.ShareEndpoint
	conn     Conn
	share    Share

	closeOnce sync.Once
	closeErr  error
}

// OpenSession dials the endpoint and attaches its share. On any failure the
// partially established connection is torn down before returning.
func OpenSession(ctx context.Context, dialer Dialer, endpoint config.ShareEndpoint) (*Session, error) {
	conn, err := dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("share session connect failed: %w", err)
	}

	share, err := conn.Mount(endpoint.Share)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("share session attach failed: %w", err)
	}

	return &Session{endpoint: endpoint, conn: conn, share: share}, nil
}

// Share returns the attached share tree
func (s *Session) Share() Share {
	return s.share
}

// Endpoint returns the endpoint this session was opened against
func (s *Session) Endpoint() config.ShareEndpoint {
	return s.endpoint
}

// Close detaches the share and disconnects. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := s.share.Umount()
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
		s.closeErr = err
	})
	return s.closeErr
}
