package smb

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// RemoteFileStream exposes an offset-addressed remote file as an ordinary
// seekable byte stream. The cursor is single-threaded state: a stream must
// not be used from more than one goroutine at a time.
type RemoteFileStream struct {
	file    File
	session *Session
	path    string

	pos      int64
	size     int64
	writable bool

	closeOnce sync.Once
	closeErr  error
}

var (
	_ io.ReadWriteSeeker = (*RemoteFileStream)(nil)
	_ io.Closer          = (*RemoteFileStream)(nil)
)

// OpenFileStream opens path on the session's share for reading. The file size
// is queried once at open and cached; Seek never touches the remote.
//
// When ownsSession is true, closing the stream also closes the session. The
// HTTP layer opens one session per request and hands ownership to the stream;
// the scanner keeps one session for a whole walk and retains ownership.
func OpenFileStream(session *Session, path string, ownsSession bool) (*RemoteFileStream, error) {
	file, err := session.Share().Open(path)
	if err != nil {
		if ownsSession {
			session.Close()
		}
		return nil, fmt.Errorf("failed to open remote file %q: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		if ownsSession {
			session.Close()
		}
		return nil, fmt.Errorf("failed to stat remote file %q: %w", path, err)
	}

	stream := &RemoteFileStream{
		file: file,
		path: path,
		size: info.Size(),
	}
	if ownsSession {
		stream.session = session
	}
	return stream, nil
}

// CreateFileStream opens path on the session's share for writing with
// create/overwrite semantics.
func CreateFileStream(session *Session, path string, ownsSession bool) (*RemoteFileStream, error) {
	file, err := session.Share().Create(path)
	if err != nil {
		if ownsSession {
			session.Close()
		}
		return nil, fmt.Errorf("failed to create remote file %q: %w", path, err)
	}

	stream := &RemoteFileStream{
		file:     file,
		path:     path,
		writable: true,
	}
	if ownsSession {
		stream.session = session
	}
	return stream, nil
}

// Size returns the cached file length (read streams only)
func (s *RemoteFileStream) Size() int64 {
	return s.size
}

// Path returns the protocol path this stream was opened with
func (s *RemoteFileStream) Path() string {
	return s.path
}

// Read issues exactly one remote read sized to p, advancing the cursor by the
// bytes actually returned. End of data maps to io.EOF; any other failure is
// fatal to the stream.
func (s *RemoteFileStream) Read(p []byte) (int, error) {
	if s.writable {
		return 0, fmt.Errorf("stream %q is open for writing", s.path)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.pos >= s.size {
		return 0, io.EOF
	}

	n, err := s.file.ReadAt(p, s.pos)
	s.pos += int64(n)

	if n > 0 {
		// A short read at the tail still delivered data; EOF surfaces on the
		// next call.
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	if err != nil {
		return 0, fmt.Errorf("remote read of %q at offset %d failed: %w", s.path, s.pos, err)
	}
	return 0, io.EOF
}

// Write writes all of p, looping over partial remote writes so no bytes are
// silently dropped.
func (s *RemoteFileStream) Write(p []byte) (int, error) {
	if !s.writable {
		return 0, fmt.Errorf("stream %q is open for reading", s.path)
	}

	written := 0
	for written < len(p) {
		n, err := s.file.WriteAt(p[written:], s.pos)
		s.pos += int64(n)
		written += n
		if err != nil {
			return written, fmt.Errorf("remote write of %q failed after %d bytes: %w", s.path, written, err)
		}
		if n == 0 {
			return written, fmt.Errorf("remote write of %q made no progress", s.path)
		}
	}
	if s.pos > s.size {
		s.size = s.pos
	}
	return written, nil
}

// Seek adjusts the internal cursor without any remote call
func (s *RemoteFileStream) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = s.pos + offset
	case io.SeekEnd:
		next = s.size + offset
	default:
		return 0, fmt.Errorf("invalid seek whence: %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position: %d", next)
	}
	s.pos = next
	return next, nil
}

// Close releases the remote file handle first, then the owning session when
// the stream holds one. Both happen even when the stream was never fully
// read. Safe to call more than once.
func (s *RemoteFileStream) Close() error {
	s.closeOnce.Do(func() {
		err := s.file.Close()
		if s.session != nil {
			if serr := s.session.Close(); err == nil {
				err = serr
			}
		}
		s.closeErr = err
	})
	return s.closeErr
}
