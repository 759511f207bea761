// Package smb adapts an SMB share into the seekable streams and path spaces
// the rest of the application works with. One session serves one operation;
// sessions are never shared across concurrent callers.
package smb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/muselink/muselink/internal/config"
)

// ErrNotFound is returned when a remote path does not exist. Directory walks
// treat it as a skippable condition rather than a failure.
var ErrNotFound = errors.New("remote path not found")

// IsNotFound reports whether err indicates a missing remote path
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// File is an open remote file handle. Reads and writes are offset-addressed;
// the stream layer provides cursor semantics on top.
type File interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Stat() (fs.FileInfo, error)
	Close() error
}

// Share is an attached share tree
type Share interface {
	// Open opens an existing file for reading
	Open(path string) (File, error)

	// Create opens a file for writing with create/overwrite semantics
	Create(path string) (File, error)

	// ReadDir lists a directory
	ReadDir(path string) ([]fs.FileInfo, error)

	// Stat returns file metadata
	Stat(path string) (fs.FileInfo, error)

	// Remove marks a file delete-pending and removes it on close
	Remove(path string) error

	// Umount detaches the share
	Umount() error
}

// Conn is an authenticated connection to a remote server
type Conn interface {
	// Mount attaches a named share
	Mount(share string) (Share, error)

	// Close logs off and closes the transport
	Close() error
}

// Dialer establishes authenticated connections to share endpoints. The
// production implementation speaks SMB; tests substitute an in-memory fake.
type Dialer interface {
	Dial(ctx context.Context, endpoint config.ShareEndpoint) (Conn, error)
}

// SMBDialer dials real SMB servers using go-smb2
type SMBDialer struct {
	// Timeout bounds the TCP connect; protocol negotiation is bounded by the
	// caller's context.
	Timeout time.Duration
}

// NewDialer creates a dialer with a sensible connect timeout
func NewDialer() *SMBDialer {
	return &SMBDialer{Timeout: 10 * time.Second}
}

// Dial connects, authenticates, and returns a connection ready for Mount
func (d *SMBDialer) Dial(ctx context.Context, endpoint config.ShareEndpoint) (Conn, error) {
	addr := endpoint.Host
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "445")
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	netDialer := &net.Dialer{Timeout: timeout}
	tcpConn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	smbDialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     endpoint.Username,
			Password: endpoint.Password,
			Domain:   endpoint.Domain,
		},
	}

	session, err := smbDialer.DialContext(ctx, tcpConn)
	if err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("failed to authenticate to %s: %w", addr, err)
	}

	return &smbConn{session: session, transport: tcpConn}, nil
}

type smbConn struct {
	session   *smb2.Session
	transport net.Conn
}

func (c *smbConn) Mount(share string) (Share, error) {
	tree, err := c.session.Mount(share)
	if err != nil {
		return nil, fmt.Errorf("failed to attach share %q: %w", share, wrapSMBError(err))
	}
	return &smbShare{tree: tree}, nil
}

func (c *smbConn) Close() error {
	err := c.session.Logoff()
	if cerr := c.transport.Close(); err == nil {
		err = cerr
	}
	return err
}

type smbShare struct {
	tree *smb2.Share
}

func (s *smbShare) Open(path string) (File, error) {
	f, err := s.tree.Open(toWirePath(path))
	if err != nil {
		return nil, wrapSMBError(err)
	}
	return f, nil
}

func (s *smbShare) Create(path string) (File, error) {
	f, err := s.tree.Create(toWirePath(path))
	if err != nil {
		return nil, wrapSMBError(err)
	}
	return f, nil
}

func (s *smbShare) ReadDir(path string) ([]fs.FileInfo, error) {
	infos, err := s.tree.ReadDir(toWirePath(path))
	if err != nil {
		return nil, wrapSMBError(err)
	}
	return infos, nil
}

func (s *smbShare) Stat(path string) (fs.FileInfo, error) {
	info, err := s.tree.Stat(toWirePath(path))
	if err != nil {
		return nil, wrapSMBError(err)
	}
	return info, nil
}

func (s *smbShare) Remove(path string) error {
	return wrapSMBError(s.tree.Remove(toWirePath(path)))
}

func (s *smbShare) Umount() error {
	return s.tree.Umount()
}

// toWirePath converts a protocol path (forward-slash) to the separator the
// wire protocol expects.
func toWirePath(path string) string {
	return strings.ReplaceAll(strings.Trim(path, "/"), "/", `\`)
}

// wrapSMBError maps protocol-level not-found conditions onto ErrNotFound so
// callers can test with IsNotFound.
func wrapSMBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
