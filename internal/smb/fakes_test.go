package smb

import (
	"context"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/muselink/muselink/internal/config"
)

// fakeDialer serves an in-memory file tree over the package interfaces.
// Paths use forward slashes, matching what callers hand to a Share.
type fakeDialer struct {
	share   *fakeShare
	dialErr error

	mu    sync.Mutex
	dials int
}

func newFakeDialer(files map[string][]byte) *fakeDialer {
	return &fakeDialer{share: &fakeShare{files: files}}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint config.ShareEndpoint) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &fakeConn{share: d.share}, nil
}

type fakeConn struct {
	share  *fakeShare
	closed bool
}

func (c *fakeConn) Mount(share string) (Share, error) { return c.share, nil }
func (c *fakeConn) Close() error                      { c.closed = true; return nil }

type fakeShare struct {
	mu        sync.Mutex
	files     map[string][]byte
	openCount int
	unmounted bool
}

func (s *fakeShare) Open(path string) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	s.openCount++
	return &fakeFile{share: s, name: path, data: append([]byte(nil), data...)}, nil
}

func (s *fakeShare) Create(path string) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = nil
	s.openCount++
	return &fakeFile{share: s, name: path, writable: true}, nil
}

// ReadDir lists immediate children, with dot entries mixed in the way a
// real server reports them.
func (s *fakeShare) ReadDir(dir string) ([]fs.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := strings.TrimSuffix(dir, "/")
	if prefix != "" {
		prefix += "/"
	}

	children := make(map[string]fs.FileInfo)
	found := prefix == ""
	for path, data := range s.files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		found = true
		rest := path[len(prefix):]
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name := rest[:idx]
			children[name] = fakeFileInfo{name: name, dir: true}
		} else {
			children[rest] = fakeFileInfo{name: rest, size: int64(len(data))}
		}
	}
	if !found {
		return nil, ErrNotFound
	}

	out := []fs.FileInfo{
		fakeFileInfo{name: ".", dir: true},
		fakeFileInfo{name: "..", dir: true},
	}
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, children[name])
	}
	return out, nil
}

func (s *fakeShare) Stat(path string) (fs.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	return fakeFileInfo{name: path, size: int64(len(data))}, nil
}

func (s *fakeShare) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[path]; !ok {
		return ErrNotFound
	}
	delete(s.files, path)
	return nil
}

func (s *fakeShare) Umount() error {
	s.mu.Lock()
	s.unmounted = true
	s.mu.Unlock()
	return nil
}

func (s *fakeShare) openHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCount
}

type fakeFile struct {
	share    *fakeShare
	name     string
	data     []byte
	writable bool
	closed   bool

	// maxChunk caps bytes per ReadAt and WriteAt to force short transfers
	maxChunk int
}

func (f *fakeFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	limit := len(p)
	if f.maxChunk > 0 && limit > f.maxChunk {
		limit = f.maxChunk
	}
	n := copy(p[:limit], f.data[off:])
	if off+int64(n) == int64(len(f.data)) && n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *fakeFile) WriteAt(p []byte, off int64) (int, error) {
	if f.maxChunk > 0 && len(p) > f.maxChunk {
		p = p[:f.maxChunk]
	}
	if int64(len(f.data)) < off+int64(len(p)) {
		grown := make([]byte, off+int64(len(p)))
		copy(grown, f.data)
		f.data = grown
	}
	n := copy(f.data[off:], p)
	if f.writable {
		f.share.mu.Lock()
		f.share.files[f.name] = append([]byte(nil), f.data...)
		f.share.mu.Unlock()
	}
	return n, nil
}

func (f *fakeFile) Stat() (fs.FileInfo, error) {
	return fakeFileInfo{name: f.name, size: int64(len(f.data))}, nil
}

func (f *fakeFile) Close() error {
	f.closed = true
	f.share.mu.Lock()
	f.share.openCount--
	f.share.mu.Unlock()
	return nil
}

type fakeFileInfo struct {
	name string
	size int64
	dir  bool
}

func (fi fakeFileInfo) Name() string       { return fi.name }
func (fi fakeFileInfo) Size() int64        { return fi.size }
func (fi fakeFileInfo) Mode() fs.FileMode  { return 0 }
func (fi fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fi fakeFileInfo) IsDir() bool        { return fi.dir }
func (fi fakeFileInfo) Sys() interface{}   { return nil }
