package scanner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
	"github.com/muselink/muselink/internal/smb"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.ShareSource{}, &database.Track{}))
	return db
}

func testScannerConfig() config.ScannerConfig {
	return config.ScannerConfig{
		BatchSize:         2,
		FingerprintBytes:  64,
		MemoryThreshold:   100.0,
		ThrottleSleepMs:   1,
		ThrottleCheckSize: 1000,
	}
}

// stubDialer serves an in-memory tree over the smb interfaces.
type stubDialer struct {
	share *stubShare
	err   error
}

func (d *stubDialer) Dial(ctx context.Context, endpoint config.ShareEndpoint) (smb.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return stubConn{share: d.share}, nil
}

type stubConn struct{ share *stubShare }

func (c stubConn) Mount(share string) (smb.Share, error) { return c.share, nil }
func (c stubConn) Close() error                          { return nil }

type stubShare struct {
	files map[string][]byte
}

func (s *stubShare) Open(path string) (smb.File, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, smb.ErrNotFound
	}
	return &stubFile{name: path, data: data}, nil
}

func (s *stubShare) Create(path string) (smb.File, error) {
	return nil, fmt.Errorf("read-only stub")
}

func (s *stubShare) ReadDir(dir string) ([]fs.FileInfo, error) {
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
			children[rest[:idx]] = stubInfo{name: rest[:idx], dir: true}
		} else {
			children[rest] = stubInfo{name: rest, size: int64(len(data))}
		}
	}
	if !found {
		return nil, smb.ErrNotFound
	}
	out := make([]fs.FileInfo, 0, len(children))
	for _, info := range children {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (s *stubShare) Stat(path string) (fs.FileInfo, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, smb.ErrNotFound
	}
	return stubInfo{name: path, size: int64(len(data))}, nil
}

func (s *stubShare) Remove(path string) error { return nil }
func (s *stubShare) Umount() error            { return nil }

type stubFile struct {
	name string
	data []byte
}

func (f *stubFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if off+int64(n) == int64(len(f.data)) && n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *stubFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, fmt.Errorf("read-only stub")
}

func (f *stubFile) Stat() (fs.FileInfo, error) {
	return stubInfo{name: f.name, size: int64(len(f.data))}, nil
}

func (f *stubFile) Close() error { return nil }

type stubInfo struct {
	name string
	size int64
	dir  bool
}

func (i stubInfo) Name() string       { return i.name }
func (i stubInfo) Size() int64        { return i.size }
func (i stubInfo) Mode() fs.FileMode  { return 0 }
func (i stubInfo) ModTime() time.Time { return time.Time{} }
func (i stubInfo) IsDir() bool        { return i.dir }
func (i stubInfo) Sys() interface{}   { return nil }

func TestScanSourceIndexesMediaFiles(t *testing.T) {
	db := testDB(t)
	repo := database.NewTrackRepository(db)
	dialer := &stubDialer{share: &stubShare{files: map[string][]byte{
		"Rock/one.mp3":  []byte("first file body"),
		"Rock/two.flac": []byte("second file body, longer"),
		"Rock/skip.txt": []byte("not media"),
	}}}

	source := database.ShareSource{ID: 1, Name: "music", Host: "nas.local", Share: "Music"}
	endpoint := config.ShareEndpoint{Name: "music", Host: "nas.local", Share: "Music"}
	ix := NewIndexer(dialer, repo, nil, testScannerConfig())
	state := NewScanState(source.ID)

	require.NoError(t, ix.ScanSource(context.Background(), source, endpoint, state))

	snap := state.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, 2, snap.FilesSeen)
	assert.Equal(t, 2, snap.FilesIndexed)
	assert.Zero(t, snap.FilesSkipped)

	tracks, err := repo.ListTracks(source.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	byPath := make(map[string]database.Track)
	for _, tr := range tracks {
		byPath[tr.FullPath] = tr
	}
	one := byPath["Rock/one.mp3"]
	assert.Equal(t, "one", one.Title)
	assert.Equal(t, "Rock", one.ParentPath)
	assert.Equal(t, int64(len("first file body")), one.SizeBytes)
	assert.NotEmpty(t, one.ContentHash)
	assert.NotEqual(t, one.ContentHash, byPath["Rock/two.flac"].ContentHash)
}

func TestScanSourceRescanSkipsIndexed(t *testing.T) {
	db := testDB(t)
	repo := database.NewTrackRepository(db)
	dialer := &stubDialer{share: &stubShare{files: map[string][]byte{
		"a.mp3": []byte("aaa"),
		"b.mp3": []byte("bbb"),
	}}}

	source := database.ShareSource{ID: 1, Name: "music", Host: "nas.local", Share: "Music"}
	endpoint := config.ShareEndpoint{Name: "music", Host: "nas.local", Share: "Music"}
	ix := NewIndexer(dialer, repo, nil, testScannerConfig())

	require.NoError(t, ix.ScanSource(context.Background(), source, endpoint, NewScanState(source.ID)))

	// Add one new file, rescan: only the new one is opened and indexed.
	dialer.share.files["c.mp3"] = []byte("ccc")
	state := NewScanState(source.ID)
	require.NoError(t, ix.ScanSource(context.Background(), source, endpoint, state))

	snap := state.Snapshot()
	assert.Equal(t, 3, snap.FilesSeen)
	assert.Equal(t, 2, snap.FilesSkipped)
	assert.Equal(t, 1, snap.FilesIndexed)

	tracks, err := repo.ListTracks(source.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, tracks, 3)
}

func TestScanSourceConnectionFailureIsFatal(t *testing.T) {
	db := testDB(t)
	repo := database.NewTrackRepository(db)
	dialer := &stubDialer{err: assert.AnError}

	source := database.ShareSource{ID: 1, Name: "music"}
	endpoint := config.ShareEndpoint{Name: "music", Host: "nas.local", Share: "Music"}
	ix := NewIndexer(dialer, repo, nil, testScannerConfig())
	state := NewScanState(source.ID)

	err := ix.ScanSource(context.Background(), source, endpoint, state)
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, state.Snapshot().Phase)
}

func TestScanSourceRootPathStripped(t *testing.T) {
	db := testDB(t)
	repo := database.NewTrackRepository(db)
	dialer := &stubDialer{share: &stubShare{files: map[string][]byte{
		"Archive/Rock/old.mp3": []byte("old data"),
	}}}

	source := database.ShareSource{ID: 1, Name: "archive", Share: "Music", RootPath: "Archive"}
	endpoint := config.ShareEndpoint{Name: "archive", Host: "nas.local", Share: "Music", RootPath: "Archive"}
	ix := NewIndexer(dialer, repo, nil, testScannerConfig())

	require.NoError(t, ix.ScanSource(context.Background(), source, endpoint, NewScanState(source.ID)))

	tracks, err := repo.ListTracks(source.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Rock/old.mp3", tracks[0].FullPath)
	assert.Equal(t, "Rock", tracks[0].ParentPath)
}

func TestServiceRunScanUnknownSource(t *testing.T) {
	svc := NewService(nil, nil, nil)
	err := svc.RunScan(context.Background(), 42)
	assert.Error(t, err)

	_, ok := svc.Progress(42)
	assert.False(t, ok)
}

func TestServiceUpdateSourcesPicksUpNewEndpoints(t *testing.T) {
	db := testDB(t)
	repo := database.NewTrackRepository(db)
	dialer := &stubDialer{share: &stubShare{files: map[string][]byte{
		"a.mp3": []byte("aaa"),
	}}}
	svc := NewService(NewIndexer(dialer, repo, nil, testScannerConfig()), nil, nil)

	require.Error(t, svc.RunScan(context.Background(), 7))

	source := database.ShareSource{ID: 7, Name: "music", Host: "nas.local", Share: "Music"}
	endpoint := config.ShareEndpoint{Name: "music", Host: "nas.local", Share: "Music"}
	svc.UpdateSources([]database.ShareSource{source}, []config.ShareEndpoint{endpoint})

	require.NoError(t, svc.RunScan(context.Background(), 7))
	progress, ok := svc.Progress(7)
	require.True(t, ok)
	assert.Equal(t, PhaseCompleted, progress.Phase)
	assert.Equal(t, 1, progress.FilesIndexed)

	ep, ok := svc.Endpoint("music")
	require.True(t, ok)
	assert.Equal(t, "nas.local", ep.Host)
}
