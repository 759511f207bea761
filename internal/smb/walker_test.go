package smb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkerCollectsOnlyMediaFiles(t *testing.T) {
	dialer := newFakeDialer(map[string][]byte{
		"Rock/song1.mp3":        make([]byte, 10),
		"Rock/song2.flac":       make([]byte, 20),
		"Rock/cover.jpg":        make([]byte, 5),
		"Rock/notes.txt":        make([]byte, 5),
		"Jazz/Standards/s1.m4a": make([]byte, 30),
		"root.opus":             make([]byte, 40),
	})
	session := openTestSession(t, dialer)
	defer session.Close()

	entries, err := NewWalker().Collect(context.Background(), session.Share(), "")
	require.NoError(t, err)

	paths := make(map[string]int64, len(entries))
	for _, e := range entries {
		paths[e.Path] = e.Size
	}
	assert.Len(t, paths, 4)
	assert.Equal(t, int64(10), paths["Rock/song1.mp3"])
	assert.Equal(t, int64(20), paths["Rock/song2.flac"])
	assert.Equal(t, int64(30), paths["Jazz/Standards/s1.m4a"])
	assert.Equal(t, int64(40), paths["root.opus"])
	assert.NotContains(t, paths, "Rock/cover.jpg")
	assert.NotContains(t, paths, "Rock/notes.txt")
}

func TestWalkerVisitErrorStopsWalk(t *testing.T) {
	dialer := newFakeDialer(map[string][]byte{
		"a.mp3": make([]byte, 1),
		"b.mp3": make([]byte, 1),
	})
	session := openTestSession(t, dialer)
	defer session.Close()

	visits := 0
	err := NewWalker().Walk(context.Background(), session.Share(), "", func(FileEntry) error {
		visits++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, visits)
}

func TestWalkerCancellation(t *testing.T) {
	dialer := newFakeDialer(map[string][]byte{"a.mp3": make([]byte, 1)})
	session := openTestSession(t, dialer)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWalker().Walk(ctx, session.Share(), "", func(FileEntry) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkerMissingRootIsSkipped(t *testing.T) {
	dialer := newFakeDialer(map[string][]byte{"Rock/a.mp3": make([]byte, 1)})
	session := openTestSession(t, dialer)
	defer session.Close()

	entries, err := NewWalker().Collect(context.Background(), session.Share(), "NoSuchDir")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIsMediaFile(t *testing.T) {
	assert.True(t, IsMediaFile("song.mp3"))
	assert.True(t, IsMediaFile("SONG.FLAC"))
	assert.True(t, IsMediaFile("a/b/c.opus"))
	assert.False(t, IsMediaFile("cover.jpg"))
	assert.False(t, IsMediaFile("README"))
}
