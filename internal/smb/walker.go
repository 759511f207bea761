package smb

import (
	"context"
	"path"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/muselink/muselink/internal/logger"
)

// MediaExtensions contains the audio file extensions the indexer accepts
var MediaExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".wav":  true,
	".ogg":  true,
	".opus": true,
}

// IsMediaFile checks if a file name has a supported audio extension
func IsMediaFile(name string) bool {
	return MediaExtensions[strings.ToLower(path.Ext(name))]
}

// FileEntry is one media file discovered by a walk
type FileEntry struct {
	// Path is the protocol path of the file, relative to the share root
	Path string

	// Size is the file length in bytes
	Size int64
}

// Walker enumerates a share subtree depth-first, collecting media files.
// Cyclic structures behind the share (server-side links) are not guarded
// against.
type Walker struct {
	log hclog.Logger
}

// NewWalker creates a walker
func NewWalker() *Walker {
	return &Walker{log: logger.Named("walker")}
}

// Walk traverses the subtree rooted at root and calls visit for every media
// file, in depth-first order. A listing failure on a subtree is logged and
// the subtree skipped; the walk continues. Context cancellation stops the
// walk between directories.
func (w *Walker) Walk(ctx context.Context, share Share, root string, visit func(FileEntry) error) error {
	return w.walkDir(ctx, share, NormalizePath(root), visit)
}

// Collect runs Walk and gathers the discovered entries
func (w *Walker) Collect(ctx context.Context, share Share, root string) ([]FileEntry, error) {
	var entries []FileEntry
	err := w.Walk(ctx, share, root, func(entry FileEntry) error {
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

func (w *Walker) walkDir(ctx context.Context, share Share, dir string, visit func(FileEntry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	infos, err := share.ReadDir(dir)
	if err != nil {
		if IsNotFound(err) {
			w.log.Warn("directory vanished during walk, skipping", "path", dir)
			return nil
		}
		w.log.Error("failed to list directory, skipping subtree", "path", dir, "error", err)
		return nil
	}

	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}

		child := name
		if dir != "" {
			child = dir + "/" + name
		}

		if info.IsDir() {
			if err := w.walkDir(ctx, share, child, visit); err != nil {
				return err
			}
			continue
		}

		if !IsMediaFile(name) {
			continue
		}

		if err := visit(FileEntry{Path: child, Size: info.Size()}); err != nil {
			return err
		}
	}

	return nil
}
