package smb

import (
	"strings"

	"github.com/muselink/muselink/internal/config"
)

// Three path spaces interoperate here:
//
//   - user paths: share name as the first segment, e.g. "Music/Rock/song.mp3"
//   - protocol paths: what the attached share is asked for, endpoint root
//     included, forward-slash separated
//   - index paths: share-relative, separator-normalized; what the catalog
//     persists
//
// NormalizePath and the resolver are pure functions; no I/O.

// NormalizePath unifies separators to forward slash and trims leading and
// trailing slashes. Case is preserved.
func NormalizePath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	return strings.Trim(p, "/")
}

// Resolution is the result of mapping a user path into index space. Matched
// reports whether a configured endpoint covered the path; when false,
// IndexPath carries the input unchanged and the caller decides whether to
// treat it as a raw index path.
type Resolution struct {
	IndexPath string
	Endpoint  config.ShareEndpoint
	Matched   bool
}

// ResolveUserToIndexPath maps a user-facing path onto the endpoint that owns
// it, returning the share-relative remainder. The longest matching endpoint
// prefix wins. Resolution is idempotent: a path with no endpoint prefix comes
// back unchanged, flagged unmatched.
func ResolveUserToIndexPath(userPath string, endpoints []config.ShareEndpoint) Resolution {
	normalized := NormalizePath(userPath)

	var (
		best    config.ShareEndpoint
		bestLen = -1
		found   bool
	)
	for _, endpoint := range endpoints {
		prefix := NormalizePath(endpoint.DisplayPath())
		if !IsPathMatch(normalized, prefix, true) {
			continue
		}
		if len(prefix) > bestLen {
			best = endpoint
			bestLen = len(prefix)
			found = true
		}
	}

	if !found {
		return Resolution{IndexPath: normalized}
	}

	remainder := strings.TrimPrefix(normalized[bestLen:], "/")
	return Resolution{IndexPath: remainder, Endpoint: best, Matched: true}
}

// UserPath re-prepends the endpoint's share prefix for display
func UserPath(endpoint config.ShareEndpoint, indexPath string) string {
	prefix := NormalizePath(endpoint.DisplayPath())
	indexPath = NormalizePath(indexPath)
	if indexPath == "" {
		return prefix
	}
	return prefix + "/" + indexPath
}

// ProtocolPath converts an index path into the path the attached share is
// asked for, including the endpoint's root sub-path.
func ProtocolPath(endpoint config.ShareEndpoint, indexPath string) string {
	root := NormalizePath(endpoint.RootPath)
	indexPath = NormalizePath(indexPath)
	switch {
	case root == "":
		return indexPath
	case indexPath == "":
		return root
	default:
		return root + "/" + indexPath
	}
}

// IsPathMatch reports whether candidate equals target or, when recursive,
// lies beneath it. Matching respects segment boundaries: "Music2" never
// matches target "Music".
func IsPathMatch(candidate, target string, recursive bool) bool {
	candidate = NormalizePath(candidate)
	target = NormalizePath(target)

	if candidate == target {
		return true
	}
	if !recursive {
		return false
	}
	if target == "" {
		// Everything lies beneath the root.
		return true
	}
	return strings.HasPrefix(candidate, target+"/")
}
