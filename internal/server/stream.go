package server

import (
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/muselink/muselink/internal/database"
	"github.com/muselink/muselink/internal/smb"
	"github.com/muselink/muselink/internal/transcode"
)

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
}

// handleStream serves one audio file from a remote share. Each request
// opens its own SMB session; the stream owns it and closing the stream
// tears everything down, including a running transcoder.
func (s *Server) handleStream(c *gin.Context) {
	userPath := c.Query("path")
	if userPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	res := smb.ResolveUserToIndexPath(userPath, s.shareEndpoints())
	if !res.Matched {
		// No endpoint prefix: treat the input as a raw index path and
		// recover the owning share from the catalog.
		fallback, ok := s.resolveRawIndexPath(res.IndexPath)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "path is not under any configured share"})
			return
		}
		res = fallback
	}

	session, err := smb.OpenSession(c.Request.Context(), s.dialer, res.Endpoint)
	if err != nil {
		s.log.Error("Failed to connect to share", "share", res.Endpoint.Name, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "share unavailable"})
		return
	}

	stream, err := smb.OpenFileStream(session, smb.ProtocolPath(res.Endpoint, res.IndexPath), true)
	if err != nil {
		session.Close()
		if smb.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		s.log.Error("Failed to open remote file", "path", res.IndexPath, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to open file"})
		return
	}

	if c.Query("transcode") == "true" || c.Query("transcode") == "1" {
		s.streamTranscoded(c, stream, res)
		return
	}
	defer stream.Close()

	ext := path.Ext(res.IndexPath)
	if ct, ok := contentTypes[ext]; ok {
		c.Header("Content-Type", ct)
	}
	// ServeContent handles Range requests against the seekable stream.
	http.ServeContent(c.Writer, c.Request, path.Base(res.IndexPath), time.Time{}, stream)
}

// streamTranscoded pipes the remote file through ffmpeg and writes MP3.
// The guard's Close runs whether the copy finishes or the client hangs
// up, so ffmpeg never outlives the request.
func (s *Server) streamTranscoded(c *gin.Context, stream *smb.RemoteFileStream, res smb.Resolution) {
	seek, _ := strconv.ParseFloat(c.Query("seek"), 64)

	opts := transcode.Options{SeekSeconds: seek}
	if track := s.trackFor(res); track != nil {
		trackID := track.ID
		opts.OnDuration = func(seconds float64) {
			if err := s.repo.UpdateDuration(trackID, seconds); err != nil {
				s.log.Warn("Failed to save scraped duration", "track_id", trackID, "error", err)
			}
		}
	}

	out, err := s.pipeline.Transcode(stream, opts)
	if err != nil {
		s.log.Error("Failed to start transcoder", "path", res.IndexPath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transcoder unavailable"})
		return
	}
	defer out.Close()

	c.Header("Content-Type", "audio/mpeg")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, out); err != nil {
		s.log.Debug("Stream interrupted", "path", res.IndexPath, "error", err)
	}
}

// resolveRawIndexPath maps a bare index path onto an endpoint. A single
// configured share owns every raw path; with several, the catalog row
// decides which source the path was indexed under.
func (s *Server) resolveRawIndexPath(indexPath string) (smb.Resolution, bool) {
	shares := s.shareEndpoints()
	if len(shares) == 1 {
		return smb.Resolution{IndexPath: indexPath, Endpoint: shares[0], Matched: true}, true
	}
	for _, src := range s.scans.Sources() {
		if _, err := s.repo.FindByPath(src.ID, indexPath); err != nil {
			continue
		}
		ep, ok := s.scans.Endpoint(src.Name)
		if !ok {
			continue
		}
		return smb.Resolution{IndexPath: indexPath, Endpoint: ep, Matched: true}, true
	}
	return smb.Resolution{}, false
}

// trackFor looks up the catalog row behind a resolved path, if the file
// was ever indexed. Streaming works for unindexed files too; they just
// never get a duration update.
func (s *Server) trackFor(res smb.Resolution) *database.Track {
	for _, src := range s.scans.Sources() {
		if src.Name != res.Endpoint.Name {
			continue
		}
		track, err := s.repo.FindByPath(src.ID, res.IndexPath)
		if err != nil {
			return nil
		}
		return track
	}
	return nil
}
