package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/muselink/muselink/internal/jobs"
	"github.com/muselink/muselink/internal/smb"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"pending_jobs": s.jobs.Pending(),
	})
}

func (s *Server) handleListShares(c *gin.Context) {
	type shareView struct {
		ID          uint   `json:"id"`
		Name        string `json:"name"`
		Host        string `json:"host"`
		DisplayPath string `json:"display_path"`
	}

	sources := s.scans.Sources()
	out := make([]shareView, 0, len(sources))
	for _, src := range sources {
		view := shareView{ID: src.ID, Name: src.Name, Host: src.Host}
		if ep, ok := s.scans.Endpoint(src.Name); ok {
			view.DisplayPath = ep.DisplayPath()
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"shares": out})
}

func (s *Server) handleListTracks(c *gin.Context) {
	sourceID, _ := strconv.ParseUint(c.Query("source_id"), 10, 32)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tracks, err := s.repo.ListTracks(uint(sourceID), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tracks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks, "count": len(tracks)})
}

func (s *Server) handleGetTrack(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track id"})
		return
	}
	track, err := s.repo.GetTrack(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "track not found"})
		return
	}
	c.JSON(http.StatusOK, track)
}

// handleDeleteTrack removes a track from the share and the catalog. The
// remote file is marked delete-pending first; a file already gone from
// the share still drops its catalog row.
func (s *Server) handleDeleteTrack(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track id"})
		return
	}
	track, err := s.repo.GetTrack(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "track not found"})
		return
	}

	src, ok := s.scans.Source(track.SourceID)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "track's source is no longer configured"})
		return
	}
	endpoint, ok := s.scans.Endpoint(src.Name)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "track's source is no longer configured"})
		return
	}

	session, err := smb.OpenSession(c.Request.Context(), s.dialer, endpoint)
	if err != nil {
		s.log.Error("Failed to connect to share", "share", endpoint.Name, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "share unavailable"})
		return
	}
	defer session.Close()

	if err := session.Share().Remove(smb.ProtocolPath(endpoint, track.FullPath)); err != nil && !smb.IsNotFound(err) {
		s.log.Error("Failed to delete remote file", "path", track.FullPath, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to delete remote file"})
		return
	}

	if err := s.repo.DeleteTrack(track.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove catalog entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": track.ID})
}

func (s *Server) handleStartScan(c *gin.Context) {
	var req struct {
		SourceID uint `json:"source_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_id is required"})
		return
	}
	if _, ok := s.scans.Source(req.SourceID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source"})
		return
	}

	jobID := s.jobs.SubmitScan(req.SourceID)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "source_id": req.SourceID})
}

func (s *Server) handleScanStatus(c *gin.Context) {
	sourceID, err := strconv.ParseUint(c.Param("sourceID"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source id"})
		return
	}
	progress, ok := s.scans.Progress(uint(sourceID))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan recorded for source"})
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (s *Server) handleSubmitAiBatch(c *gin.Context) {
	var req struct {
		TrackIDs []uint `json:"track_ids" binding:"required"`
		Prompt   string `json:"prompt"`
		Model    string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.TrackIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track_ids is required"})
		return
	}

	jobID := s.jobs.SubmitAiBatch(req.TrackIDs, req.Prompt, req.Model)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "tracks": len(req.TrackIDs)})
}

func (s *Server) handleSubmitLyricsBatch(c *gin.Context) {
	var req struct {
		TrackIDs []uint `json:"track_ids" binding:"required"`
		Language string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.TrackIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track_ids is required"})
		return
	}

	jobID := s.jobs.SubmitLyricsBatch(req.TrackIDs, req.Language)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "tracks": len(req.TrackIDs)})
}

func (s *Server) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.All()})
}

func (s *Server) handleJobStatus(c *gin.Context) {
	status, ok := s.jobs.Status(c.Param("jobID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, statusView(status))
}

func (s *Server) handleRecentEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": s.eventBus.Recent()})
}

// statusView flattens the status for polling clients.
func statusView(status jobs.JobStatus) gin.H {
	return gin.H{
		"id":      status.ID,
		"kind":    status.Kind,
		"state":   status.State,
		"total":   status.Total,
		"done":    status.Done,
		"failed":  status.Failed,
		"message": status.Message,
	}
}
