package server

import "github.com/gin-gonic/gin"

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/shares", s.handleListShares)

		api.GET("/tracks", s.handleListTracks)
		api.GET("/tracks/:id", s.handleGetTrack)
		api.DELETE("/tracks/:id", s.handleDeleteTrack)

		api.POST("/scans", s.handleStartScan)
		api.GET("/scans/:sourceID", s.handleScanStatus)

		api.POST("/jobs/ai", s.handleSubmitAiBatch)
		api.POST("/jobs/lyrics", s.handleSubmitLyricsBatch)
		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:jobID", s.handleJobStatus)

		api.GET("/events/recent", s.handleRecentEvents)

		api.GET("/stream", s.handleStream)
	}
}
