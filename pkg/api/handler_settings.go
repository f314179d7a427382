package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getSettings returns the resolved runtime settings (DB overrides layered
// on compiled-in defaults).
func (s *Server) getSettings(c *gin.Context) {
	cur, err := s.settingsProvider.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cur)
}

type putSettingsRequest struct {
	Key   string `json:"key" binding:"required"`
	Value any    `json:"value"`
}

// putSettings updates a single setting key. Rejects with 403 if the
// provider is read-only, 400 for an unknown key.
func (s *Server) putSettings(c *gin.Context) {
	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if err := s.settingsProvider.Set(c.Request.Context(), req.Key, req.Value); err != nil {
		respondError(c, err)
		return
	}
	cur, err := s.settingsProvider.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cur)
}

// exportSettings renders the resolved runtime settings as YAML, for
// operators to snapshot the running configuration outside the database.
func (s *Server) exportSettings(c *gin.Context) {
	cur, err := s.settingsProvider.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := cur.ExportYAML()
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/x-yaml", data)
}

// resetSettings restores every setting to its compiled-in default.
func (s *Server) resetSettings(c *gin.Context) {
	if err := s.settingsProvider.Reset(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	cur, err := s.settingsProvider.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cur)
}
