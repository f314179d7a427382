package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gbrigandi/soctalk/pkg/checkpoint"
	"github.com/gbrigandi/soctalk/pkg/hil"
	"github.com/gbrigandi/soctalk/pkg/settings"
	"github.com/gbrigandi/soctalk/pkg/store"
)

// respondError maps a domain error to its HTTP status and writes a JSON
// error body, mirroring the error kinds from spec.md §7.
func respondError(c *gin.Context, err error) {
	var concErr *store.ConcurrencyError
	switch {
	case errors.As(err, &concErr):
		c.JSON(http.StatusConflict, gin.H{"error": concErr.Error()})
	case errors.Is(err, checkpoint.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, hil.ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": "review already resolved"})
	case errors.Is(err, hil.ErrNoPendingReview):
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending review"})
	case errors.Is(err, settings.ErrReadOnly):
		c.JSON(http.StatusForbidden, gin.H{"error": "settings are read-only"})
	case errors.Is(err, settings.ErrUnknownKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errInvalidTransition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("api: unexpected error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

var (
	errNotFound          = errors.New("resource not found")
	errInvalidTransition = errors.New("invalid status transition")
)
