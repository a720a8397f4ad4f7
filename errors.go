package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labshare/services"
)

// respondError bildet Service-Fehler auf HTTP-Statuscodes ab.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, services.ErrAuthorizationDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not authorized to perform this action"})
	case errors.Is(err, services.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrDependencyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete: other records depend on this resource"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidContent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "please upload a file or provide a URL"})
	default:
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// parseID liest den :id-Parameter; bei Fehlern wird 400 geantwortet.
func parseID(c *gin.Context) (uint, bool) {
	id, err := parseUint(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
