package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labshare/models"
	"labshare/services"
)

// parseState akzeptiert den Namen ("waiting_for_approval") oder den Zahlwert.
func parseState(raw string) (models.PublishState, bool) {
	for _, s := range []models.PublishState{
		models.PublishStateApproved, models.PublishStateWaitingForApproval, models.PublishStateRejected,
	} {
		if raw == s.String() || raw == strconv.Itoa(int(s)) {
			return s, true
		}
	}
	return models.PublishStateNone, false
}

func setupPublishRoutes(router gin.IRouter, publish *services.PublishService, log *zap.Logger) {
	rg := router.Group("/publish-logs")

	rg.GET("", func(c *gin.Context) {
		var state *models.PublishState
		if raw := c.Query("state"); raw != "" {
			s, ok := parseState(raw)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
				return
			}
			state = &s
		}
		logs, err := publish.List(c.Request.Context(), actorFrom(c), state)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	})

	rg.POST("/:id/approve", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		entry, err := publish.Approve(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	})

	rg.POST("/:id/reject", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var body struct {
			Comment string `json:"comment"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}
		entry, err := publish.Reject(c.Request.Context(), actorFrom(c), id, body.Comment)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	})
}
