package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labshare/services"
)

func setupSearchRoutes(router gin.IRouter, search *services.SearchService, log *zap.Logger) {
	router.GET("/search", func(c *gin.Context) {
		results, err := search.Search(c.Request.Context(), actorFrom(c), c.Query("search_query"), c.Query("search_type"))
		if err != nil {
			respondError(c, log, err)
			return
		}
		if results == nil {
			results = []services.SearchResult{}
		}
		c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
	})
}
