package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labshare/services"
)

func setupStrainRoutes(router gin.IRouter, strains *services.StrainService, log *zap.Logger) {
	rg := router.Group("/strains")

	// Optional gefiltert über ?project_id= oder ?assay_id=
	rg.GET("", func(c *gin.Context) {
		var filter services.StrainFilter
		for param, target := range map[string]**uint{"project_id": &filter.ProjectID, "assay_id": &filter.AssayID} {
			raw := c.Query(param)
			if raw == "" {
				continue
			}
			id, err := parseUint(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
				return
			}
			*target = &id
		}
		list, err := strains.List(c.Request.Context(), actorFrom(c), filter)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.POST("", func(c *gin.Context) {
		var in services.StrainCreate
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		res, err := strains.Create(c.Request.Context(), actorFrom(c), in)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		st, err := strains.Get(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	rg.PUT("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var in services.StrainUpdate
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		res, err := strains.Update(c.Request.Context(), actorFrom(c), id, in)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		if err := strains.Destroy(c.Request.Context(), actorFrom(c), id); err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	})
}
