package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"labshare/services"
)

// maxUploadSize begrenzt hochgeladene Inhalte.
const maxUploadSize = 64 << 20

func parseUint(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	return uint(n), err
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

// readContent liest die Datei "content" oder das Feld "content_url" eines Multipart-Formulars.
func readContent(c *gin.Context) (services.ContentInput, error) {
	var in services.ContentInput
	file, header, err := c.Request.FormFile("content")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		in.URL = c.PostForm("content_url")
		return in, nil
	case err != nil:
		return in, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		return in, err
	}
	if len(data) > maxUploadSize {
		return in, fmt.Errorf("file exceeds %d bytes", maxUploadSize)
	}
	in.Data = data
	in.Filename = header.Filename
	in.ContentType = header.Header.Get("Content-Type")
	return in, nil
}

func setupPresentationRoutes(router gin.IRouter, assets *services.AssetService, log *zap.Logger) {
	rg := router.Group("/presentations")

	rg.GET("", func(c *gin.Context) {
		list, err := assets.List(c.Request.Context(), actorFrom(c))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	// Multipart: "metadata" (JSON) plus Datei "content" oder "content_url".
	// JSON: Metadaten plus "content_url".
	rg.POST("", func(c *gin.Context) {
		var (
			in      services.PresentationCreate
			content services.ContentInput
			err     error
		)
		if isMultipart(c) {
			if meta := c.PostForm("metadata"); meta != "" {
				if err := json.Unmarshal([]byte(meta), &in); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata"})
					return
				}
			}
			if content, err = readContent(c); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		} else {
			var body struct {
				services.PresentationCreate
				ContentURL  string `json:"content_url"`
				ContentType string `json:"content_type"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			in = body.PresentationCreate
			content = services.ContentInput{URL: body.ContentURL, ContentType: body.ContentType}
		}

		res, err := assets.Create(c.Request.Context(), actorFrom(c), in, content)
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
		p, err := assets.Show(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	rg.GET("/:id/versions", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		versions, err := assets.Versions(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, versions)
	})

	// Geschützte Felder im Body werden ignoriert und als ignored_fields gemeldet
	rg.PUT("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var raw map[string]json.RawMessage
		if err := c.ShouldBindBodyWith(&raw, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		var in services.PresentationUpdate
		if err := c.ShouldBindBodyWith(&in, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		res, err := assets.UpdateMetadata(c.Request.Context(), actorFrom(c), id, in)
		if err != nil {
			respondError(c, log, err)
			return
		}
		ignored := services.IgnoredFields(raw)
		if len(ignored) > 0 {
			log.Debug("Ignored protected fields", zap.Uint("presentation_id", id), zap.Strings("fields", ignored))
		}
		c.JSON(http.StatusOK, gin.H{
			"presentation":   res.Presentation,
			"sharing_denied": res.SharingDenied,
			"publish_log":    res.PublishLog,
			"ignored_fields": ignored,
		})
	})

	rg.POST("/:id/new-version", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var (
			content  services.ContentInput
			comments string
			err      error
		)
		if isMultipart(c) {
			if content, err = readContent(c); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			comments = c.PostForm("revision_comments")
		} else {
			var body struct {
				ContentURL       string `json:"content_url"`
				ContentType      string `json:"content_type"`
				RevisionComments string `json:"revision_comments"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			content = services.ContentInput{URL: body.ContentURL, ContentType: body.ContentType}
			comments = body.RevisionComments
		}
		p, err := assets.SaveAsNewVersion(c.Request.Context(), actorFrom(c), id, content, comments)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	})

	rg.GET("/:id/download", func(c *gin.Context) {
		serveContent(c, assets, log)
	})
	// Kurzansicht, braucht nur das Leserecht
	rg.GET("/:id/preview", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		pv, err := assets.Preview(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, pv)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		if err := assets.Destroy(c.Request.Context(), actorFrom(c), id); err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	})
}

// serveContent streamt eine Version (?version=n, sonst die aktuelle) oder leitet auf externe Inhalte um.
func serveContent(c *gin.Context, assets *services.AssetService, log *zap.Logger) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	version := 0
	if raw := c.Query("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
			return
		}
		version = v
	}
	d, err := assets.Download(c.Request.Context(), actorFrom(c), id, version)
	if err != nil {
		respondError(c, log, err)
		return
	}
	if d.Body == nil {
		c.Redirect(http.StatusFound, d.URL)
		return
	}
	defer d.Body.Close()
	contentType := d.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, d.Size, contentType, d.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", d.Filename),
	})
}
