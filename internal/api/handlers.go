package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imagyn/domain/core"
	"imagyn/domain/generation"
	apperrors "imagyn/internal/errors"
	"imagyn/internal/report"
)

const defaultHistoryLimit = 10

func (s *Server) respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request error", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  apperrors.CodeOf(err),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleGenerate creates a new image
func (s *Server) handleGenerate(c *gin.Context) {
	var req generation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.InvalidInput("invalid request body: "+err.Error()))
		return
	}

	rec, err := s.service.Generate(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"image":   rec,
		"summary": report.Generation(rec),
	})
}

// handleEdit re-generates an existing image with a new prompt
func (s *Server) handleEdit(c *gin.Context) {
	var req generation.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperrors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	id, err := core.ParseArtifactID(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	req.ImageID = id

	rec, err := s.service.Edit(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"image":       rec,
		"original_id": id,
		"summary":     report.Generation(rec),
	})
}

// handleHistory lists recent images, newest first
func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(c, apperrors.InvalidInput("limit must be an integer"))
			return
		}
		limit = n
	}

	records, err := s.service.History(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"images": records,
		"count":  len(records),
	})
}

func (s *Server) handleGetImage(c *gin.Context) {
	id, err := core.ParseArtifactID(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	inline, _ := strconv.ParseBool(c.DefaultQuery("inline", "false"))

	rec, err := s.service.Lookup(c.Request.Context(), id, inline)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"image":   rec,
		"details": report.Details(rec),
	})
}

// handleGetImageContent streams the stored file
func (s *Server) handleGetImageContent(c *gin.Context) {
	id, err := core.ParseArtifactID(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	rec, err := s.service.Lookup(c.Request.Context(), id, false)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if _, err := os.Stat(rec.AbsolutePath); err != nil {
		s.respondError(c, core.NewNotFoundError("image file", id.String()))
		return
	}
	c.File(rec.AbsolutePath)
}

func (s *Server) handleDelete(c *gin.Context) {
	id, err := core.ParseArtifactID(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.service.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListAdapters(c *gin.Context) {
	adapters, err := s.service.ListAdapters(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"adapters": adapters,
		"count":    len(adapters),
	})
}

// handleStatus reports server status as JSON, markdown or HTML
func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.service.Status(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, st)
	case "markdown", "md":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Status(st)))
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", report.ToHTML(report.Status(st)))
	default:
		s.respondError(c, apperrors.InvalidInput("format must be json, markdown or html"))
	}
}
