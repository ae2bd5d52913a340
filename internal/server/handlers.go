package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/core/projection"
)

const maxQuestionnaireBytes = 8 << 20

func (s *Server) PercentageAll(c *gin.Context) {
	values, err := s.deps.Coverage.PercentageAll(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, values)
}

func (s *Server) Percentage(c *gin.Context) {
	id := c.Param("product_id")
	ctx := c.Request.Context()

	pct, err := s.deps.Coverage.Percentage(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	breakdown, err := s.deps.Coverage.Breakdown(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": id,
		"percentage": pct,
		"breakdown":  breakdown,
	})
}

func (s *Server) Remap(c *gin.Context) {
	res, err := s.deps.Mapper.Remap(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.Counterparts == nil {
		res.Counterparts = []model.PairOutcome{}
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) Sync(c *gin.Context) {
	edges, err := s.deps.Mapper.AllEdges(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if edges == nil {
		edges = []model.MappingEdge{}
	}
	c.JSON(http.StatusOK, gin.H{"edges": edges, "count": len(edges)})
}

func (s *Server) ImportQuestionnaire(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxQuestionnaireBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "payload_too_large", err)
			return
		}
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := s.deps.Importer.ImportControls(c.Request.Context(), c.Param("product_id"), body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) Refresh(c *gin.Context) {
	if s.deps.Populator == nil {
		respondError(c, http.StatusServiceUnavailable, "catalog_disabled", errors.New("catalog population is not configured"))
		return
	}
	if err := s.deps.Populator.Start(s.deps.BaseContext); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) LastRefresh(c *gin.Context) {
	if s.deps.Populator == nil {
		respondError(c, http.StatusServiceUnavailable, "catalog_disabled", errors.New("catalog population is not configured"))
		return
	}
	report, ok := s.deps.Populator.Last()
	if !ok {
		respondError(c, http.StatusNotFound, "not_found", errors.New("no population has finished yet"))
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) GraphSync(c *gin.Context) {
	if s.deps.Graph == nil || !s.deps.Graph.Enabled() {
		s.fail(c, projection.ErrDisabled)
		return
	}
	res, err := s.deps.Graph.Sync(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) Healthz(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(c.Request.Context()); err != nil {
			respondError(c, http.StatusServiceUnavailable, "unhealthy", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
