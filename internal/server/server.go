package server

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/core/populate"
	"github.com/agenthands/crosswalk/internal/core/projection"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/metrics"
)

type Mapper interface {
	Remap(ctx context.Context, productID string) (model.RemapResult, error)
	AllEdges(ctx context.Context) ([]model.MappingEdge, error)
}

type CoverageReader interface {
	Percentage(ctx context.Context, productID string) (float64, error)
	PercentageAll(ctx context.Context) (map[string]float64, error)
	Breakdown(ctx context.Context, productID string) (map[string]float64, error)
}

type ControlImporter interface {
	ImportControls(ctx context.Context, productID string, payload []byte) (model.ImportResult, error)
}

type Populator interface {
	Start(ctx context.Context) error
	Last() (populate.Report, bool)
}

type GraphSyncer interface {
	Enabled() bool
	Sync(ctx context.Context) (projection.Result, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components behind the HTTP surface. Populator and Graph may
// be nil when catalog population or graph projection is not configured.
type Deps struct {
	Mapper    Mapper
	Coverage  CoverageReader
	Importer  ControlImporter
	Populator Populator
	Graph     GraphSyncer
	Health    Pinger
	// BaseContext outlives single requests; background work started by a
	// request runs under it.
	BaseContext context.Context
}

type Server struct {
	deps    Deps
	log     *logger.Logger
	metrics *metrics.Metrics
}

func New(deps Deps, baseLog *logger.Logger, mt *metrics.Metrics) *Server {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	return &Server{deps: deps, log: baseLog.With("component", "http"), metrics: mt}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log), requestMetrics(s.metrics))

	r.GET("/percentage", s.PercentageAll)
	r.GET("/percentage/:product_id", s.Percentage)
	r.POST("/remap/:product_id", s.Remap)
	r.GET("/sync", s.Sync)
	r.POST("/products/:product_id/questionnaire", s.ImportQuestionnaire)
	r.POST("/refresh", s.Refresh)
	r.GET("/refresh", s.LastRefresh)
	r.POST("/graph/sync", s.GraphSync)
	r.GET("/healthz", s.Healthz)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return r
}

// HTTPServer wraps the router for graceful shutdown by the caller.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: s.SetupRouter(),
		BaseContext: func(_ net.Listener) context.Context {
			return s.deps.BaseContext
		},
	}
}
