// Package api is the HTTP front door: image upload, catalogue search
// and health/debug endpoints.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/defibabylon/collectorsage/internal/catalogue"
	"github.com/defibabylon/collectorsage/internal/logging"
	"github.com/defibabylon/collectorsage/internal/pipeline"
	"github.com/defibabylon/collectorsage/internal/pricing"
)

// maxUploadBytes bounds cover photo uploads.
const maxUploadBytes = 16 << 20

// Appraiser runs a valuation from image bytes.
type Appraiser interface {
	Appraise(ctx context.Context, imageJPEG []byte) (*pipeline.Valuation, error)
}

// Searcher is the raw catalogue search behind /search.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]catalogue.Record, error)
}

// DebugInfo reports wiring state for /debug.
type DebugInfo func(ctx context.Context) map[string]any

// Server wires the handlers to the pipeline.
type Server struct {
	full     Appraiser
	fast     Appraiser
	searcher Searcher
	debug    DebugInfo
}

// NewServer builds the HTTP surface. fast may equal full when no
// separate fast pipeline is configured; searcher and debug may be nil.
func NewServer(full, fast Appraiser, searcher Searcher, debug DebugInfo) *Server {
	if fast == nil {
		fast = full
	}
	return &Server{full: full, fast: fast, searcher: searcher, debug: debug}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = maxUploadBytes

	r.GET("/", s.handleRoot)
	r.GET("/test", s.handleTest)
	r.GET("/debug", s.handleDebug)
	r.GET("/search", s.handleSearch)
	r.POST("/process_image", s.handleProcessImage(s.full))
	r.POST("/process_image_fast", s.handleProcessImage(s.fast))
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logging.API("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "collectorsage",
	})
}

func (s *Server) handleTest(c *gin.Context) {
	if s.full == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "valuation pipeline not configured",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "valuation pipeline ready",
	})
}

func (s *Server) handleDebug(c *gin.Context) {
	info := gin.H{
		"pipeline_configured": s.full != nil,
		"search_configured":   s.searcher != nil,
	}
	if s.debug != nil {
		for k, v := range s.debug(c.Request.Context()) {
			info[k] = v
		}
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalogue search not configured"})
		return
	}
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q required"})
		return
	}
	topK, _ := strconv.Atoi(c.DefaultQuery("top_k", "5"))

	records, err := s.searcher.Search(c.Request.Context(), query, topK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": records})
}

func (s *Server) handleProcessImage(appraiser Appraiser) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, _, err := c.Request.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no image file provided"})
			return
		}
		defer file.Close()

		image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil || len(image) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded image"})
			return
		}

		v, err := appraiser.Appraise(c.Request.Context(), image)
		if err != nil {
			status := http.StatusInternalServerError
			// No market comparables is an empty result, not a fault.
			if errors.Is(err, pipeline.ErrNoMarketplaceData) || errors.Is(err, pricing.ErrNoValidPrices) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, v)
	}
}
