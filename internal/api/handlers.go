// Package api serves queries over HTTP. GET /v1/{entity} takes the canonical
// query parameters and answers with the result envelope.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nrjais/emquery/internal/catalog"
	"github.com/nrjais/emquery/internal/metrics"
	"github.com/nrjais/emquery/pkg/compression"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/query"
)

type Handlers struct {
	catalog          Catalog
	minCompressBytes int
}

// NewHandlers compresses response bodies of at least minCompressBytes for
// clients that accept zstd.
func NewHandlers(c Catalog, minCompressBytes int) *Handlers {
	return &Handlers{catalog: c, minCompressBytes: minCompressBytes}
}

func NewRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("", h.HandleListEntities)
	v1.GET("/:entity", h.HandleQuery)
	return r
}

// HandleQuery handles GET /v1/:entity.
//
// Response:
//
//	200 OK: query.Envelope
//	400 Bad Request: malformed query or policy violation
//	404 Not Found: unknown entity
//	500 Internal Server Error: data source failure
func (h *Handlers) HandleQuery(c *gin.Context) {
	start := time.Now()
	requestID := getOrCreateRequestID(c)
	entity := c.Param("entity")
	logger := slog.With("request_id", requestID, "handler", "HandleQuery", "entity", entity)

	env, err := h.catalog.QueryValues(c.Request.Context(), entity, c.Request.URL.Query())
	metrics.Observe(entity, metrics.TransportHTTP, start, rowCount(env), err)
	if err != nil {
		statusCode, resp := errorResponse(err)
		if statusCode == http.StatusInternalServerError {
			logger.Error("Query failed", "error", err)
		} else {
			logger.Warn("Query rejected", "error", err, "code", resp.Code)
		}
		c.JSON(statusCode, resp)
		return
	}

	logger.Debug("Query executed", "query", env.Query.String(), "duration", time.Since(start))
	h.writeJSON(c, logger, env)
}

// HandleListEntities handles GET /v1.
func (h *Handlers) HandleListEntities(c *gin.Context) {
	c.JSON(http.StatusOK, EntitiesResponse{Entities: h.catalog.Names()})
}

func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Entities: len(h.catalog.Names())})
}

func (h *Handlers) writeJSON(c *gin.Context, logger *slog.Logger, env *query.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		logger.Error("Failed to encode query result", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to encode query result",
			Code:  CodeInternal,
		})
		return
	}

	c.Header("Vary", "Accept-Encoding")
	if len(body) >= h.minCompressBytes && compression.Accepts(c.GetHeader("Accept-Encoding")) {
		compressed := compression.Compress(body)
		logger.Debug("Compressed response",
			"size", humanize.Bytes(uint64(len(body))),
			"compressed", humanize.Bytes(uint64(len(compressed))))
		c.Header("Content-Encoding", compression.Zstd)
		body = compressed
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func errorResponse(err error) (int, ErrorResponse) {
	var (
		parseErr  *qerr.ParseError
		policyErr *qerr.PolicyError
	)
	switch {
	case errors.As(err, &parseErr):
		return http.StatusBadRequest, ErrorResponse{
			Error: parseErr.Message,
			Code:  CodeParse,
			Field: parseErr.Field,
			Query: parseErr.Query,
		}
	case errors.As(err, &policyErr):
		return http.StatusBadRequest, ErrorResponse{
			Error: policyErr.Message,
			Code:  CodePolicy,
			Field: policyErr.Field,
			Query: policyErr.Query,
		}
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  CodeNotFound,
		}
	}
	return http.StatusInternalServerError, ErrorResponse{
		Error: "Failed to execute query",
		Code:  CodeInternal,
	}
}

func rowCount(env *query.Envelope) int {
	if env == nil {
		return -1
	}
	if rows, ok := env.Data.([]any); ok {
		return len(rows)
	}
	return -1
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
