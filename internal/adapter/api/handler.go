// Package api serves located origins and the station registry as read-only
// JSON under /v1.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

const requestTimeout = 10 * time.Second

// OriginReader is the read side of an origin store.
type OriginReader interface {
	ListOrigins(ctx context.Context, f domain.OriginFilter) ([]domain.Origin, error)
	GetOrigin(ctx context.Context, key string) (domain.Origin, error)
}

// StationLister lists the cached station registry.
type StationLister interface {
	List() []domain.Station
	LoadedAt() time.Time
}

// Handler routes the v1 API.
type Handler struct {
	origins  OriginReader
	stations StationLister
	logger   *slog.Logger
	engine   *gin.Engine
}

// NewHandler builds the router.
func NewHandler(origins OriginReader, stations StationLister, logger *slog.Logger) *Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	h := &Handler{origins: origins, stations: stations, logger: logger, engine: engine}

	v1 := engine.Group("/v1")
	v1.GET("/origins", h.listOrigins)
	v1.GET("/origins/:key", h.getOrigin)
	v1.GET("/stations", h.listStations)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// GET /v1/origins?since=RFC3339&until=RFC3339&limit=N
func (h *Handler) listOrigins(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	origins, err := h.origins.ListOrigins(ctx, filter)
	if err != nil {
		h.logger.Error("list origins failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if origins == nil {
		origins = []domain.Origin{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": origins,
		"meta": gin.H{"count": len(origins), "limit": filter.EffectiveLimit()},
	})
}

// GET /v1/origins/:key
func (h *Handler) getOrigin(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	key := c.Param("key")
	origin, err := h.origins.GetOrigin(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "origin not found"})
		return
	case err != nil:
		h.logger.Error("get origin failed", "association_key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": origin})
}

// GET /v1/stations
func (h *Handler) listStations(c *gin.Context) {
	stations := h.stations.List()
	meta := gin.H{"count": len(stations)}
	if loaded := h.stations.LoadedAt(); !loaded.IsZero() {
		meta["loaded_at"] = loaded
	}
	c.JSON(http.StatusOK, gin.H{"data": stations, "meta": meta})
}

func parseFilter(c *gin.Context) (domain.OriginFilter, error) {
	var f domain.OriginFilter
	var err error
	if v := c.Query("since"); v != "" {
		if f.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return f, errors.New("since must be an RFC 3339 timestamp")
		}
	}
	if v := c.Query("until"); v != "" {
		if f.Until, err = time.Parse(time.RFC3339, v); err != nil {
			return f, errors.New("until must be an RFC 3339 timestamp")
		}
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Until.After(f.Since) {
		return f, errors.New("until must be after since")
	}
	if v := c.Query("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
	}
	return f, nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
