package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	"github.com/mediabridge/asset-gateway/internal/domain/projections"
	"github.com/mediabridge/asset-gateway/internal/http/response"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
	"github.com/mediabridge/asset-gateway/internal/services"
)

// NamedQueryHandler resolves a named query and serves its generated
// projection document.
type NamedQueryHandler struct {
	log        *logger.Logger
	engine     services.NamedQueryEngine
	cache      services.ProjectionCache
	publicBase string
}

func NewNamedQueryHandler(log *logger.Logger, engine services.NamedQueryEngine, cache services.ProjectionCache, publicBase string) *NamedQueryHandler {
	return &NamedQueryHandler{
		log:        log.With("handler", "NamedQueryHandler"),
		engine:     engine,
		cache:      cache,
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

func (h *NamedQueryHandler) Resolve(c *gin.Context) {
	customer, err := strconv.Atoi(c.Param("customer"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("customer must be numeric"))
		return
	}
	queryName := c.Param("queryName")
	args := splitArgs(c.Param("args"))

	result, err := h.engine.Resolve(c.Request.Context(), customer, queryName, args)
	if err != nil {
		h.log.Error("Named query execution failed", "customer", customer, "query", queryName, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "internal", fmt.Errorf("query execution failed"))
		return
	}
	if result.Empty {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("no named query %q", queryName))
		return
	}
	if result.Query.Faulty {
		response.RespondError(c, http.StatusBadRequest, "faulty_query", fmt.Errorf("arguments do not satisfy query %q", queryName))
		return
	}

	key := projections.Key{Customer: customer, QueryName: queryName, Args: args}
	version := services.ResultVersion(result)
	opts := services.GetOptions{NoWait: c.Query("noWait") == "true"}
	generator := services.ManifestGenerator(result, h.assetPath)

	proj, err := h.cache.GetOrCreate(c.Request.Context(), key, version, opts, generator)
	if err != nil {
		h.log.Error("Projection generation failed", "key", key.String(), "error", err)
		response.RespondError(c, http.StatusInternalServerError, "generation_failed", fmt.Errorf("projection generation failed"))
		return
	}

	switch proj.Status {
	case projections.StatusAvailable:
		defer proj.Stream.Close()
		c.DataFromReader(http.StatusOK, proj.SizeBytes, "application/json", proj.Stream, nil)
	case projections.StatusInProcess:
		c.JSON(http.StatusAccepted, gin.H{"status": "in_process"})
	case projections.StatusNotFound:
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("no content for query %q", queryName))
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal", fmt.Errorf("unexpected projection status %s", proj.Status))
	}
}

func (h *NamedQueryHandler) assetPath(id assets.ID) string {
	return fmt.Sprintf("%s/iiif-img/%d/%d/%s", h.publicBase, id.Customer, id.Space, id.Asset)
}

func splitArgs(raw string) []string {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "/")
}
