package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	"github.com/mediabridge/asset-gateway/internal/http/response"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
	"github.com/mediabridge/asset-gateway/internal/services"
)

// AssetHandler serves the image/AV proxy routes: gate, stage, then either
// answer directly or forward to the downstream renderer.
type AssetHandler struct {
	log        *logger.Logger
	dispatcher services.ReverseProxyDispatcher
}

func NewAssetHandler(log *logger.Logger, dispatcher services.ReverseProxyDispatcher) *AssetHandler {
	return &AssetHandler{
		log:        log.With("handler", "AssetHandler"),
		dispatcher: dispatcher,
	}
}

func (h *AssetHandler) Proxy(c *gin.Context) {
	id, err := assetIDFromParams(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	outcome, err := h.dispatcher.Handle(c.Request.Context(), c.Request, id)
	if err != nil {
		h.log.Error("Dispatch failed", "asset", id.String(), "error", err)
		response.RespondError(c, http.StatusInternalServerError, "internal", fmt.Errorf("request dispatch failed"))
		return
	}

	if outcome.Forward {
		h.dispatcher.Forward(c.Writer, c.Request, outcome)
		return
	}

	if outcome.Cookie != nil {
		http.SetCookie(c.Writer, outcome.Cookie)
	}
	for k, vals := range outcome.Header {
		for _, v := range vals {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Writer.WriteHeader(outcome.StatusCode)
	_, _ = c.Writer.Write(outcome.Body)
}

func assetIDFromParams(c *gin.Context) (assets.ID, error) {
	customer, err := strconv.Atoi(c.Param("customer"))
	if err != nil {
		return assets.ID{}, fmt.Errorf("customer must be numeric")
	}
	space, err := strconv.Atoi(c.Param("space"))
	if err != nil {
		return assets.ID{}, fmt.Errorf("space must be numeric")
	}
	asset := c.Param("image")
	if asset == "" {
		return assets.ID{}, fmt.Errorf("missing asset identifier")
	}
	return assets.ID{Customer: customer, Space: space, Asset: asset}, nil
}
