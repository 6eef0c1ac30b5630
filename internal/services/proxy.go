package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

// ProxyConfig is immutable after construction; the embedded client holds no
// per-request state and is safe for concurrent use.
type ProxyConfig struct {
	// DownstreamAddr is the fixed renderer address, e.g. "http://renderer:8182".
	DownstreamAddr string
	// ForwardTimeout bounds a single downstream call.
	ForwardTimeout time.Duration
	// PublicInfoOnUnauthorized keeps the info descriptor visible on 401.
	PublicInfoOnUnauthorized bool
}

// ProxyOutcome is either a direct status-code response or a forward
// instruction for the downstream renderer.
type ProxyOutcome struct {
	Forward bool

	StatusCode int
	Header     http.Header
	Body       []byte

	// Cookie is set on the outgoing response when the gate authorized the
	// request.
	Cookie *http.Cookie
}

// ReverseProxyDispatcher runs the gate and orchestration for an asset
// request and decides between answering directly and forwarding.
type ReverseProxyDispatcher interface {
	Handle(ctx context.Context, r *http.Request, id assets.ID) (*ProxyOutcome, error)
	Forward(w http.ResponseWriter, r *http.Request, outcome *ProxyOutcome)
}

type reverseProxyDispatcher struct {
	log          *logger.Logger
	gate         AccessGate
	orchestrator AssetOrchestrator
	cfg          ProxyConfig
	client       *http.Client
}

func NewReverseProxyDispatcher(log *logger.Logger, gate AccessGate, orch AssetOrchestrator, cfg ProxyConfig) ReverseProxyDispatcher {
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = 100 * time.Second
	}
	client := &http.Client{
		Timeout: cfg.ForwardTimeout,
		// Redirects from the renderer are surfaced to the caller, never
		// chased on the outbound hop.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &reverseProxyDispatcher{
		log:          log.With("service", "ReverseProxyDispatcher"),
		gate:         gate,
		orchestrator: orch,
		cfg:          cfg,
		client:       client,
	}
}

func (d *reverseProxyDispatcher) Handle(ctx context.Context, r *http.Request, id assets.ID) (*ProxyOutcome, error) {
	staged, err := d.orchestrator.Orchestrate(ctx, id)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return directJSON(http.StatusNotFound, map[string]string{"error": "asset not found"}), nil
	}
	if err != nil {
		d.log.Error("Asset staging failed", "asset", id.String(), "error", err)
		return directJSON(http.StatusInternalServerError, map[string]string{"error": "asset staging failed"}), nil
	}

	res, err := d.gate.Validate(ctx, staged, r)
	if err != nil {
		return nil, fmt.Errorf("access validation: %w", err)
	}

	if res.Decision == AccessUnauthorized {
		// Unauthorized withholds the payload but may still render the
		// public descriptor.
		if d.cfg.PublicInfoOnUnauthorized {
			return directJSON(http.StatusUnauthorized, publicInfo(staged)), nil
		}
		return directJSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"}), nil
	}

	return &ProxyOutcome{Forward: true, Cookie: res.Cookie}, nil
}

// Forward replays the original request against the downstream renderer.
// Downstream faults map to 502 and never propagate as unhandled errors.
func (d *reverseProxyDispatcher) Forward(w http.ResponseWriter, r *http.Request, outcome *ProxyOutcome) {
	if outcome.Cookie != nil {
		http.SetCookie(w, outcome.Cookie)
	}

	target := strings.TrimRight(d.cfg.DownstreamAddr, "/") + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		d.log.Error("Downstream request build failed", "target", target, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	copyForwardHeaders(req.Header, r.Header)

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Error("Downstream forward failed", "target", target, "error", fmt.Errorf("%w: %v", pkgerrors.ErrProxy, err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		d.log.Warn("Downstream response copy interrupted", "target", target, "error", err)
	}
}

// copyForwardHeaders passes request headers through minus cookies and
// hop-by-hop headers; Accept-Encoding is left to the transport so response
// compression is negotiated per hop.
func copyForwardHeaders(dst, src http.Header) {
	for k, vals := range src {
		switch http.CanonicalHeaderKey(k) {
		case "Cookie", "Connection", "Keep-Alive", "Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade", "Accept-Encoding":
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

func publicInfo(staged *assets.StagedAsset) map[string]any {
	info := map[string]any{
		"id":     staged.ID.String(),
		"family": string(staged.Kind),
	}
	if staged.Image != nil {
		info["width"] = staged.Image.Width
		info["height"] = staged.Image.Height
		info["sizes"] = staged.Image.ThumbnailSizes
	}
	return info
}

func directJSON(status int, payload any) *ProxyOutcome {
	body, _ := json.Marshal(payload)
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &ProxyOutcome{StatusCode: status, Header: h, Body: body}
}
