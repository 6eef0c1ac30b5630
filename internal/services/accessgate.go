package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sessionrepo "github.com/mediabridge/asset-gateway/internal/data/repos/auth"
	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	authtypes "github.com/mediabridge/asset-gateway/internal/domain/auth"
	pkgerrors "github.com/mediabridge/asset-gateway/internal/pkg/errors"
	"github.com/mediabridge/asset-gateway/internal/pkg/logger"
)

type AccessDecision string

const (
	AccessOpen         AccessDecision = "open"
	AccessUnauthorized AccessDecision = "unauthorized"
	AccessAuthorized   AccessDecision = "authorized"
)

// AccessResult carries the gate decision plus the session cookie to set on
// the outgoing response when Authorized.
type AccessResult struct {
	Decision AccessDecision
	Cookie   *http.Cookie
	Session  *authtypes.SessionUser
}

type AccessGate interface {
	Validate(ctx context.Context, asset *assets.StagedAsset, r *http.Request) (AccessResult, error)
}

type accessGate struct {
	log        *logger.Logger
	sessions   sessionrepo.SessionRepo
	jwtSecret  []byte
	cookieBase string
	cookieTTL  time.Duration
	now        func() time.Time
}

func NewAccessGate(
	log *logger.Logger,
	sessions sessionrepo.SessionRepo,
	jwtSecret string,
	cookieBase string,
	cookieTTL time.Duration,
) AccessGate {
	return &accessGate{
		log:        log.With("service", "AccessGate"),
		sessions:   sessions,
		jwtSecret:  []byte(jwtSecret),
		cookieBase: cookieBase,
		cookieTTL:  cookieTTL,
		now:        time.Now,
	}
}

// Validate gates one request against one asset. An Unauthorized decision is
// a normal outcome, never an error: callers may still render public
// metadata around it.
func (g *accessGate) Validate(ctx context.Context, asset *assets.StagedAsset, r *http.Request) (AccessResult, error) {
	if !asset.RequiresAuth() {
		return AccessResult{Decision: AccessOpen}, nil
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = g.cookieToken(r, asset.ID.Customer)
	}
	if token == "" {
		return AccessResult{Decision: AccessUnauthorized}, nil
	}

	session, err := g.sessions.GetByCustomerToken(ctx, nil, asset.ID.Customer, token)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return AccessResult{Decision: AccessUnauthorized}, nil
	}
	if err != nil {
		return AccessResult{}, fmt.Errorf("session lookup: %w", err)
	}
	if session.Expired(g.now()) {
		return AccessResult{Decision: AccessUnauthorized}, nil
	}
	if !session.HasAnyRole(asset.Roles) {
		return AccessResult{Decision: AccessUnauthorized}, nil
	}

	cookie, err := g.mintCookie(asset.ID.Customer, token)
	if err != nil {
		return AccessResult{}, fmt.Errorf("mint session cookie: %w", err)
	}
	return AccessResult{Decision: AccessAuthorized, Cookie: cookie, Session: session}, nil
}

// bearerToken strips the fixed "Bearer " prefix. A missing or short header
// is simply no token, never an error.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

type sessionClaims struct {
	Customer int    `json:"customer"`
	Token    string `json:"token"`
	jwt.RegisteredClaims
}

func (g *accessGate) cookieName(customer int) string {
	return fmt.Sprintf("%s-%d", g.cookieBase, customer)
}

// cookieToken recovers the session token from a previously minted cookie so
// follow-up requests need not replay the Authorization header.
func (g *accessGate) cookieToken(r *http.Request, customer int) string {
	c, err := r.Cookie(g.cookieName(customer))
	if err != nil || c.Value == "" {
		return ""
	}
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(c.Value, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.jwtSecret, nil
	})
	if err != nil || !parsed.Valid || claims.Customer != customer {
		return ""
	}
	return claims.Token
}

func (g *accessGate) mintCookie(customer int, token string) (*http.Cookie, error) {
	expires := g.now().Add(g.cookieTTL)
	claims := sessionClaims{
		Customer: customer,
		Token:    token,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(g.now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     g.cookieName(customer),
		Value:    signed,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}
