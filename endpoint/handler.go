package endpoint

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/albumauth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Authority is the subset of [albumauth.Authority] the handlers call.
type Authority interface {
	Issue(ctx context.Context, memberID, username string) (*albumauth.TokenPair, error)
	Rotate(ctx context.Context, presentedRefreshID string) (*albumauth.TokenPair, error)
	Logout(ctx context.Context, refreshID string) error
	RevokeAllFamiliesForMember(ctx context.Context, memberID string) (int, error)
	Families(ctx context.Context, memberID string) ([]albumauth.FamilyInfo, error)
}

const (
	RequestIDHeader   = "X-Request-ID"
	DefaultCookieName = "albumauth_refresh"
)

// Options controls the refresh cookie and error responses.
type Options struct {
	CookieName   string
	CookiePath   string
	CookieDomain string
	CookieSecure bool
	// RetryAfter is sent with 503 responses.
	RetryAfter time.Duration
	Logger     *slog.Logger
}

type Handler struct {
	authority Authority
	opts      Options
	logger    *slog.Logger
}

func NewHandler(authority Authority, opts Options) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.CookiePath == "" {
		opts.CookiePath = "/auth"
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{authority: authority, opts: opts, logger: logger}
}

// RegisterPublic mounts the client-facing routes.
func (h *Handler) RegisterPublic(r gin.IRouter) {
	g := r.Group("/auth", RequestContext())
	g.POST("/refresh", h.refresh)
	g.POST("/logout", h.logout)
}

// RegisterInternal mounts the login hook and the administrative routes.
func (h *Handler) RegisterInternal(r gin.IRouter) {
	g := r.Group("/auth", RequestContext())
	g.POST("/session", h.issue)
	g.POST("/members/:memberID/revoke", h.revokeMember)
	g.GET("/members/:memberID/families", h.families)
}

// RequestContext assigns each request an X-Request-ID (keeping a sane
// client-supplied one) and carries it and the client IP into the request
// context for audit events.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		ctx := albumauth.WithRequestID(c.Request.Context(), id)
		ctx = albumauth.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type issueRequest struct {
	MemberID string `json:"member_id" binding:"required"`
	Username string `json:"username"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	FamilyID     string `json:"family_id"`
}

type familyResponse struct {
	FamilyID  string    `json:"family_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) issue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	pair, err := h.authority.Issue(c.Request.Context(), req.MemberID, req.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writePair(c, http.StatusCreated, pair)
}

func (h *Handler) refresh(c *gin.Context) {
	token, ok := h.presentedRefreshID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	pair, err := h.authority.Rotate(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, albumauth.ErrStoreUnavailable) && !errors.Is(err, albumauth.ErrRefreshRateLimited) {
			h.clearCookie(c)
		}
		h.writeError(c, err)
		return
	}
	h.writePair(c, http.StatusOK, pair)
}

func (h *Handler) logout(c *gin.Context) {
	token, ok := h.presentedRefreshID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.authority.Logout(c.Request.Context(), token); err != nil {
		if errors.Is(err, albumauth.ErrInvalidRefreshToken) {
			h.clearCookie(c)
		}
		h.writeError(c, err)
		return
	}
	h.clearCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) revokeMember(c *gin.Context) {
	n, err := h.authority.RevokeAllFamiliesForMember(c.Request.Context(), c.Param("memberID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

func (h *Handler) families(c *gin.Context) {
	fams, err := h.authority.Families(c.Request.Context(), c.Param("memberID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]familyResponse, 0, len(fams))
	for _, f := range fams {
		out = append(out, familyResponse{
			FamilyID:  f.FamilyID,
			Status:    string(f.Status),
			CreatedAt: f.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"families": out})
}

// presentedRefreshID prefers the cookie over the JSON body.
func (h *Handler) presentedRefreshID(c *gin.Context) (string, bool) {
	if v, err := c.Cookie(h.opts.CookieName); err == nil && v != "" {
		return v, true
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", false
	}
	return req.RefreshToken, true
}

func (h *Handler) writePair(c *gin.Context, status int, pair *albumauth.TokenPair) {
	maxAge := int(time.Until(pair.RefreshExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.opts.CookieName, pair.RefreshToken, maxAge, h.opts.CookiePath, h.opts.CookieDomain, h.opts.CookieSecure, true)
	c.Header("Cache-Control", "no-store")

	c.JSON(status, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(pair.AccessExpiresAt).Seconds()),
		FamilyID:     pair.FamilyID,
	})
}

func (h *Handler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.opts.CookieName, "", -1, h.opts.CookiePath, h.opts.CookieDomain, h.opts.CookieSecure, true)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(int(h.opts.RetryAfter.Round(time.Second)/time.Second)))
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "auth endpoint failure",
			slog.String("path", c.FullPath()),
			slog.String("request_id", albumauth.RequestIDFromContext(c.Request.Context())),
			slog.Any("error", err))
	}
	c.JSON(status, gin.H{"error": code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, albumauth.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, "invalid_refresh_token"
	case errors.Is(err, albumauth.ErrFamilyCompromised):
		return http.StatusUnauthorized, "family_compromised"
	case errors.Is(err, albumauth.ErrRefreshTokenReused):
		return http.StatusUnauthorized, "refresh_token_reused"
	case errors.Is(err, albumauth.ErrRefreshRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, albumauth.ErrStoreUnavailable), errors.Is(err, albumauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, albumauth.ErrInvalidMember):
		return http.StatusBadRequest, "invalid_member"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
