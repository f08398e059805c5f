package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Wynand91/fedauth/internal/domain"
	"github.com/Wynand91/fedauth/internal/http/middleware"
	"github.com/Wynand91/fedauth/internal/service/auth"
	"github.com/Wynand91/fedauth/internal/session"
	"github.com/Wynand91/fedauth/internal/validate"
)

// AuthHandler exposes the login flow endpoints.
type AuthHandler struct {
	Svc    *auth.Service
	Logger *zap.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Provider string `json:"provider"`
}

// Login starts a frontend flow. The response carries the provider authorize
// URL, or null when the username's domain has no federated record and the
// frontend should fall back to password login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid JSON body."})
		return
	}

	sess, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Session unavailable."})
		return
	}

	authURL, found, err := h.Svc.StartLogin(
		c.Request.Context(), sess,
		req.Username, req.Provider,
		c.Query("next"), c.Query("fail"),
	)
	if err != nil {
		h.flowError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"auth_url": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth_url": authURL})
}

// Authenticate starts a browser-navigated federated flow from a username.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	username := c.Query("username")
	domainKey, err := validate.EmailDomain(username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "A valid username email is required."})
		return
	}
	h.browserLogin(c, session.Tenant{Kind: session.TenantFederated, Key: domainKey})
}

// AuthenticateAlias starts a browser-navigated generic flow for an alias.
func (h *AuthHandler) AuthenticateAlias(c *gin.Context) {
	h.browserLogin(c, session.Tenant{Kind: session.TenantGeneric, Key: c.Param("alias")})
}

func (h *AuthHandler) browserLogin(c *gin.Context, tenant session.Tenant) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Session unavailable."})
		return
	}

	authURL, err := h.Svc.StartBrowserLogin(c.Request.Context(), sess, tenant)
	if err != nil {
		h.flowError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback handles the provider redirect shared by all flows.
func (h *AuthHandler) Callback(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Session unavailable."})
		return
	}

	target, err := h.Svc.Callback(
		c.Request.Context(), sess,
		c.Query("state"), c.Query("code"), c.Query("error"),
	)
	if err != nil {
		h.Logger.Error("callback failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Authentication backend misconfigured."})
		return
	}
	c.Redirect(http.StatusFound, target)
}

type exchangeRequest struct {
	Code string `json:"code"`
}

// Exchange redeems a short-lived code for the token pair.
func (h *AuthHandler) Exchange(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Code Invalid or expired"})
		return
	}

	pair, err := h.Svc.Exchange(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, domain.ErrCodeInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Code Invalid or expired"})
			return
		}
		h.Logger.Error("code exchange failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Exchange unavailable."})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Me returns the authenticated user's record.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
		return
	}

	user, err := h.Svc.Me(c.Request.Context(), claims.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "User not found."})
			return
		}
		h.Logger.Error("user lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Lookup unavailable."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"first_name":   user.FirstName,
		"last_name":    user.LastName,
		"phone":        user.Phone,
		"is_staff":     user.IsStaff,
		"is_superuser": user.IsSuperuser,
	})
}

func (h *AuthHandler) flowError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}
	h.Logger.Error("login flow failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Login unavailable."})
}
